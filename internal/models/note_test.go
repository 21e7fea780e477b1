package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g1mliii/anchored/internal/cryptox"
)

func key(t *testing.T, secret string) []byte {
	t.Helper()
	return cryptox.DeriveKey([]byte(secret), []byte("0123456789abcdef"))
}

func sampleNote() *Note {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Note{
		ID:        "7b0d3a80-9c1f-4f27-9f2a-3f6de0f1a001",
		Title:     "Reading list",
		Content:   "GC tuning article, chapter 4 notes",
		Tags:      []string{"go", "perf"},
		URL:       "https://blog.example.com/gc-tuning",
		Domain:    "blog.example.com",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
}

func TestNote_EncryptDecryptRoundTrip(t *testing.T) {
	k := key(t, "passphrase")
	n := sampleNote()

	enc, err := n.EncryptForCloud(k)
	require.NoError(t, err)

	// Plaintext provenance fields survive encryption untouched.
	assert.Equal(t, n.ID, enc.ID)
	assert.Equal(t, n.URL, enc.URL)
	assert.Equal(t, n.Domain, enc.Domain)
	assert.NotEmpty(t, enc.ContentHash)
	require.NotNil(t, enc.TitleEncrypted)
	require.NotNil(t, enc.ContentEncrypted)
	require.NotNil(t, enc.TagsEncrypted)

	got, err := enc.Decrypt(k)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestNote_EncryptForCloud_EmptyFields(t *testing.T) {
	k := key(t, "passphrase")
	n := &Note{ID: "n1", Title: "", Content: "", Tags: nil}

	enc, err := n.EncryptForCloud(k)
	require.NoError(t, err)
	assert.Nil(t, enc.TitleEncrypted)
	assert.Nil(t, enc.ContentEncrypted)
	assert.Nil(t, enc.TagsEncrypted)

	got, err := enc.Decrypt(k)
	require.NoError(t, err)
	assert.Equal(t, "", got.Title)
	assert.Equal(t, "", got.Content)
	assert.Equal(t, []string{}, got.Tags)
}

func TestEncryptedNote_Decrypt_WrongKeyFailsNote(t *testing.T) {
	enc, err := sampleNote().EncryptForCloud(key(t, "passphrase"))
	require.NoError(t, err)

	_, err = enc.Decrypt(key(t, "other passphrase"))
	require.Error(t, err)
}

func TestEncryptedNote_Decrypt_TagsDegrade(t *testing.T) {
	k := key(t, "passphrase")
	enc, err := sampleNote().EncryptForCloud(k)
	require.NoError(t, err)

	// Corrupt only the tags blob: the note must still decrypt with empty
	// tags instead of failing outright.
	enc.TagsEncrypted.Ciphertext[0] ^= 0xff

	got, err := enc.Decrypt(k)
	require.NoError(t, err)
	assert.Equal(t, sampleNote().Title, got.Title)
	assert.Equal(t, []string{}, got.Tags)
}

func TestNote_Clone(t *testing.T) {
	n := sampleNote()
	deleted := n.UpdatedAt.Add(time.Minute)
	n.DeletedAt = &deleted

	c := n.Clone()
	require.Equal(t, n, c)

	c.Tags[0] = "mutated"
	*c.DeletedAt = c.DeletedAt.Add(time.Hour)
	assert.Equal(t, "go", n.Tags[0])
	assert.Equal(t, deleted, *n.DeletedAt)

	assert.Nil(t, (*Note)(nil).Clone())
}
