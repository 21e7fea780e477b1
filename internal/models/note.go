// Package models defines the note types shared by the cache, sync queue, and
// backend wire contract.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/g1mliii/anchored/internal/cryptox"
)

const (
	// MaxTags bounds the number of tags per note.
	MaxTags = 20
	// MaxTagLen bounds the length of a single tag in characters.
	MaxTagLen = 100
)

// Note is the plaintext, in-memory form of a note. Exactly one of the
// plaintext form and the encrypted wire form is populated at rest;
// decryption discards the encrypted fields.
type Note struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	URL       string     `json:"url"`
	Domain    string     `json:"domain"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	IsDeleted bool       `json:"isDeleted,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// EncryptedNote is the wire and server-storage form. ID, URL, and domain stay
// plaintext so the server can filter by provenance without decrypting.
type EncryptedNote struct {
	ID               string                  `json:"id"`
	URL              string                  `json:"url"`
	Domain           string                  `json:"domain"`
	TitleEncrypted   *cryptox.EncryptedField `json:"title_encrypted,omitempty"`
	ContentEncrypted *cryptox.EncryptedField `json:"content_encrypted,omitempty"`
	TagsEncrypted    *cryptox.EncryptedField `json:"tags_encrypted,omitempty"`
	ContentHash      string                  `json:"content_hash"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	IsDeleted        bool                    `json:"is_deleted,omitempty"`
	DeletedAt        *time.Time              `json:"deleted_at,omitempty"`

	// UserID scopes server-side storage. Never serialized to clients.
	UserID string `json:"-"`
}

// EncryptForCloud converts n into its wire form: title, content, and tags are
// sealed under key and the content hash is computed over the plaintext
// inputs. Empty tags are omitted entirely.
func (n *Note) EncryptForCloud(key []byte) (*EncryptedNote, error) {
	title, err := cryptox.EncryptField(n.Title, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting title: %w", err)
	}

	content, err := cryptox.EncryptField(n.Content, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting content: %w", err)
	}

	var tags *cryptox.EncryptedField
	if len(n.Tags) > 0 {
		raw, err := json.Marshal(n.Tags)
		if err != nil {
			return nil, fmt.Errorf("encoding tags: %w", err)
		}
		if tags, err = cryptox.EncryptField(string(raw), key); err != nil {
			return nil, fmt.Errorf("encrypting tags: %w", err)
		}
	}

	return &EncryptedNote{
		ID:               n.ID,
		URL:              n.URL,
		Domain:           n.Domain,
		TitleEncrypted:   title,
		ContentEncrypted: content,
		TagsEncrypted:    tags,
		ContentHash:      cryptox.HashContent(n.Title, n.Content, n.Tags),
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		IsDeleted:        n.IsDeleted,
		DeletedAt:        n.DeletedAt,
	}, nil
}

// Decrypt restores the plaintext note. Title or content failing to decrypt
// fails the note (a wrong key makes it unusable anyway); tag decryption is
// best-effort and degrades to an empty list.
func (e *EncryptedNote) Decrypt(key []byte) (*Note, error) {
	title, err := cryptox.DecryptField(e.TitleEncrypted, key)
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}

	content, err := cryptox.DecryptField(e.ContentEncrypted, key)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}

	var tags []string
	if e.TagsEncrypted != nil {
		if raw, err := cryptox.DecryptField(e.TagsEncrypted, key); err == nil {
			_ = json.Unmarshal([]byte(raw), &tags)
		}
	}
	if tags == nil {
		tags = []string{}
	}

	return &Note{
		ID:        e.ID,
		Title:     title,
		Content:   content,
		Tags:      tags,
		URL:       e.URL,
		Domain:    e.Domain,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		IsDeleted: e.IsDeleted,
		DeletedAt: e.DeletedAt,
	}, nil
}

// Clone returns a deep copy so cached notes can be handed out without
// aliasing the stored slice headers.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	out := *n
	out.Tags = append([]string(nil), n.Tags...)
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}
