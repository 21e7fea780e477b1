// Package transfer implements the note collection export file format and
// its all-or-nothing import validation.
//
// An export is a JSON object keyed by domain, each value an array of
// plaintext notes, plus a top-level "_anchored" marker that import uses to
// recognize the format. Import rejects the whole file on the first invalid
// note; it never partially imports unvalidated data.
package transfer

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/models"
)

const (
	// FormatName is the marker value import requires.
	FormatName = "anchored-notes"
	// FormatVersion is stamped on exports.
	FormatVersion = "1.0"

	markerKey = "_anchored"

	// MaxImportNotes caps the total notes accepted from one file.
	MaxImportNotes = 10_000
	// MaxContentBytes caps a single note's content.
	MaxContentBytes = 100_000
)

// Marker is the top-level format marker.
type Marker struct {
	Version    string    `json:"version"`
	Format     string    `json:"format"`
	ExportedAt time.Time `json:"exportedAt"`
	Source     string    `json:"source"`
}

// fileNote is the per-note wire shape inside an export file.
type fileNote struct {
	ID        string   `json:"id" validate:"required"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	URL       string   `json:"url" validate:"omitempty,url"`
	// Domain may be empty: notes saved without a source URL have none and
	// export under the "unsorted" group.
	Domain string `json:"domain" validate:"omitempty,hostname_rfc1123"`
	Tags      []string `json:"tags" validate:"max=20,dive,max=100"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// Exporter serializes note collections; Importer validates them back in.
type Exporter struct {
	now func() time.Time
}

func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export renders notes grouped by domain with the format marker attached.
func (e *Exporter) Export(notes []*models.Note, source string) ([]byte, error) {
	byDomain := make(map[string][]fileNote)
	for _, n := range notes {
		domain := n.Domain
		if domain == "" {
			domain = "unsorted"
		}
		byDomain[domain] = append(byDomain[domain], fileNote{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			URL:       n.URL,
			Domain:    n.Domain,
			Tags:      n.Tags,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
			UpdatedAt: n.UpdatedAt.Format(time.RFC3339),
		})
	}

	doc := make(map[string]any, len(byDomain)+1)
	for domain, group := range byDomain {
		doc[domain] = group
	}
	doc[markerKey] = Marker{
		Version:    FormatVersion,
		Format:     FormatName,
		ExportedAt: e.now(),
		Source:     source,
	}

	return json.MarshalIndent(doc, "", "  ")
}

// Importer validates export files.
type Importer struct {
	validate *validator.Validate
}

func NewImporter() *Importer {
	return &Importer{validate: validator.New()}
}

// Import parses and validates an export file. The whole file is rejected on
// the first invalid note, with the offending location reported as
// "domain[index]".
func (im *Importer) Import(data []byte) ([]*models.Note, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", common.ErrValidation, err)
	}

	rawMarker, ok := doc[markerKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s marker", common.ErrValidation, markerKey)
	}
	var marker Marker
	if err := json.Unmarshal(rawMarker, &marker); err != nil || marker.Format != FormatName {
		return nil, fmt.Errorf("%w: unrecognized export format", common.ErrValidation)
	}
	delete(doc, markerKey)

	// Deterministic traversal so error locations are stable.
	domains := make([]string, 0, len(doc))
	for domain := range doc {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	var notes []*models.Note
	for _, domain := range domains {
		var group []json.RawMessage
		if err := json.Unmarshal(doc[domain], &group); err != nil {
			return nil, fmt.Errorf("%w: %s: expected an array of notes", common.ErrValidation, domain)
		}
		for i, raw := range group {
			if len(notes) >= MaxImportNotes {
				return nil, fmt.Errorf("%w: more than %d notes", common.ErrValidation, MaxImportNotes)
			}
			note, err := im.parseNote(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", common.ErrValidation, domain, i, err)
			}
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (im *Importer) parseNote(raw json.RawMessage) (*models.Note, error) {
	var fn fileNote
	if err := json.Unmarshal(raw, &fn); err != nil {
		return nil, err
	}
	if err := im.validate.Struct(fn); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(fn.ID); err != nil {
		return nil, fmt.Errorf("invalid note id: %v", err)
	}
	if len(fn.Content) > MaxContentBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", MaxContentBytes)
	}

	createdAt, err := time.Parse(time.RFC3339, fn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt: %v", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, fn.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updatedAt: %v", err)
	}
	if updatedAt.Before(createdAt) {
		return nil, fmt.Errorf("updatedAt precedes createdAt")
	}

	tags := fn.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.Note{
		ID:        fn.ID,
		Title:     fn.Title,
		Content:   fn.Content,
		Tags:      tags,
		URL:       fn.URL,
		Domain:    fn.Domain,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
