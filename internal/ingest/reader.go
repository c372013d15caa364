// Package ingest loads stored items from JSON files into a vector store and keeps
// a store in sync with a seed file.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/models"
)

// record is one input item. Both the native field names and the names used by a
// mongoexport of the embeddings collection are accepted.
type record struct {
	ID         json.RawMessage `json:"id"`
	MongoID    json.RawMessage `json:"_id"`
	Vector     []float64       `json:"vector"`
	Embedding  []float64       `json:"embedding"`
	DisplayURL string          `json:"displayUrl"`
	ImageURL   string          `json:"imageUrl"`
}

// ReadItems parses a JSON array or JSON Lines stream of items. Items without an id
// get a random UUID. Each item is validated; duplicate ids fail the read. When
// dimensions is 0 every vector must match the first record's length.
func ReadItems(r io.Reader, dimensions int) ([]*models.StoredItem, error) {
	br := bufio.NewReader(r)
	first, err := firstByte(br)
	if errors.Is(err, io.EOF) {
		return []*models.StoredItem{}, nil
	}
	if err != nil {
		return nil, err
	}

	var records []record
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: decode array: %v", apperr.ErrInvalidItem, err)
		}
	} else {
		for n := 1; ; n++ {
			var rec record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %v", apperr.ErrInvalidItem, n, err)
			}
			records = append(records, rec)
		}
	}

	now := time.Now()
	items := make([]*models.StoredItem, 0, len(records))
	seen := make(map[string]int, len(records))
	want := dimensions
	for i, rec := range records {
		item, err := rec.toItem(now)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		if err := item.Validate(want); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		if want <= 0 {
			want = len(item.Vector)
		}
		if prev, ok := seen[item.ID]; ok {
			return nil, fmt.Errorf("%w: record %d: id %q already used by record %d", apperr.ErrInvalidItem, i+1, item.ID, prev)
		}
		seen[item.ID] = i + 1
		items = append(items, item)
	}
	return items, nil
}

func (rec *record) toItem(now time.Time) (*models.StoredItem, error) {
	id, err := parseID(rec.ID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		if id, err = parseID(rec.MongoID); err != nil {
			return nil, err
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	values := rec.Vector
	if len(values) == 0 {
		values = rec.Embedding
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v)
	}

	url := rec.DisplayURL
	if url == "" {
		url = rec.ImageURL
	}
	return &models.StoredItem{ID: id, Vector: vec, DisplayURL: url, CreatedAt: now}, nil
}

// parseID accepts a string, a number, or an extended JSON ObjectID {"$oid": "..."}.
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: id: %v", apperr.ErrInvalidItem, err)
		}
		return s, nil
	case '{':
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(raw, &oid); err != nil || oid.OID == "" {
			return "", fmt.Errorf("%w: unsupported id object %s", apperr.ErrInvalidItem, raw)
		}
		return oid.OID, nil
	default:
		if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
			return "", fmt.Errorf("%w: unsupported id %s", apperr.ErrInvalidItem, raw)
		}
		return string(raw), nil
	}
}

func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
