package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Reserved record fields written by the sync engine.
const (
	// FieldID holds the stable record identity.
	FieldID = "id"

	// FieldChecksum holds the fingerprint of the pre-rewrite serialized form.
	FieldChecksum = "checksum"
)

// Record is a semi-structured remote item: field name to JSON value.
// Numbers are kept as json.Number so re-serialization is byte-stable.
type Record map[string]any

// DecodeRecord parses one remote item. Anything other than a JSON object
// is rejected with ErrMalformedInput.
func DecodeRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record is not an object", ErrMalformedInput)
	}
	return rec, nil
}

// CanonicalJSON serializes a record with sorted keys and without HTML
// escaping. It is the input to Checksum.
func CanonicalJSON(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ID returns the record identity as a string, or "" if absent.
func (r Record) ID() string {
	return FieldString(r[FieldID])
}

// Checksum returns the stored fingerprint and whether it was present.
func (r Record) Checksum() (uint32, bool) {
	switch v := r[FieldChecksum].(type) {
	case uint32:
		return v, true
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(n), true
	case float64:
		return uint32(v), true
	case int64:
		return uint32(v), true
	case int:
		return uint32(v), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the record. Nested values are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldString renders a scalar JSON value as a string.
// Objects, arrays and null render as "".
func FieldString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// StoredRecord is a record as held by the local document store.
type StoredRecord struct {
	// Record is the persisted body, including id and checksum.
	Record Record

	// Rev is the store-assigned revision token.
	Rev string

	// UpdatedAt is when the store last accepted a write.
	UpdatedAt time.Time
}

// SyncResult reports one sync pass. It is never persisted.
type SyncResult struct {
	// Inserted counts records written for the first time.
	Inserted int

	// Updated counts records rewritten because their checksum changed.
	Updated int

	// Unchanged counts records skipped because the checksum matched.
	Unchanged int

	// Failed counts records that could not be decoded or written.
	Failed int

	// Records is every record considered, including unchanged ones.
	Records []Record

	// StartedAt is when the pass began.
	StartedAt time.Time

	// EndedAt is when the pass finished writing records.
	EndedAt time.Time
}

// CollectionInfo describes the opened local collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string

	// Records is the number of stored records.
	Records int

	// QuotaBytes is the collection size cap (0 = unlimited).
	QuotaBytes int64

	// AssetQuotaBytes is the asset storage quota that was granted.
	AssetQuotaBytes int64
}

// SyncState records the progress of incremental sync for a collection.
type SyncState struct {
	// Collection identifies the collection.
	Collection string

	// LastSync is the start time of the last successful pass.
	LastSync time.Time
}
