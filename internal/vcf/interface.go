// Package vcf provides VCF parsing, writing, and the in-memory variant model.
package vcf

// RecordReader is the interface for sources of variant records.
// The file parser implements it; in-memory slices implement it for tests
// and for replaying already-materialized streams.
type RecordReader interface {
	// Next reads the next record.
	// Returns nil, nil when there are no more records.
	Next() (*Variant, error)

	// Close closes the reader and releases resources.
	Close() error
}

// SliceReader replays an in-memory record slice as a stream.
// A consumed reader is not restartable; create a new one per pass.
type SliceReader struct {
	records []*Variant
	pos     int
}

// NewSliceReader creates a reader over the given records.
func NewSliceReader(records []*Variant) *SliceReader {
	return &SliceReader{records: records}
}

// Next returns the next record, or nil, nil at the end.
func (r *SliceReader) Next() (*Variant, error) {
	if r.pos >= len(r.records) {
		return nil, nil
	}
	v := r.records[r.pos]
	r.pos++
	return v, nil
}

// Close implements RecordReader; it is a no-op for slices.
func (r *SliceReader) Close() error { return nil }

// ReadAll drains a reader into a slice.
func ReadAll(r RecordReader) ([]*Variant, error) {
	var records []*Variant
	for {
		v, err := r.Next()
		if err != nil {
			return records, err
		}
		if v == nil {
			return records, nil
		}
		records = append(records, v)
	}
}
