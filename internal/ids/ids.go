// Package ids provides type-safe identifier wrappers for the B2 wire
// protocol's opaque identifiers. It consolidates the zero-value-means-absent
// convention used throughout the core so callers cannot accidentally pass an
// empty bucket ID where a file ID is expected.
package ids

import (
	"database/sql/driver"
	"fmt"
)

// BucketID is an opaque, service-assigned bucket identifier.
// The zero value (BucketID{}) represents "absent/unknown".
type BucketID struct {
	value string
}

// NewBucket wraps a raw bucket ID string. Empty input returns the zero value.
func NewBucket(raw string) BucketID {
	return BucketID{value: raw}
}

// String returns the raw bucket ID.
func (b BucketID) String() string { return b.value }

// IsZero reports whether this is the absent-bucket-id value.
func (b BucketID) IsZero() bool { return b.value == "" }

// Value implements driver.Valuer for SQLite persistence.
func (b BucketID) Value() (driver.Value, error) { return b.value, nil }

// Scan implements sql.Scanner for SQLite persistence.
func (b *BucketID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		b.value = ""
	case string:
		b.value = v
	case []byte:
		b.value = string(v)
	default:
		return fmt.Errorf("ids: cannot scan %T into BucketID", src)
	}

	return nil
}

// FileID is an opaque, service-assigned file-version identifier.
// The zero value (FileID{}) represents "absent/unknown".
type FileID struct {
	value string
}

// NewFile wraps a raw file ID string. Empty input returns the zero value.
func NewFile(raw string) FileID {
	return FileID{value: raw}
}

// String returns the raw file ID.
func (f FileID) String() string { return f.value }

// IsZero reports whether this is the absent-file-id value.
func (f FileID) IsZero() bool { return f.value == "" }

// Value implements driver.Valuer for SQLite persistence.
func (f FileID) Value() (driver.Value, error) { return f.value, nil }

// Scan implements sql.Scanner for SQLite persistence.
func (f *FileID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		f.value = ""
	case string:
		f.value = v
	case []byte:
		f.value = string(v)
	default:
		return fmt.Errorf("ids: cannot scan %T into FileID", src)
	}

	return nil
}
