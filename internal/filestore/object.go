package filestore

import "time"

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "autorest/models/s1.go").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType  string
	ETag         string
	LastModified time.Time
}

// ListOptions controls ListObjects.
type ListOptions struct {
	// Prefix restricts results to keys starting with this string.
	Prefix string

	// Recursive lists every object under Prefix instead of one level.
	Recursive bool

	// Limit caps the number of results. 0 means no cap.
	Limit int
}
