// Package account implements the Account-Info Store and Upload-URL Pool
// (spec.md components C1, C2): the only mutable shared state in the client
// besides per-token mutexes, so every implementation here must be safe for
// concurrent use.
package account

import (
	"errors"
	"fmt"
	"sync"
)

// Allowed mirrors the capability/bucket/prefix restriction on an
// application key, spec.md §3's "allowed descriptor". bucket_name is
// present only when bucket_id is also present and has been resolved.
type Allowed struct {
	Capabilities []string
	BucketID     string
	BucketName   string
	NamePrefix   string
}

// defaultAllowed is synthesized for legacy state that predates the allowed
// descriptor, per spec.md §3: "a default-all-capabilities value is
// synthesized for legacy state."
func defaultAllowed() Allowed {
	return Allowed{Capabilities: []string{
		"listKeys", "writeKeys", "deleteKeys", "listBuckets", "writeBuckets",
		"deleteBuckets", "listFiles", "readFiles", "shareFiles", "writeFiles",
		"deleteFiles",
	}}
}

// State is the full authorization tuple held by C1.
type State struct {
	AccountID           string
	AuthToken           string
	APIURL              string
	DownloadURL         string
	RecommendedPartSize int64
	MinPartSize         int64
	Realm               string
	Allowed             Allowed
}

// ErrMissingAccountData is returned by a getter when the requested field has
// never been set — spec.md §4.1: "not retryable."
type ErrMissingAccountData struct {
	Field string
}

func (e *ErrMissingAccountData) Error() string {
	return fmt.Sprintf("account: missing %s; authorize first", e.Field)
}

// ErrCorruptAccountInfo is returned by a persistent Info implementation when
// its backing store cannot be parsed into a valid State. spec.md §4.1
// recommends deleting the store and re-authorizing.
type ErrCorruptAccountInfo struct {
	Cause error
}

func (e *ErrCorruptAccountInfo) Error() string {
	return fmt.Sprintf("account: corrupt account info store, delete and re-authorize: %v", e.Cause)
}

func (e *ErrCorruptAccountInfo) Unwrap() error { return e.Cause }

// IsCorrupt reports whether err is, or wraps, an ErrCorruptAccountInfo.
func IsCorrupt(err error) bool {
	var c *ErrCorruptAccountInfo
	return errors.As(err, &c)
}

// IsMissing reports whether err is, or wraps, an ErrMissingAccountData.
func IsMissing(err error) bool {
	var m *ErrMissingAccountData
	return errors.As(err, &m)
}

// validateAllowed enforces spec.md §4.1: "rejects an allowed descriptor
// missing any of {bucket_id, bucket_name, capabilities, name_prefix}" is
// read here as "bucket_name present without bucket_id is invalid" — the
// other fields are legitimately optional (absent means unrestricted).
func validateAllowed(a Allowed) error {
	if a.BucketName != "" && a.BucketID == "" {
		return fmt.Errorf("account: allowed descriptor has bucket_name %q without bucket_id", a.BucketName)
	}

	return nil
}

// Info is the C1 Account-Info Store contract: holds the current
// authorization State and the bucket-name-to-id resolution cache. All
// methods must be safe for concurrent use.
type Info interface {
	// SetAuthData atomically replaces all authorization fields.
	SetAuthData(State) error

	// AccountID, AuthToken, APIURL, DownloadURL, RecommendedPartSize,
	// MinPartSize, Realm, and AllowedInfo each return the stored value or
	// an *ErrMissingAccountData if never set.
	AccountID() (string, error)
	AuthToken() (string, error)
	APIURL() (string, error)
	DownloadURL() (string, error)
	RecommendedPartSize() (int64, error)
	MinPartSize() (int64, error)
	Realm() (string, error)
	AllowedInfo() (Allowed, error)

	// Clear discards all authorization state (account switch).
	Clear() error

	// CacheBucketID records the resolved id for a bucket name.
	CacheBucketID(bucketName, bucketID string)
	// LookupBucketID returns a cached id for bucketName, if known.
	LookupBucketID(bucketName string) (string, bool)
}

// MemoryInfo is the non-persistent Info implementation: plain state guarded
// by a mutex, matching spec.md §9's "plain immutable values instead of a
// mutable singleton" guidance — each SetAuthData swaps in a fresh State
// rather than mutating fields in place.
type MemoryInfo struct {
	mu    sync.RWMutex
	state *State

	bucketMu sync.RWMutex
	buckets  map[string]string
}

// NewMemoryInfo builds an empty MemoryInfo; SetAuthData must be called
// before any getter succeeds.
func NewMemoryInfo() *MemoryInfo {
	return &MemoryInfo{buckets: make(map[string]string)}
}

func (m *MemoryInfo) SetAuthData(s State) error {
	if err := validateAllowed(s.Allowed); err != nil {
		return err
	}

	if len(s.Allowed.Capabilities) == 0 {
		s.Allowed = mergeDefaultCapabilities(s.Allowed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stateCopy := s
	m.state = &stateCopy

	return nil
}

func mergeDefaultCapabilities(a Allowed) Allowed {
	def := defaultAllowed()
	def.BucketID = a.BucketID
	def.BucketName = a.BucketName
	def.NamePrefix = a.NamePrefix

	return def
}

func (m *MemoryInfo) get() (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, &ErrMissingAccountData{Field: "account_state"}
	}

	return m.state, nil
}

func (m *MemoryInfo) AccountID() (string, error) {
	s, err := m.get()
	if err != nil {
		return "", err
	}

	return s.AccountID, nil
}

func (m *MemoryInfo) AuthToken() (string, error) {
	s, err := m.get()
	if err != nil {
		return "", err
	}

	return s.AuthToken, nil
}

func (m *MemoryInfo) APIURL() (string, error) {
	s, err := m.get()
	if err != nil {
		return "", err
	}

	return s.APIURL, nil
}

func (m *MemoryInfo) DownloadURL() (string, error) {
	s, err := m.get()
	if err != nil {
		return "", err
	}

	return s.DownloadURL, nil
}

func (m *MemoryInfo) RecommendedPartSize() (int64, error) {
	s, err := m.get()
	if err != nil {
		return 0, err
	}

	return s.RecommendedPartSize, nil
}

func (m *MemoryInfo) MinPartSize() (int64, error) {
	s, err := m.get()
	if err != nil {
		return 0, err
	}

	return s.MinPartSize, nil
}

func (m *MemoryInfo) Realm() (string, error) {
	s, err := m.get()
	if err != nil {
		return "", err
	}

	return s.Realm, nil
}

func (m *MemoryInfo) AllowedInfo() (Allowed, error) {
	s, err := m.get()
	if err != nil {
		return Allowed{}, err
	}

	return s.Allowed, nil
}

func (m *MemoryInfo) Clear() error {
	m.mu.Lock()
	m.state = nil
	m.mu.Unlock()

	m.bucketMu.Lock()
	m.buckets = make(map[string]string)
	m.bucketMu.Unlock()

	return nil
}

func (m *MemoryInfo) CacheBucketID(bucketName, bucketID string) {
	m.bucketMu.Lock()
	defer m.bucketMu.Unlock()

	m.buckets[bucketName] = bucketID
}

func (m *MemoryInfo) LookupBucketID(bucketName string) (string, bool) {
	m.bucketMu.RLock()
	defer m.bucketMu.RUnlock()

	id, ok := m.buckets[bucketName]

	return id, ok
}
