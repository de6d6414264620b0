// Package kv is an ordered associative structure for (string, string)
// pairs, grounded on indigo-web's kv.Storage: linear search over a small
// slice beats a map for the handful of headers or query parameters a
// single request carries, and preserves insertion order besides.
package kv

import "strings"

// Pair is one stored key/value entry.
type Pair struct {
	Key, Value string
}

// Storage holds an ordered list of pairs. Key comparisons are always
// case-insensitive; the case given on insertion is preserved for output.
type Storage struct {
	pairs []Pair
}

// New returns an empty Storage.
func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns a Storage with its backing slice pre-sized for n
// pairs.
func NewPrealloc(n int) *Storage {
	return &Storage{pairs: make([]Pair, 0, n)}
}

// Add appends a new pair without removing any existing entry by the same
// key - used for query parameters, where the data model requires
// duplicates to be preserved in insertion order.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{Key: key, Value: value})
	return s
}

// Set overwrites the value of the first existing pair matching key
// case-insensitively, or appends a new pair if none exists - used for
// headers, where the data model requires the last write to win.
func (s *Storage) Set(key, value string) *Storage {
	for i, p := range s.pairs {
		if strings.EqualFold(p.Key, key) {
			s.pairs[i].Value = value
			return s
		}
	}
	return s.Add(key, value)
}

// Get returns the first value for key (case-insensitive) and whether it
// was found.
func (s *Storage) Get(key string) (value string, found bool) {
	for _, p := range s.pairs {
		if strings.EqualFold(p.Key, key) {
			return p.Value, true
		}
	}
	return "", false
}

// ValueOr returns the first value for key, or or if absent.
func (s *Storage) ValueOr(key, or string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return or
}

// Has reports whether key is present.
func (s *Storage) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Len returns the number of stored pairs, including duplicates.
func (s *Storage) Len() int {
	return len(s.pairs)
}

// Expose exposes the underlying pairs slice in insertion order. Callers
// must not mutate it.
func (s *Storage) Expose() []Pair {
	return s.pairs
}

// Clear empties the storage without releasing the backing array.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

// Clone returns a deep copy safe for independent mutation.
func (s *Storage) Clone() *Storage {
	if len(s.pairs) == 0 {
		return New()
	}
	cp := make([]Pair, len(s.pairs))
	copy(cp, s.pairs)
	return &Storage{pairs: cp}
}
