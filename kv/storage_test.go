package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage_AddPreservesDuplicatesInOrder(t *testing.T) {
	s := New()
	s.Add("a", "1").Add("b", "2").Add("a", "3")

	require.Equal(t, []Pair{{"a", "1"}, {"b", "2"}, {"a", "3"}}, s.Expose())

	v, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, "1", v, "Get must return the first match")
}

func TestStorage_SetOverwritesFirstMatchCaseInsensitively(t *testing.T) {
	s := New()
	s.Add("Content-Type", "text/plain")
	s.Set("content-type", "application/json")

	require.Equal(t, 1, s.Len())
	v, _ := s.Get("CONTENT-TYPE")
	require.Equal(t, "application/json", v)
}

func TestStorage_SetAppendsWhenAbsent(t *testing.T) {
	s := New()
	s.Set("X-Foo", "bar")
	require.Equal(t, 1, s.Len())
	require.True(t, s.Has("x-foo"))
}

func TestStorage_GetMissingReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.Get("missing")
	require.False(t, ok)
	require.Equal(t, "fallback", s.ValueOr("missing", "fallback"))
}

func TestStorage_CloneIsIndependent(t *testing.T) {
	s := New()
	s.Add("a", "1")
	c := s.Clone()
	c.Add("b", "2")

	require.Equal(t, 1, s.Len())
	require.Equal(t, 2, c.Len())
}

func TestStorage_ClearKeepsBackingArray(t *testing.T) {
	s := NewPrealloc(4)
	s.Add("a", "1")
	s.Clear()
	require.Equal(t, 4, cap(s.Expose()))
	require.Equal(t, 0, s.Len())
	require.False(t, s.Has("a"))
}
