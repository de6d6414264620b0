package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_PlainStringIsUnchanged(t *testing.T) {
	s, err := Decode("hello")
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestDecode_PlusBecomesSpace(t *testing.T) {
	s, err := Decode("a+b+c")
	require.NoError(t, err)
	require.Equal(t, "a b c", s)
}

func TestDecode_PercentEscapeCaseInsensitiveHex(t *testing.T) {
	s, err := Decode("%2b%2B")
	require.NoError(t, err)
	require.Equal(t, "++", s)
}

func TestDecode_UTF8MultiByteSequence(t *testing.T) {
	s, err := Decode("%E2%98%83")
	require.NoError(t, err)
	require.Equal(t, "☃", s)
}

func TestDecode_TruncatedEscapeFails(t *testing.T) {
	_, err := Decode("abc%2")
	require.ErrorIs(t, err, ErrInvalidEscape)
}

func TestDecode_NonHexDigitsFails(t *testing.T) {
	_, err := Decode("%zz")
	require.ErrorIs(t, err, ErrInvalidEscape)
}
