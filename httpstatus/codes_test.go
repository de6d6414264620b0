package httpstatus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	require.Equal(t, "OK", Text(200))
	require.Equal(t, "Not Found", Text(404))
	require.Equal(t, "Internal Server Error", Text(500))
}

func TestText_UnknownCodeFallsBackToDecimal(t *testing.T) {
	require.Equal(t, "599", Text(599))
}
