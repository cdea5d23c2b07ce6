package mime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComplies(t *testing.T) {
	for _, tc := range []string{"", JSON, JSON + ";", JSON + ";param", "Application/JSON; charset=utf-8"} {
		require.True(t, Complies(JSON, tc), tc)
	}

	require.False(t, Complies(JSON, FormUrlencoded))
}

func TestBoundary(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		boundary, ok := Boundary("multipart/form-data; boundary=X")
		require.True(t, ok)
		require.Equal(t, "X", boundary)
	})

	t.Run("quoted", func(t *testing.T) {
		boundary, ok := Boundary(`multipart/form-data; boundary="----abc"`)
		require.True(t, ok)
		require.Equal(t, "----abc", boundary)
	})

	t.Run("missing", func(t *testing.T) {
		_, ok := Boundary("multipart/form-data")
		require.False(t, ok)
		_, ok = Boundary("multipart/form-data; boundary=")
		require.False(t, ok)
	})

	require.True(t, IsMultipart("multipart/form-data; boundary=X"))
	require.False(t, IsMultipart(JSON))
}
