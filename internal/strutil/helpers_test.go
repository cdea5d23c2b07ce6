package strutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelpers(t *testing.T) {
	t.Run("strip", func(t *testing.T) {
		require.Equal(t, "hello ", LStripWS(" \thello "))
		require.Equal(t, " hello", RStripWS(" hello \t"))
		require.Empty(t, LStripWS("   "))
		require.Empty(t, RStripWS("\t\t"))
	})

	t.Run("cut header", func(t *testing.T) {
		value, params := CutHeader("multipart/form-data;   boundary=X")
		require.Equal(t, "multipart/form-data", value)
		require.Equal(t, "boundary=X", params)

		value, params = CutHeader("text/plain")
		require.Equal(t, "text/plain", value)
		require.Empty(t, params)
	})

	t.Run("unquote", func(t *testing.T) {
		require.Equal(t, "abc", Unquote(`"abc"`))
		require.Equal(t, `"abc`, Unquote(`"abc`))
		require.Equal(t, `"`, Unquote(`"`))
	})
}
