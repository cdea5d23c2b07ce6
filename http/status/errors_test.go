package status

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	t.Run("code of wrapped error", func(t *testing.T) {
		err := Wrap(ErrUploadFailed, io.ErrClosedPipe)
		require.ErrorIs(t, err, ErrUploadFailed)
		require.ErrorIs(t, err, io.ErrClosedPipe)
		require.Equal(t, InternalServerError, CodeOf(err))
		require.Equal(t, "upload failed", MessageOf(err))
	})

	t.Run("plain errors", func(t *testing.T) {
		err := errors.New("boom")
		require.Equal(t, InternalServerError, CodeOf(err))
		require.Equal(t, "boom", MessageOf(err))
	})

	t.Run("framing", func(t *testing.T) {
		require.True(t, BreaksFraming(ErrContentLengthMismatch))
		require.True(t, BreaksFraming(ErrHeaderFieldsTooLarge))
		require.False(t, BreaksFraming(ErrContentTypeNotSet))
		require.False(t, BreaksFraming(ErrBoundaryNotSet))
		require.True(t, BreaksFraming(Wrap(ErrContentTypeNotSet, ErrFramingLost)))
		require.Equal(t, BadRequest, CodeOf(Wrap(ErrContentTypeNotSet, ErrFramingLost)))
		require.Equal(t, "Content-Type is not set", MessageOf(Wrap(ErrContentTypeNotSet, ErrFramingLost)))
		require.Equal(t, "Content-Length is not set", ErrContentLengthNotSet.Error())
	})
}
