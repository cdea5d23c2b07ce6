package status

import (
	"errors"
	"fmt"
)

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// Faults raised while assembling a request. The messages are sent back to the client as-is.
var (
	ErrContentLengthNotSet   = NewError(BadRequest, "Content-Length is not set")
	ErrBadContentLength      = NewError(BadRequest, "Content-Length is malformed")
	ErrContentTypeNotSet     = NewError(BadRequest, "Content-Type is not set")
	ErrBoundaryNotSet        = NewError(BadRequest, "boundary is not set")
	ErrTransferEncoding      = NewError(NotImplemented, "Transfer-Encoding is not supported")
	ErrContentLengthMismatch = NewError(BadRequest, "Content-Length is not match")
	ErrHeaderFieldsTooLarge  = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrBodyTooLarge          = NewError(RequestEntityTooLarge, "request body is too large")
	ErrUploadFailed          = NewError(InternalServerError, "upload failed")
	ErrUploadAborted         = NewError(BadRequest, "upload aborted")
	ErrAssemblerFinished     = NewError(InternalServerError, "request is already assembled")
)

// ErrFramingLost accompanies faults of requests whose head announced a body. The body is left
// unread, so there's no telling where the next request begins.
var ErrFramingLost = errors.New("request framing is lost")

var (
	ErrBadRequest           = NewError(BadRequest, "bad request")
	ErrURLDecoding          = NewError(BadRequest, "invalid urlencoded sequence")
	ErrNotFound             = NewError(NotFound, "not found")
	ErrRequestTimeout       = NewError(RequestTimeout, "request timeout")
	ErrUnsupportedMediaType = NewError(UnsupportedMediaType, "unsupported media type")
	ErrInternalServerError  = NewError(InternalServerError, "internal server error")
)

// CodeOf extracts the status code carried by the error, if any of the wrapped errors is an
// HTTPError. Otherwise, InternalServerError is returned.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

// MessageOf returns the message of the outermost HTTPError, falling back to err.Error().
func MessageOf(err error) string {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}

	return err.Error()
}

// BreaksFraming reports whether the connection framing can't be trusted anymore after err,
// so the only safe recovery is closing the connection.
func BreaksFraming(err error) bool {
	return errors.Is(err, ErrContentLengthMismatch) ||
		errors.Is(err, ErrHeaderFieldsTooLarge) ||
		errors.Is(err, ErrBodyTooLarge) ||
		errors.Is(err, ErrUploadFailed) ||
		errors.Is(err, ErrFramingLost)
}

// Wrap attaches the cause to a sentinel, keeping both reachable via errors.Is.
func Wrap(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
