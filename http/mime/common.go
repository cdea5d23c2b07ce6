package mime

import (
	"strings"

	"github.com/indigo-web/stitch/internal/strutil"
)

type MIME = string

const (
	OctetStream    MIME = "application/octet-stream"
	Plain          MIME = "text/plain"
	HTML           MIME = "text/html"
	JSON           MIME = "application/json"
	FormUrlencoded MIME = "application/x-www-form-urlencoded"
	Multipart      MIME = "multipart/form-data"
)

// Complies returns whether two MIMEs are compatible. Empty MIME is
// considered compatible with any other MIME
func Complies(mime MIME, with string) bool {
	// get rid of parameters if any
	with, _ = strutil.CutHeader(with)
	return len(with) == 0 || strings.EqualFold(strutil.RStripWS(with), mime)
}

// IsMultipart reports whether the content type announces a multipart form. The check is a
// plain substring match, so parameters and their order don't matter.
func IsMultipart(contentType string) bool {
	return strings.Contains(contentType, Multipart)
}

// Boundary extracts the multipart boundary parameter. Everything following the first
// `boundary=` is taken, with surrounding quotes removed.
func Boundary(contentType string) (boundary string, ok bool) {
	const param = "boundary="

	idx := strings.Index(contentType, param)
	if idx == -1 {
		return "", false
	}

	boundary = strutil.Unquote(strutil.RStripWS(contentType[idx+len(param):]))
	return boundary, len(boundary) > 0
}
