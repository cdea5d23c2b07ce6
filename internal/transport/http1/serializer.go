package http1

import (
	"strconv"
	"time"

	"github.com/indigo-web/stitch/http"
	"github.com/indigo-web/stitch/http/cookie"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/utils/strcomp"
)

const (
	protocol      = "HTTP/1.1 "
	crlf          = "\r\n"
	colonsp       = ": "
	setCookie     = "Set-Cookie: "
	date          = "Date"
	contentLength = "Content-Length"
	// timeFormat is RFC1123 with the GMT zone, as required for HTTP dates.
	timeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Serialize renders the response into dst and returns the extended slice. Cookies come
// first, as Set-Cookie headers, followed by the response headers in their insertion order.
// The Date header always holds the passed time, replacing the explicitly set value if any.
// Content-Length is derived from the body, unless explicitly set.
func Serialize(dst []byte, response *http.Response, now time.Time) []byte {
	fields := response.Reveal()
	now = now.UTC()

	dst = append(dst, protocol...)
	dst = strconv.AppendUint(dst, uint64(fields.Code), 10)
	dst = append(dst, ' ')
	dst = append(dst, status.Text(fields.Code)...)
	dst = append(dst, crlf...)

	for _, c := range fields.Cookies {
		dst = renderCookie(dst, c, now)
	}

	var dateRendered, hasContentLength bool

	for _, header := range fields.Headers.Expose() {
		switch {
		case strcomp.EqualFold(header.Key, date):
			if dateRendered {
				continue
			}

			dst = renderDate(dst, header.Key, now)
			dateRendered = true
			continue
		case strcomp.EqualFold(header.Key, contentLength):
			hasContentLength = true
		}

		dst = renderHeader(dst, header.Key, header.Value)
	}

	if !dateRendered {
		dst = renderDate(dst, date, now)
	}

	if !hasContentLength {
		dst = append(dst, contentLength+colonsp...)
		dst = strconv.AppendInt(dst, int64(len(fields.Body)), 10)
		dst = append(dst, crlf...)
	}

	dst = append(dst, crlf...)

	return append(dst, fields.Body...)
}

func renderHeader(dst []byte, key, value string) []byte {
	dst = append(dst, key...)
	dst = append(dst, colonsp...)
	dst = append(dst, value...)
	return append(dst, crlf...)
}

func renderDate(dst []byte, key string, now time.Time) []byte {
	dst = append(dst, key...)
	dst = append(dst, colonsp...)
	dst = now.AppendFormat(dst, timeFormat)
	return append(dst, crlf...)
}

func renderCookie(dst []byte, c cookie.Cookie, now time.Time) []byte {
	dst = append(dst, setCookie...)
	dst = append(dst, c.Name...)
	dst = append(dst, '=')
	dst = append(dst, c.Value...)
	dst = append(dst, "; Expires="...)
	dst = now.Add(time.Duration(c.MaxAge)*time.Second).AppendFormat(dst, timeFormat)
	dst = append(dst, "; Path="...)
	dst = append(dst, c.Path...)
	dst = append(dst, "; Domain="...)
	dst = append(dst, c.Domain...)
	dst = append(dst, ';')

	if c.Secure {
		dst = append(dst, " Secure;"...)
	}

	if c.HttpOnly {
		dst = append(dst, " HttpOnly;"...)
	}

	return append(dst, crlf...)
}
