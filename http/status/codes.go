package status

import "strconv"

type (
	Code   uint16
	Status string
)

// Codes used across the assembler, the router and the server layer. The list isn't exhaustive;
// any other value is still rendered, just with a generic reason phrase.
const (
	Continue Code = 100

	OK        Code = 200
	Created   Code = 201
	Accepted  Code = 202
	NoContent Code = 204

	MovedPermanently  Code = 301
	Found             Code = 302
	SeeOther          Code = 303
	NotModified       Code = 304
	TemporaryRedirect Code = 307
	PermanentRedirect Code = 308

	BadRequest                  Code = 400
	Unauthorized                Code = 401
	Forbidden                   Code = 403
	NotFound                    Code = 404
	MethodNotAllowed            Code = 405
	RequestTimeout              Code = 408
	Conflict                    Code = 409
	LengthRequired              Code = 411
	RequestEntityTooLarge       Code = 413
	RequestURITooLong           Code = 414
	UnsupportedMediaType        Code = 415
	UnprocessableEntity         Code = 422
	TooManyRequests             Code = 429
	RequestHeaderFieldsTooLarge Code = 431

	InternalServerError     Code = 500
	NotImplemented          Code = 501
	BadGateway              Code = 502
	ServiceUnavailable      Code = 503
	GatewayTimeout          Code = 504
	HTTPVersionNotSupported Code = 505
	InsufficientStorage     Code = 507
)

var texts = map[Code]Status{
	Continue:                    "Continue",
	OK:                          "OK",
	Created:                     "Created",
	Accepted:                    "Accepted",
	NoContent:                   "No Content",
	MovedPermanently:            "Moved Permanently",
	Found:                       "Found",
	SeeOther:                    "See Other",
	NotModified:                 "Not Modified",
	TemporaryRedirect:           "Temporary Redirect",
	PermanentRedirect:           "Permanent Redirect",
	BadRequest:                  "Bad Request",
	Unauthorized:                "Unauthorized",
	Forbidden:                   "Forbidden",
	NotFound:                    "Not Found",
	MethodNotAllowed:            "Method Not Allowed",
	RequestTimeout:              "Request Timeout",
	Conflict:                    "Conflict",
	LengthRequired:              "Length Required",
	RequestEntityTooLarge:       "Request Entity Too Large",
	RequestURITooLong:           "Request URI Too Long",
	UnsupportedMediaType:        "Unsupported Media Type",
	UnprocessableEntity:         "Unprocessable Entity",
	TooManyRequests:             "Too Many Requests",
	RequestHeaderFieldsTooLarge: "Request Header Fields Too Large",
	InternalServerError:         "Internal Server Error",
	NotImplemented:              "Not Implemented",
	BadGateway:                  "Bad Gateway",
	ServiceUnavailable:          "Service Unavailable",
	GatewayTimeout:              "Gateway Timeout",
	HTTPVersionNotSupported:     "HTTP Version Not Supported",
	InsufficientStorage:         "Insufficient Storage",
}

// Text returns a reason phrase for the HTTP status code. Unknown codes get a generic one.
func Text(code Code) Status {
	if text, ok := texts[code]; ok {
		return text
	}

	return "Unknown Status Code"
}

// StringCode returns the decimal representation of the code.
func StringCode(code Code) string {
	return strconv.Itoa(int(code))
}
