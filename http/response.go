package http

import (
	"errors"
	"os"
	"strconv"

	"github.com/indigo-web/stitch/http/cookie"
	"github.com/indigo-web/stitch/http/mime"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/internal/response"
	"github.com/indigo-web/stitch/kv"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

type Response struct {
	fields *response.Fields
}

// NewResponse returns a new instance of the Response object with status code set to 200 OK
// and pre-allocated space for response headers.
// NOTE: it's recommended to use Request.Respond() method inside of handlers, if there's no
// clear reason otherwise
func NewResponse() *Response {
	return &Response{response.NewFields()}
}

// Code sets a Response code. The reason phrase is derived from the code while serializing.
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// ContentType sets a custom Content-Type header value.
func (r *Response) ContentType(value mime.MIME) *Response {
	return r.Header("Content-Type", value)
}

// Header sets header values to a key. Values previously set to the key are discarded, but
// the header keeps its position. Passing no values removes the header.
func (r *Response) Header(key string, values ...string) *Response {
	if len(values) == 0 {
		r.fields.Headers.Delete(key)
		return r
	}

	r.fields.Headers.Set(key, values[0])
	for _, value := range values[1:] {
		r.fields.Headers.Add(key, value)
	}

	return r
}

// Headers merges passed headers into the Response.
func (r *Response) Headers(headers map[string][]string) *Response {
	for k, v := range headers {
		r.Header(k, v...)
	}

	return r
}

// String sets the response's body to the passed string
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets the response's body to passed slice WITHOUT COPYING. Changing
// the passed slice later will affect the response by itself
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Body = body
	return r
}

// Write implements io.Writer interface. It always returns n=len(b) and err=nil
func (r *Response) Write(b []byte) (n int, err error) {
	r.fields.Body = append(r.fields.Body, b...)
	return len(b), nil
}

// TryFile reads the file and returns a Response with it as an attachment, named as filename.
// Empty filename results in an inline attachment.
func (r *Response) TryFile(path, filename string) (*Response, error) {
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return r, status.ErrNotFound
	case err != nil:
		// the file exists, however something in system went wrong
		return r, status.ErrInternalServerError
	}

	disposition := "attachment"
	if len(filename) > 0 {
		disposition += "; filename=" + strconv.Quote(filename)
	}

	return r.
		ContentType(mime.OctetStream).
		Header("Content-Disposition", disposition).
		Bytes(content), nil
}

// File does the same as TryFile does, except returned error is being implicitly wrapped
// by Error
func (r *Response) File(path, filename string) *Response {
	resp, err := r.TryFile(path, filename)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Cookie adds cookies. They'll be later rendered as a set of Set-Cookie headers
func (r *Response) Cookie(cookies ...cookie.Cookie) *Response {
	r.fields.Cookies = append(r.fields.Cookies, cookies...)
	return r
}

// ExpireCookie instructs the user-agent to drop the cookie.
func (r *Response) ExpireCookie(name string) *Response {
	return r.Cookie(cookie.Expired(name))
}

// TryJSON receives a model (must be a pointer to the structure) and returns a new Response
// object and an error
func (r *Response) TryJSON(model any) (*Response, error) {
	r.fields.Body = r.fields.Body[:0]
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.ContentType(mime.JSON), err
}

// JSON does the same as TryJSON does, except returned error is being implicitly wrapped
// by Error
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error returns a response builder with an error set. If passed err is nil, nothing will happen.
// If the error is (or wraps) a status.HTTPError, its code and message are used. Otherwise, the
// code is status.InternalServerError, unless a custom one is passed. Only the first custom code
// is used.
func (r *Response) Error(err error, code ...status.Code) *Response {
	if err == nil {
		return r
	}

	c := status.CodeOf(err)
	if len(code) > 0 {
		c = code[0]
	}

	return r.
		Code(c).
		ContentType(mime.Plain).
		String(status.MessageOf(err))
}

// GetCode returns the status code.
func (r *Response) GetCode() status.Code {
	return r.fields.Code
}

// GetHeaders returns the underlying header storage.
func (r *Response) GetHeaders() *kv.Storage {
	return r.fields.Headers
}

func (r *Response) GetCookies() []cookie.Cookie {
	return r.fields.Cookies
}

func (r *Response) GetBody() []byte {
	return r.fields.Body
}

// Reveal returns a struct with values, filled by builder. Used mostly in internal purposes
func (r *Response) Reveal() *response.Fields {
	return r.fields
}

// Clear discards everything was done with Response object before
func (r *Response) Clear() *Response {
	r.fields.Clear()
	return r
}

// Respond is a predicate to request.Respond(). May be used as a dummy handler
func Respond(request *Request) *Response {
	return request.Respond()
}

// Code is a predicate to request.Respond().Code(...)
func Code(request *Request, code status.Code) *Response {
	return request.Respond().Code(code)
}

// String is a predicate to request.Respond().String(...)
func String(request *Request, str string) *Response {
	return request.Respond().String(str)
}

// JSON is a predicate to request.Respond().JSON(...)
func JSON(request *Request, model any) *Response {
	return request.Respond().JSON(model)
}

// Error is a predicate to request.Respond().Error(...)
func Error(request *Request, err error, code ...status.Code) *Response {
	return request.Respond().Error(err, code...)
}
