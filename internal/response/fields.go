package response

import (
	"github.com/indigo-web/stitch/http/cookie"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/kv"
)

// preallocHeaders is just a guess, there's no research behind it.
const preallocHeaders = 7

// Fields are the values filled by the response builder and consumed by the serializer.
type Fields struct {
	Code    status.Code
	Headers *kv.Storage
	Cookies []cookie.Cookie
	Body    []byte
}

func NewFields() *Fields {
	return &Fields{
		Code:    status.OK,
		Headers: kv.NewPrealloc(preallocHeaders),
	}
}

func (f *Fields) Clear() *Fields {
	f.Code = status.OK
	f.Headers.Clear()
	f.Cookies = f.Cookies[:0]
	f.Body = nil

	return f
}
