package http

import (
	"context"
	"net"
	"strings"

	"github.com/indigo-web/stitch/http/cookie"
	"github.com/indigo-web/stitch/http/method"
	"github.com/indigo-web/stitch/http/mime"
	"github.com/indigo-web/stitch/internal/qparams"
	"github.com/indigo-web/stitch/internal/urlencoded"
	"github.com/indigo-web/stitch/kv"
	"github.com/indigo-web/stitch/transport"
	"github.com/indigo-web/stitch/upload"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

var zeroContext = context.Background()

type (
	Headers = *kv.Storage
	Header  = kv.Pair
	Query   = *kv.Storage
	Form    = *kv.Storage
)

// UploadWaiter is resolved as soon as a streaming multipart upload is over, either
// successfully or not.
type UploadWaiter interface {
	Done() <-chan struct{}
	Wait(ctx context.Context) error
}

// Message is everything the request assembler collected for a single request. It is consumed
// by NewRequest.
type Message struct {
	ID       string
	Method   method.Method
	Target   string
	Protocol string
	Headers  *kv.Storage
	Body     []byte
	// Sink is set only for multipart requests. Its content becomes available after Upload
	// is resolved.
	Sink   upload.Sink
	Upload UploadWaiter
	Conn   transport.Conn
}

// Request represents an HTTP request. It is immutable: all the values are derived at
// construction and exposed via accessors, so it's safe to be shared among goroutines.
type Request struct {
	id        string
	method    method.Method
	target    string
	scheme    string
	host      string
	path      string
	protocol  string
	query     Query
	headers   Headers
	jar       cookie.Jar
	body      []byte
	form      Form
	sink      upload.Sink
	upload    UploadWaiter
	keepAlive bool
	conn      transport.Conn
	ctx       context.Context
}

// NewRequest materializes the message. Headers are copied, as the message's storage may still
// be held by an assembler awaiting the rest of an upload.
func NewRequest(msg Message) *Request {
	headers := kv.New()
	if msg.Headers != nil {
		headers = msg.Headers.Clone()
	}

	scheme, authority, path, rawQuery := splitTarget(msg.Target)
	// decoding errors are tolerated, the raw value is kept instead
	buff := make([]byte, 0, len(path)+len(rawQuery))
	decodedPath, buff, err := urlencoded.DecodeString(path, buff)
	if err != nil {
		decodedPath = path
	}

	query := kv.New()
	_, _ = qparams.Parse(uf.S2B(rawQuery), buff, qparams.Into(query), urlencoded.ExtendedDecode, "")

	jar := cookie.NewJar()
	for value := range headers.Values("cookie") {
		cookie.Parse(jar, value)
	}

	host := headers.Value("host")
	if len(host) == 0 {
		host = authority
	}

	return &Request{
		id:        msg.ID,
		method:    msg.Method,
		target:    msg.Target,
		scheme:    scheme,
		host:      host,
		path:      decodedPath,
		protocol:  msg.Protocol,
		query:     query,
		headers:   headers,
		jar:       jar,
		body:      msg.Body,
		form:      parseForm(headers.Value("content-type"), msg.Body),
		sink:      msg.Sink,
		upload:    msg.Upload,
		keepAlive: strcomp.EqualFold(strings.TrimSpace(headers.Value("connection")), "keep-alive"),
		conn:      msg.Conn,
		ctx:       zeroContext,
	}
}

// splitTarget separates a request target into its components. Scheme and authority are
// present only for absolute-form targets.
func splitTarget(target string) (scheme, authority, path, query string) {
	if sep := strings.Index(target, "://"); sep > 0 && !strings.ContainsAny(target[:sep], "/?") {
		scheme, target = strings.ToLower(target[:sep]), target[sep+len("://"):]
		if slash := strings.IndexAny(target, "/?"); slash != -1 {
			authority, target = target[:slash], target[slash:]
		} else {
			authority, target = target, "/"
		}

		if len(target) == 0 || target[0] == '?' {
			target = "/" + target
		}
	}

	path, query, _ = strings.Cut(target, "?")
	return scheme, authority, path, query
}

func parseForm(contentType string, body []byte) Form {
	form := kv.New()
	if len(body) == 0 || mime.IsMultipart(contentType) ||
		(len(contentType) > 0 && mime.Complies(mime.JSON, contentType)) {
		return form
	}

	// a malformed form is not a reason to reject the request, the partial result is kept
	_, _ = qparams.Parse(body, make([]byte, 0, len(body)), qparams.Into(form), urlencoded.ExtendedDecode, "")
	return form
}

// ID returns the unique request identifier. It's the same identifier the upload sink and
// the completion signal are keyed with.
func (r *Request) ID() string {
	return r.id
}

func (r *Request) Method() method.Method {
	return r.method
}

// URL returns the raw request target as it was received.
func (r *Request) URL() string {
	return r.target
}

// Path is the percent-decoded path of the target.
func (r *Request) Path() string {
	return r.path
}

func (r *Request) Query() Query {
	return r.query
}

// Scheme is set only for absolute-form request targets, e.g. `GET http://example.com/ HTTP/1.1`.
func (r *Request) Scheme() string {
	return r.scheme
}

func (r *Request) Host() string {
	return r.host
}

func (r *Request) Protocol() string {
	return r.protocol
}

// Headers holds non-normalized header pairs, even though lookup is case-insensitive. Header keys
// and values aren't validated, therefore may contain ASCII-nonprintable and/or Unicode characters.
func (r *Request) Headers() Headers {
	return r.headers
}

// Header returns the value of the header. If there are multiple, the first one is returned.
func (r *Request) Header(key string) string {
	return r.headers.Value(key)
}

// Cookies returns a cookie jar. Malformed pairs are silently dropped.
func (r *Request) Cookies() cookie.Jar {
	return r.jar
}

func (r *Request) Cookie(key string) string {
	return r.jar.Value(key)
}

// Body returns the raw body. It is always empty for multipart requests, as those are streamed
// directly into the upload sink.
func (r *Request) Body() []byte {
	return r.body
}

// Form returns URL-encoded form values. For multipart requests, the form is available only after
// the upload is done.
func (r *Request) Form() Form {
	if r.sink != nil {
		if !r.UploadDone() {
			return kv.New()
		}

		return r.sink.Fields()
	}

	return r.form
}

// JSON decodes the body as a JSON object. Non-JSON requests return nil without an error.
func (r *Request) JSON() (map[string]any, error) {
	if !r.isJSON() {
		return nil, nil
	}

	var object map[string]any
	if err := r.DecodeJSON(&object); err != nil {
		return nil, err
	}

	return object, nil
}

// DecodeJSON unmarshalls the body into the model, which must be a pointer.
func (r *Request) DecodeJSON(model any) error {
	iterator := json.ConfigDefault.BorrowIterator(r.body)
	iterator.ReadVal(model)
	err := iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

func (r *Request) isJSON() bool {
	contentType := r.headers.Value("content-type")
	return len(contentType) > 0 && mime.Complies(mime.JSON, contentType)
}

// Multipart indicates, whether the request body is a streaming multipart upload.
func (r *Request) Multipart() bool {
	return r.sink != nil
}

// Uploaded blocks until the multipart upload is over or the context is done. It returns
// immediately for non-multipart requests.
func (r *Request) Uploaded(ctx context.Context) error {
	if r.upload == nil {
		return nil
	}

	return r.upload.Wait(ctx)
}

// UploadDone reports whether the upload is over, without blocking.
func (r *Request) UploadDone() bool {
	if r.upload == nil {
		return true
	}

	select {
	case <-r.upload.Done():
		return true
	default:
		return false
	}
}

// Files returns the files stored by the upload sink. Empty until the upload is done.
func (r *Request) Files() []upload.File {
	if r.sink == nil || !r.UploadDone() {
		return nil
	}

	return r.sink.Files()
}

// KeepAlive reports whether the client asked to keep the connection alive.
func (r *Request) KeepAlive() bool {
	return r.keepAlive
}

// Conn returns the connection the request was received from. The request doesn't own it.
func (r *Request) Conn() transport.Conn {
	return r.conn
}

// Remote is a shorthand for Conn().Remote().
func (r *Request) Remote() net.Addr {
	if r.conn == nil {
		return nil
	}

	return r.conn.Remote()
}

func (r *Request) Context() context.Context {
	return r.ctx
}

// WithContext returns a shallow copy of the request carrying the passed context.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	return &clone
}

// Respond returns a new Response builder.
func (r *Request) Respond() *Response {
	return NewResponse()
}
