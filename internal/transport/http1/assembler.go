package http1

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/indigo-web/stitch/config"
	"github.com/indigo-web/stitch/http"
	"github.com/indigo-web/stitch/http/method"
	"github.com/indigo-web/stitch/http/mime"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/internal/transport"
	"github.com/indigo-web/stitch/kv"
	"github.com/indigo-web/stitch/upload"
)

var _ transport.Assembler = new(Assembler)

const headTerminator = "\r\n\r\n"

// bodyPrealloc caps the initial body buffer, so a lying Content-Length doesn't reserve
// a lot of memory in advance.
const bodyPrealloc = 64 * 1024

// Assembler is a stream-based HTTP/1.1 request assembler. It is fed with arbitrary slices of
// a single request, so the request may be split at any byte. The head is accumulated until the
// blank line is met, the body is either accumulated in memory or, in case of multipart forms,
// streamed into the upload sink, so it never resides in memory as a whole.
//
// Assembler isn't reusable: it serves exactly one request.
type Assembler struct {
	id       string
	cfg      *config.Config
	sinks    upload.Factory
	head     []byte
	method   method.Method
	target   string
	protocol string
	headers  *kv.Storage
	// headParsed is set as soon as the head is parsed, so the following data is body
	headParsed    bool
	contentLength uint64
	received      uint64
	multipart     bool
	sink          upload.Sink
	body          []byte
	state         transport.RequestState
}

func NewAssembler(id string, cfg *config.Config, sinks upload.Factory) *Assembler {
	return &Assembler{
		id:      id,
		cfg:     cfg,
		sinks:   sinks,
		headers: kv.New(),
		state:   transport.Incomplete,
	}
}

// Feed consumes the next slice of the request. The passed slice isn't retained.
func (a *Assembler) Feed(data []byte) (transport.RequestState, error) {
	if a.state != transport.Incomplete {
		return a.state, status.ErrAssemblerFinished
	}

	if !a.headParsed {
		return a.feedHead(data)
	}

	return a.feedBody(data)
}

func (a *Assembler) feedHead(data []byte) (transport.RequestState, error) {
	// the terminator might have been split between the previous and the current feeds
	offset := max(len(a.head)-len(headTerminator)+1, 0)
	a.head = append(a.head, data...)

	end := bytes.Index(a.head[offset:], []byte(headTerminator))
	if end == -1 {
		if len(a.head) > a.cfg.Headers.MaxHeadSize {
			return a.fail(status.ErrHeaderFieldsTooLarge)
		}

		return transport.Incomplete, nil
	}

	end += offset
	if end+len(headTerminator) > a.cfg.Headers.MaxHeadSize {
		return a.fail(status.ErrHeaderFieldsTooLarge)
	}

	head, rest := string(a.head[:end]), a.head[end+len(headTerminator):]
	a.head = nil
	a.headParsed = true

	requestLine, fields, _ := strings.Cut(head, "\r\n")
	tokens := strings.Split(requestLine, " ")
	if len(tokens) != 3 {
		a.state = transport.Invalid
		return a.state, nil
	}

	a.method = method.Parse(tokens[0])
	a.target, a.protocol = tokens[1], tokens[2]
	a.parseHeaders(fields)

	switch {
	case a.method.Bodiless():
		// even if the body is announced, it's ignored
		a.state = transport.Complete
		return a.state, nil
	case !a.method.HasBody():
		a.state = transport.Invalid
		return a.state, nil
	}

	if err := a.prepareBody(); err != nil {
		if a.bodyAnnounced() {
			err = status.Wrap(err, status.ErrFramingLost)
		}

		return a.fail(err)
	}

	return a.feedBody(rest)
}

func (a *Assembler) parseHeaders(fields string) {
	for len(fields) > 0 {
		var line string
		line, fields, _ = strings.Cut(fields, "\r\n")
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}

		a.headers.Set(key, value)
	}
}

// bodyAnnounced reports whether body bytes may follow the head.
func (a *Assembler) bodyAnnounced() bool {
	return a.headers.Has("content-length") || a.headers.Has("transfer-encoding")
}

func (a *Assembler) prepareBody() error {
	if a.headers.Has("transfer-encoding") {
		return status.ErrTransferEncoding
	}

	rawLength, found := a.headers.Get("content-length")
	if !found {
		return status.ErrContentLengthNotSet
	}

	length, err := strconv.ParseUint(strings.TrimSpace(rawLength), 10, 64)
	if err != nil {
		return status.ErrBadContentLength
	}

	if length > a.cfg.Body.MaxSize {
		return status.ErrBodyTooLarge
	}

	a.contentLength = length

	contentType := a.headers.Value("content-type")
	if len(contentType) == 0 {
		return status.ErrContentTypeNotSet
	}

	if !mime.IsMultipart(contentType) {
		a.body = make([]byte, 0, min(length, bodyPrealloc))
		return nil
	}

	boundary, ok := mime.Boundary(contentType)
	if !ok {
		return status.ErrBoundaryNotSet
	}

	sink, err := a.sinks(a.id, boundary)
	if err != nil {
		return status.Wrap(status.ErrUploadFailed, err)
	}

	a.multipart, a.sink = true, sink

	return nil
}

func (a *Assembler) feedBody(data []byte) (transport.RequestState, error) {
	if a.received+uint64(len(data)) > a.contentLength {
		return a.fail(status.ErrContentLengthMismatch)
	}

	a.received += uint64(len(data))

	if a.multipart {
		if len(data) > 0 {
			if err := a.sink.Push(data); err != nil {
				return a.fail(status.Wrap(status.ErrUploadFailed, err))
			}
		}
	} else {
		a.body = append(a.body, data...)
	}

	if a.received < a.contentLength {
		return transport.Incomplete, nil
	}

	if a.multipart {
		if err := a.sink.Close(); err != nil {
			return a.fail(status.Wrap(status.ErrUploadFailed, err))
		}
	}

	a.state = transport.Complete

	return a.state, nil
}

// fail terminates the assembler, discarding everything uploaded so far.
func (a *Assembler) fail(err error) (transport.RequestState, error) {
	_ = a.Abort()
	return a.state, err
}

// Abort discards the assembler. Already stored upload files are removed.
func (a *Assembler) Abort() error {
	a.state = transport.Invalid
	a.head, a.body = nil, nil

	if a.sink == nil {
		return nil
	}

	return a.sink.Abort()
}

func (a *Assembler) ID() string {
	return a.id
}

// Multipart reports whether the body is being streamed into an upload sink. It's known only
// after the head is parsed.
func (a *Assembler) Multipart() bool {
	return a.multipart
}

func (a *Assembler) Method() method.Method {
	return a.method
}

// Received returns the number of body bytes consumed so far.
func (a *Assembler) Received() uint64 {
	return a.received
}

// Message returns what was assembled so far. For multipart requests, it's legal to call it
// while the body is still incomplete.
func (a *Assembler) Message() http.Message {
	return http.Message{
		ID:       a.id,
		Method:   a.method,
		Target:   a.target,
		Protocol: a.protocol,
		Headers:  a.headers,
		Body:     a.body,
		Sink:     a.sink,
	}
}
