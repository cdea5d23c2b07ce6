package http1

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/stitch/config"
	"github.com/indigo-web/stitch/http/method"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/internal/transport"
	"github.com/indigo-web/stitch/kv"
	"github.com/indigo-web/stitch/upload"
	"github.com/stretchr/testify/require"
)

func getAssembler(t *testing.T) (*Assembler, *config.Config) {
	cfg := config.Default()
	cfg.Upload.Dir = filepath.Join(t.TempDir(), "uploads")
	return NewAssembler("req-id", cfg, upload.NewDiskFactory(cfg.Upload)), cfg
}

func splitIntoParts(req []byte, n int) (parts [][]byte) {
	for i := 0; i < len(req); i += n {
		end := i + n
		if end > len(req) {
			end = len(req)
		}

		parts = append(parts, req[i:end])
	}

	return parts
}

// feedPartially feeds the request by n-sized parts, requiring every but the last one
// to result in Incomplete.
func feedPartially(t *testing.T, a *Assembler, request []byte, n int) (transport.RequestState, error) {
	parts := splitIntoParts(request, n)
	for _, part := range parts[:len(parts)-1] {
		state, err := a.Feed(part)
		require.NoError(t, err)
		require.Equal(t, transport.Incomplete, state)
	}

	return a.Feed(parts[len(parts)-1])
}

func TestAssembler_GET(t *testing.T) {
	request := []byte("GET /hello?a=b HTTP/1.1\r\nHost: localhost\r\nAccept: */*\r\n\r\n")

	for n := 1; n <= len(request); n++ {
		t.Run(fmt.Sprintf("by %d bytes", n), func(t *testing.T) {
			a, _ := getAssembler(t)
			state, err := feedPartially(t, a, request, n)
			require.NoError(t, err)
			require.Equal(t, transport.Complete, state)

			msg := a.Message()
			require.Equal(t, "req-id", msg.ID)
			require.Equal(t, method.GET, msg.Method)
			require.Equal(t, "/hello?a=b", msg.Target)
			require.Equal(t, "HTTP/1.1", msg.Protocol)
			require.Equal(t, []kv.Pair{{"Host", "localhost"}, {"Accept", "*/*"}}, msg.Headers.Expose())
			require.Empty(t, msg.Body)
		})
	}

	t.Run("announced body is ignored", func(t *testing.T) {
		a, _ := getAssembler(t)
		state, err := a.Feed([]byte("GET / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"))
		require.NoError(t, err)
		require.Equal(t, transport.Complete, state)
		require.Empty(t, a.Message().Body)
	})

	t.Run("other bodiless methods", func(t *testing.T) {
		for _, m := range []string{"HEAD", "OPTIONS", "TRACE"} {
			a, _ := getAssembler(t)
			state, err := a.Feed([]byte(m + " * HTTP/1.1\r\n\r\n"))
			require.NoError(t, err)
			require.Equal(t, transport.Complete, state, m)
		}
	})

	t.Run("headers", func(t *testing.T) {
		a, _ := getAssembler(t)
		noise := uniuri.NewLen(32)
		state, err := a.Feed([]byte(
			"GET / HTTP/1.1\r\nX-Noise: " + noise + "\r\nmalformed line\r\nhost: a\r\nHOST: b\r\n\r\n",
		))
		require.NoError(t, err)
		require.Equal(t, transport.Complete, state)

		headers := a.Message().Headers
		require.Equal(t, 2, headers.Len())
		require.Equal(t, noise, headers.Value("x-noise"))
		require.Equal(t, "b", headers.Value("Host"))
		require.Equal(t, []kv.Pair{{"X-Noise", noise}, {"HOST", "b"}}, headers.Expose())
	})

	t.Run("feed after completion", func(t *testing.T) {
		a, _ := getAssembler(t)
		_, err := a.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		state, err := a.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
		require.ErrorIs(t, err, status.ErrAssemblerFinished)
		require.Equal(t, transport.Complete, state)
	})
}

func TestAssembler_POST(t *testing.T) {
	const body = "name=Pavlo&city=Kyiv"
	request := []byte(fmt.Sprintf(
		"POST /submit HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: %d\r\n\r\n%s",
		len(body), body,
	))

	for _, n := range []int{len(request), len(request)/2 + 1, 7, 1} {
		t.Run(fmt.Sprintf("by %d bytes", n), func(t *testing.T) {
			a, _ := getAssembler(t)
			state, err := feedPartially(t, a, request, n)
			require.NoError(t, err)
			require.Equal(t, transport.Complete, state)
			require.Equal(t, body, string(a.Message().Body))
			require.Equal(t, uint64(len(body)), a.Received())
			require.False(t, a.Multipart())
		})
	}

	t.Run("head and body in separate feeds", func(t *testing.T) {
		a, _ := getAssembler(t)
		head := request[:len(request)-len(body)]
		state, err := a.Feed(head)
		require.NoError(t, err)
		require.Equal(t, transport.Incomplete, state)
		state, err = a.Feed([]byte(body))
		require.NoError(t, err)
		require.Equal(t, transport.Complete, state)
		require.Equal(t, body, string(a.Message().Body))
	})

	t.Run("empty body", func(t *testing.T) {
		a, _ := getAssembler(t)
		state, err := a.Feed([]byte("DELETE /item HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 0\r\n\r\n"))
		require.NoError(t, err)
		require.Equal(t, transport.Complete, state)
		require.Equal(t, method.DELETE, a.Method())
	})

	t.Run("overflow on the crossing call", func(t *testing.T) {
		a, _ := getAssembler(t)
		state, err := a.Feed([]byte("PUT / HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhel"))
		require.NoError(t, err)
		require.Equal(t, transport.Incomplete, state)
		_, err = a.Feed([]byte("lo!"))
		require.ErrorIs(t, err, status.ErrContentLengthMismatch)
		require.Equal(t, "Content-Length is not match", status.MessageOf(err))
		require.Equal(t, uint64(3), a.Received())
	})

	t.Run("overflow in the first feed", func(t *testing.T) {
		a, _ := getAssembler(t)
		_, err := a.Feed([]byte("PUT / HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nhello"))
		require.ErrorIs(t, err, status.ErrContentLengthMismatch)
	})
}

func TestAssembler_Faults(t *testing.T) {
	tcs := []struct {
		Name    string
		Request string
		Err     error
	}{
		{
			Name:    "no content length",
			Request: "POST / HTTP/1.1\r\nContent-Type: text/plain\r\n\r\n",
			Err:     status.ErrContentLengthNotSet,
		},
		{
			Name:    "malformed content length",
			Request: "POST / HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: -1\r\n\r\n",
			Err:     status.ErrBadContentLength,
		},
		{
			Name:    "no content type",
			Request: "PATCH / HTTP/1.1\r\nContent-Length: 1\r\n\r\n",
			Err:     status.ErrContentTypeNotSet,
		},
		{
			Name:    "no boundary",
			Request: "POST / HTTP/1.1\r\nContent-Type: multipart/form-data\r\nContent-Length: 1\r\n\r\n",
			Err:     status.ErrBoundaryNotSet,
		},
		{
			Name:    "empty boundary",
			Request: "POST / HTTP/1.1\r\nContent-Type: multipart/form-data; boundary=\"\"\r\nContent-Length: 1\r\n\r\n",
			Err:     status.ErrBoundaryNotSet,
		},
		{
			Name:    "chunked",
			Request: "POST / HTTP/1.1\r\nContent-Type: text/plain\r\nTransfer-Encoding: chunked\r\n\r\n",
			Err:     status.ErrTransferEncoding,
		},
		{
			Name:    "chunked with content length",
			Request: "POST / HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n",
			Err:     status.ErrTransferEncoding,
		},
		{
			Name:    "too large body",
			Request: "POST / HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 99999999999\r\n\r\n",
			Err:     status.ErrBodyTooLarge,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			a, _ := getAssembler(t)
			state, err := a.Feed([]byte(tc.Request))
			require.ErrorIs(t, err, tc.Err)
			require.Equal(t, transport.Invalid, state)
			_, err = a.Feed([]byte("more"))
			require.ErrorIs(t, err, status.ErrAssemblerFinished)
		})
	}

	t.Run("announced body breaks framing", func(t *testing.T) {
		for _, request := range []string{
			"PATCH / HTTP/1.1\r\nContent-Length: 1\r\n\r\n",
			"POST / HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: nope\r\n\r\n",
			"POST / HTTP/1.1\r\nContent-Type: multipart/form-data\r\nContent-Length: 1\r\n\r\n",
			"POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n",
		} {
			a, _ := getAssembler(t)
			_, err := a.Feed([]byte(request))
			require.ErrorIs(t, err, status.ErrFramingLost, request)
			require.True(t, status.BreaksFraming(err), request)
		}
	})

	t.Run("no announced body keeps framing", func(t *testing.T) {
		a, _ := getAssembler(t)
		_, err := a.Feed([]byte("POST / HTTP/1.1\r\nContent-Type: text/plain\r\n\r\n"))
		require.ErrorIs(t, err, status.ErrContentLengthNotSet)
		require.False(t, status.BreaksFraming(err))
	})

	t.Run("content-length messages", func(t *testing.T) {
		a, _ := getAssembler(t)
		_, err := a.Feed([]byte("POST / HTTP/1.1\r\n\r\n"))
		require.Equal(t, "Content-Length is not set", status.MessageOf(err))
	})

	t.Run("too large head", func(t *testing.T) {
		a, cfg := getAssembler(t)
		state, err := a.Feed([]byte("GET / HTTP/1.1\r\n"))
		require.NoError(t, err)
		require.Equal(t, transport.Incomplete, state)

		noise := "X-Noise: " + strings.Repeat("a", cfg.Headers.MaxHeadSize) + "\r\n"
		_, err = a.Feed([]byte(noise))
		require.ErrorIs(t, err, status.ErrHeaderFieldsTooLarge)
	})

	t.Run("head exceeding the limit by its terminator", func(t *testing.T) {
		a, cfg := getAssembler(t)
		cfg.Headers.MaxHeadSize = len("GET / HTTP/1.1")
		_, err := a.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
		require.ErrorIs(t, err, status.ErrHeaderFieldsTooLarge)
	})
}

func TestAssembler_Invalid(t *testing.T) {
	for _, request := range []string{
		"GET /\r\n\r\n",
		"GET / HTTP/1.1 extra\r\n\r\n",
		"GET  / HTTP/1.1\r\n\r\n",
		"CONNECT example.com:443 HTTP/1.1\r\n\r\n",
		"BREW /pot HTTP/1.1\r\n\r\n",
	} {
		a, _ := getAssembler(t)
		state, err := a.Feed([]byte(request))
		require.NoError(t, err, request)
		require.Equal(t, transport.Invalid, state, request)
	}
}

const (
	boundary      = "----WebKitFormBoundary7MA4YWxkTrZu0gW"
	multipartBody = "------WebKitFormBoundary7MA4YWxkTrZu0gW\r\n" +
		"Content-Disposition: form-data; name=\"username\"\r\n\r\n" +
		"Alice\r\n" +
		"------WebKitFormBoundary7MA4YWxkTrZu0gW\r\n" +
		"Content-Disposition: form-data; name=\"avatar\"; filename=\"profile.png\"\r\n" +
		"Content-Type: image/png\r\n\r\n" +
		"[binary file content]\r\n" +
		"------WebKitFormBoundary7MA4YWxkTrZu0gW--\r\n"
)

func multipartHead(length int) string {
	return fmt.Sprintf(
		"POST /upload HTTP/1.1\r\nContent-Type: multipart/form-data; boundary=%s\r\nContent-Length: %d\r\n\r\n",
		boundary, length,
	)
}

type failingSink struct {
	aborted bool
}

func (f *failingSink) Push([]byte) error { return errors.New("disk is full") }
func (f *failingSink) Close() error { return nil }

func (f *failingSink) Abort() error {
	f.aborted = true
	return nil
}

func (f *failingSink) Files() []upload.File { return nil }
func (f *failingSink) Fields() *kv.Storage { return kv.New() }

func TestAssembler_Multipart(t *testing.T) {
	t.Run("streamed over several feeds", func(t *testing.T) {
		a, cfg := getAssembler(t)
		state, err := a.Feed([]byte(multipartHead(len(multipartBody)) + multipartBody[:10]))
		require.NoError(t, err)
		require.Equal(t, transport.Incomplete, state)
		require.True(t, a.Multipart())
		require.Equal(t, uint64(10), a.Received())

		msg := a.Message()
		require.NotNil(t, msg.Sink)
		require.Empty(t, msg.Body)

		state, err = a.Feed([]byte(multipartBody[10:50]))
		require.NoError(t, err)
		require.Equal(t, transport.Incomplete, state)

		state, err = a.Feed([]byte(multipartBody[50:]))
		require.NoError(t, err)
		require.Equal(t, transport.Complete, state)

		files := msg.Sink.Files()
		require.Len(t, files, 1)
		require.Equal(t, "profile.png", files[0].Name)
		require.Equal(t, "Alice", msg.Sink.Fields().Value("username"))

		entries, err := os.ReadDir(cfg.Upload.Dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("malformed form", func(t *testing.T) {
		a, _ := getAssembler(t)
		const garbage = "definitely not a multipart form"
		_, err := a.Feed([]byte(multipartHead(len(garbage)) + garbage))
		require.ErrorIs(t, err, status.ErrUploadFailed)
	})

	t.Run("push failure aborts the sink", func(t *testing.T) {
		sink := new(failingSink)
		cfg := config.Default()
		a := NewAssembler("id", cfg, func(string, string) (upload.Sink, error) {
			return sink, nil
		})

		_, err := a.Feed([]byte(multipartHead(5) + "hello"))
		require.ErrorIs(t, err, status.ErrUploadFailed)
		require.ErrorContains(t, err, "disk is full")
		require.True(t, sink.aborted)
	})

	t.Run("factory failure", func(t *testing.T) {
		a := NewAssembler("id", config.Default(), func(string, string) (upload.Sink, error) {
			return nil, errors.New("no space left")
		})

		_, err := a.Feed([]byte(multipartHead(5)))
		require.ErrorIs(t, err, status.ErrUploadFailed)
	})

	t.Run("abort removes files", func(t *testing.T) {
		a, cfg := getAssembler(t)
		_, err := a.Feed([]byte(multipartHead(len(multipartBody)) + multipartBody[:len(multipartBody)-5]))
		require.NoError(t, err)
		require.NoError(t, a.Abort())

		entries, err := os.ReadDir(cfg.Upload.Dir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}
