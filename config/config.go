package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

type (
	Headers struct {
		// MaxHeadSize limits the amount of bytes a request line together with headers may occupy,
		// including the terminating blank line. Exceeding it results in
		// status.ErrHeaderFieldsTooLarge and the connection being closed.
		MaxHeadSize int
		// Default headers are headers to be included into every response implicitly, unless
		// explicitly overridden.
		Default map[string]string `test:"nullable"`
	}

	Body struct {
		// MaxSize describes the maximal declared Content-Length which will be accepted. Requests
		// declaring more are rejected with status.ErrBodyTooLarge. In order to disable the setting,
		// use the math.MaxUint64 value.
		MaxSize uint64
	}

	Upload struct {
		// Dir is a directory, where multipart files are streamed into.
		Dir string
		// FilePerm is applied to every stored file.
		FilePerm os.FileMode
		// NameLength is the length of randomly generated stored file names.
		NameLength int
		// MaxFieldSize limits in-memory multipart values (parts without a filename).
		MaxFieldSize int64
	}

	NET struct {
		// Multicore enables gnet's multicore mode, running an event-loop per CPU core.
		Multicore bool
		// ReadBufferCap is the per-connection read buffer capacity passed down to gnet.
		ReadBufferCap int
		// KeepAliveTimeout is announced to the clients in the Keep-Alive header and is also used
		// as a TCP keep-alive period.
		KeepAliveTimeout time.Duration
		// KeepAliveMax is the `max` parameter of the Keep-Alive header.
		KeepAliveMax int
	}

	Handler struct {
		// Timeout limits a single handler run. When elapsed, 408 Request Timeout is written and
		// the connection gets closed.
		Timeout time.Duration
		// Workers is the size of the goroutine pool running handlers.
		Workers int
	}

	Log struct {
		// Level is one of zap's levels: debug, info, warn, error.
		Level string
		// File enables logging into a rotating file instead of stderr.
		File       string `test:"nullable"`
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool `test:"nullable"`
	}
)

// Config holds settings used across various parts of stitch, mainly restrictions, limitations
// and server tunables.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	Headers Headers
	Body    Body
	Upload  Upload
	NET     NET
	Handler Handler
	Log     Log
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Headers: Headers{
			// 16kb is pretty tolerant, as most web-entities limit it to 4-8kb. However, there
			// also might be extremely long cookies.
			MaxHeadSize: 16 * 1024,
			Default: map[string]string{
				"Server": "stitch",
			},
		},
		Body: Body{
			MaxSize: 512 * 1024 * 1024, // 512 megabytes
		},
		Upload: Upload{
			Dir:          filepath.Join(os.TempDir(), "stitch-uploads"),
			FilePerm:     0o644,
			NameLength:   32,
			MaxFieldSize: 1024 * 1024,
		},
		NET: NET{
			Multicore:        true,
			ReadBufferCap:    64 * 1024,
			KeepAliveTimeout: 5 * time.Second,
			KeepAliveMax:     1000,
		},
		Handler: Handler{
			Timeout: 60 * time.Second,
			Workers: 1024,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

var (
	ErrNoUploadDir    = errors.New("upload directory is not set")
	ErrNonPositive    = errors.New("size limits must be positive")
	ErrNoWorkers      = errors.New("handler pool must have at least one worker")
	ErrHandlerTimeout = errors.New("handler timeout must be positive")
)

// Validate reports the first found misconfiguration.
func (c *Config) Validate() error {
	switch {
	case len(c.Upload.Dir) == 0:
		return ErrNoUploadDir
	case c.Headers.MaxHeadSize <= 0, c.Upload.NameLength <= 0, c.Upload.MaxFieldSize <= 0:
		return ErrNonPositive
	case c.Handler.Workers <= 0:
		return ErrNoWorkers
	case c.Handler.Timeout <= 0:
		return ErrHandlerTimeout
	}

	return nil
}
