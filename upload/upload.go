package upload

import "github.com/indigo-web/stitch/kv"

// File describes a single file, received as a part of multipart/form-data request and stored
// by a Sink.
type File struct {
	// Field is the form field name the file was submitted under.
	Field string
	// Name is the client-side file name.
	Name string
	// Path is where the file contents are stored now.
	Path        string
	ContentType string
	Size        int64
}

// Sink consumes a multipart body as it arrives, chunk by chunk. Push must not retain the
// passed slice after returning, as it is owned by the connection layer and reused.
//
// Close is called exactly once after the last chunk of the body was pushed and reports whether
// the body was a well-formed multipart form. Abort may be called at any moment instead of Close
// (or after a failed Close) and discards everything stored so far.
type Sink interface {
	Push(chunk []byte) error
	Close() error
	Abort() error
	// Files and Fields are only meaningful after Close returned successfully.
	Files() []File
	Fields() *kv.Storage
}

// Factory instantiates a new Sink for every multipart request.
type Factory func(requestID, boundary string) (Sink, error)
