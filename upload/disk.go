package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/stitch/config"
	"github.com/indigo-web/stitch/http/mime"
	"github.com/indigo-web/stitch/kv"
	"go.uber.org/multierr"
)

var (
	ErrAborted       = errors.New("upload is aborted")
	ErrSinkClosed    = errors.New("sink is already closed")
	ErrFieldTooLarge = errors.New("multipart field value is too large")
)

// DiskSink streams files of a multipart form directly into the upload directory. The form is
// decoded by a separate goroutine, fed through a synchronous pipe, so every Push returns only
// after the chunk was fully consumed by the decoder.
type DiskSink struct {
	cfg       config.Upload
	requestID string
	writer    *io.PipeWriter
	done      chan struct{}
	closed    bool
	// fields below are owned by the decoder goroutine until done is closed
	err    error
	stored []string
	files  []File
	fields *kv.Storage
}

// NewDiskFactory returns a Factory producing DiskSink instances storing into cfg.Dir.
func NewDiskFactory(cfg config.Upload) Factory {
	return func(requestID, boundary string) (Sink, error) {
		return NewDiskSink(cfg, requestID, boundary)
	}
}

func NewDiskSink(cfg config.Upload, requestID, boundary string) (*DiskSink, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	reader, writer := io.Pipe()
	sink := &DiskSink{
		cfg:       cfg,
		requestID: requestID,
		writer:    writer,
		done:      make(chan struct{}),
		fields:    kv.New(),
	}

	go sink.decode(reader, multipart.NewReader(reader, boundary))

	return sink, nil
}

func (d *DiskSink) Push(chunk []byte) error {
	if d.closed {
		return ErrSinkClosed
	}

	_, err := d.writer.Write(chunk)
	return err
}

func (d *DiskSink) Close() error {
	if d.closed {
		return ErrSinkClosed
	}

	d.closed = true
	_ = d.writer.Close()
	<-d.done

	return d.err
}

// Abort interrupts the decoding and removes every file stored so far. It is safe to call it
// after Close.
func (d *DiskSink) Abort() (err error) {
	d.closed = true
	_ = d.writer.CloseWithError(ErrAborted)
	<-d.done

	for _, path := range d.stored {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}

	d.stored, d.files = nil, nil

	return err
}

func (d *DiskSink) Files() []File {
	return d.files
}

func (d *DiskSink) Fields() *kv.Storage {
	return d.fields
}

func (d *DiskSink) decode(reader *io.PipeReader, form *multipart.Reader) {
	defer close(d.done)

	if err := d.consume(form); err != nil {
		d.err = err
		// unblocks the pending and all the following pushes
		_ = reader.CloseWithError(err)
		return
	}

	// the epilogue is allowed by the grammar, however it carries nothing useful
	_, d.err = io.Copy(io.Discard, reader)
}

func (d *DiskSink) consume(form *multipart.Reader) error {
	for {
		part, err := form.NextPart()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		if len(part.FileName()) == 0 {
			err = d.readField(part)
		} else {
			err = d.storeFile(part)
		}

		_ = part.Close()

		if err != nil {
			return err
		}
	}
}

func (d *DiskSink) readField(part *multipart.Part) error {
	value, err := io.ReadAll(io.LimitReader(part, d.cfg.MaxFieldSize+1))
	if err != nil {
		return err
	}

	if int64(len(value)) > d.cfg.MaxFieldSize {
		return fmt.Errorf("%w: %s", ErrFieldTooLarge, part.FormName())
	}

	d.fields.Add(part.FormName(), string(value))
	return nil
}

func (d *DiskSink) storeFile(part *multipart.Part) error {
	path := filepath.Join(d.cfg.Dir, d.requestID+"_"+uniuri.NewLen(d.cfg.NameLength))
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, d.cfg.FilePerm)
	if err != nil {
		return err
	}

	d.stored = append(d.stored, path)

	size, err := io.Copy(fd, part)
	if closeErr := fd.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	contentType := part.Header.Get("Content-Type")
	if len(contentType) == 0 {
		contentType = mime.Plain
	}

	d.files = append(d.files, File{
		Field:       part.FormName(),
		Name:        part.FileName(),
		Path:        path,
		ContentType: contentType,
		Size:        size,
	})

	return nil
}
