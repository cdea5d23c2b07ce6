package router

import (
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/stitch/config"
	"github.com/indigo-web/stitch/http"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/internal/completion"
	"github.com/indigo-web/stitch/internal/transport"
	"github.com/indigo-web/stitch/internal/transport/http1"
	stitchtransport "github.com/indigo-web/stitch/transport"
	"github.com/indigo-web/stitch/upload"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type registry = map[stitchtransport.ConnID]*http1.Assembler

// Router dispatches raw data of connections to their assemblers. Every connection has at
// most one primary assembler, serving a request which isn't handed off yet, and at most one
// transfer assembler, which keeps streaming a multipart body of a request that is already
// handed off. The transfer always takes precedence, so no new request is started on the
// connection until the upload is over.
//
// Data of a single connection must be dispatched sequentially. Different connections may
// be dispatched concurrently.
type Router struct {
	cfg    *config.Config
	sinks  upload.Factory
	signal completion.Signaller
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	assemblers registry
	transfers  registry
}

func New(cfg *config.Config, sinks upload.Factory, signal completion.Signaller, logger *zap.Logger) *Router {
	return &Router{
		cfg:        cfg,
		sinks:      sinks,
		signal:     signal,
		logger:     logger,
		now:        time.Now,
		assemblers: make(registry),
		transfers:  make(registry),
	}
}

// Dispatch feeds the data to the assembler of the connection. It returns a request as soon as
// it's ready to be handled. Multipart requests are returned right after their head is parsed;
// their body keeps being streamed by the following calls, and the completion is reported via
// the request's Uploaded.
//
// Faults are reported to the client and returned for logging purposes only, the router has
// already taken care of the connection.
func (r *Router) Dispatch(conn stitchtransport.Conn, data []byte) (*http.Request, error) {
	id := conn.ID()

	r.mu.Lock()
	if transfer, found := r.transfers[id]; found {
		r.mu.Unlock()
		return nil, r.continueTransfer(conn, transfer, data)
	}

	assembler, found := r.assemblers[id]
	if !found {
		assembler = http1.NewAssembler(uniuri.New(), r.cfg, r.sinks)
		r.assemblers[id] = assembler
	}
	r.mu.Unlock()

	state, err := assembler.Feed(data)
	if err != nil {
		r.forget(r.assemblers, id)
		r.reject(conn, assembler.ID(), err)
		return nil, err
	}

	if assembler.Multipart() {
		request := r.materialize(conn, assembler)

		r.mu.Lock()
		delete(r.assemblers, id)
		if state == transport.Incomplete {
			r.transfers[id] = assembler
		}
		r.mu.Unlock()

		if state == transport.Complete {
			r.signal.Signal(assembler.ID())
		}

		return request, nil
	}

	switch state {
	case transport.Complete:
		request := r.materialize(conn, assembler)
		r.forget(r.assemblers, id)
		r.signal.Signal(assembler.ID())

		return request, nil
	case transport.Invalid:
		r.forget(r.assemblers, id)
		r.logger.Debug("malformed request line, closing the connection",
			zap.Uint64("conn", uint64(id)),
		)
		_ = conn.Close()
	}

	return nil, nil
}

func (r *Router) continueTransfer(conn stitchtransport.Conn, transfer *http1.Assembler, data []byte) error {
	id := conn.ID()

	state, err := transfer.Feed(data)
	if err != nil {
		// the response is already in the hands of the handler, so nothing can be written
		// anymore. The only thing left is to drop the connection
		r.forget(r.transfers, id)
		r.signal.Fail(transfer.ID(), err)
		r.logger.Warn("upload failed",
			zap.Uint64("conn", uint64(id)),
			zap.String("request", transfer.ID()),
			zap.Error(err),
		)
		_ = conn.Close()

		return err
	}

	if state == transport.Complete {
		r.forget(r.transfers, id)
		r.signal.Signal(transfer.ID())
	}

	return nil
}

// materialize builds the request and registers its completion future. It must be called
// before the assembler is removed from its registry.
func (r *Router) materialize(conn stitchtransport.Conn, assembler *http1.Assembler) *http.Request {
	msg := assembler.Message()
	msg.Conn = conn
	msg.Upload = r.signal.Expect(assembler.ID())

	return http.NewRequest(msg)
}

// reject responds with the fault. The connection is closed if its framing is lost, as there's
// no way to find where the next request begins.
func (r *Router) reject(conn stitchtransport.Conn, requestID string, fault error) {
	closing := status.BreaksFraming(fault)
	response := http.NewResponse().Error(fault)
	for key, value := range r.cfg.Headers.Default {
		response.Header(key, value)
	}

	if closing {
		response.Header("Connection", "close")
	}

	r.logger.Info("rejected request",
		zap.Uint64("conn", uint64(conn.ID())),
		zap.String("request", requestID),
		zap.Bool("closing", closing),
		zap.Error(fault),
	)

	if err := conn.Write(http1.Serialize(nil, response, r.now())); err != nil {
		closing = true
	}

	if closing {
		_ = conn.Close()
	}
}

func (r *Router) forget(reg registry, id stitchtransport.ConnID) {
	r.mu.Lock()
	delete(reg, id)
	r.mu.Unlock()
}

// Forget discards everything related to the connection. Incomplete uploads are aborted,
// their requests' completion fails with status.ErrUploadAborted.
func (r *Router) Forget(id stitchtransport.ConnID) error {
	r.mu.Lock()
	assembler := r.assemblers[id]
	transfer := r.transfers[id]
	delete(r.assemblers, id)
	delete(r.transfers, id)
	r.mu.Unlock()

	var err error

	if assembler != nil {
		err = multierr.Append(err, assembler.Abort())
	}

	if transfer != nil {
		err = multierr.Append(err, transfer.Abort())
		r.signal.Fail(transfer.ID(), status.ErrUploadAborted)
	}

	return err
}

// Pending returns the number of primary and transfer entries respectively.
func (r *Router) Pending() (primary, transfers int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.assemblers), len(r.transfers)
}
