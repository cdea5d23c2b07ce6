package server

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/stitch/config"
	"github.com/indigo-web/stitch/http"
	"github.com/indigo-web/stitch/http/status"
	"github.com/indigo-web/stitch/internal/router"
	"github.com/indigo-web/stitch/internal/timer"
	"github.com/indigo-web/stitch/internal/transport/http1"
	"github.com/indigo-web/stitch/transport"
	"github.com/panjf2000/ants/v2"
	gnet "github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// Handler produces a response for the request. Returning nil is equal to returning
// an empty 200 OK response.
type Handler func(*http.Request) *http.Response

// Hooks are notified about the lifecycle of the server. Both are optional.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Server connects gnet event-loops with the router. Raw data is dispatched right in the
// event-loop, while handlers are run by a bounded goroutine pool.
type Server struct {
	gnet.BuiltinEventEngine

	cfg     *config.Config
	router  *router.Router
	handler Handler
	hooks   Hooks
	logger  *zap.Logger
	pool    *ants.Pool
	buffers bytebufferpool.Pool
	lastID  atomic.Uint64
	clock   *timer.Clock

	mu      sync.Mutex
	engine  gnet.Engine
	running bool
}

var ErrNotRunning = errors.New("server is not running")

func New(cfg *config.Config, r *router.Router, handler Handler, hooks Hooks, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		router:  r,
		handler: handler,
		hooks:   hooks,
		logger:  logger,
	}

	pool, err := ants.NewPool(cfg.Handler.Workers, ants.WithPanicHandler(func(p any) {
		s.logger.Error("panic in the worker pool", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, err
	}

	s.pool = pool
	s.clock = timer.Start(timer.Resolution)

	return s, nil
}

// Run starts the event-loops and blocks until the server is stopped.
func (s *Server) Run(addr string) error {
	return gnet.Run(s, "tcp://"+addr,
		gnet.WithMulticore(s.cfg.NET.Multicore),
		gnet.WithReadBufferCap(s.cfg.NET.ReadBufferCap),
		gnet.WithTCPKeepAlive(s.cfg.NET.KeepAliveTimeout),
		gnet.WithLogger(s.logger.Sugar()),
	)
}

// Stop gracefully shuts down the event-loops and releases the worker pool.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	engine, running := s.engine, s.running
	s.running = false
	s.mu.Unlock()

	if !running {
		return ErrNotRunning
	}

	err := engine.Stop(ctx)
	s.clock.Stop()
	if releaseErr := s.pool.ReleaseTimeout(timeLeft(ctx)); err == nil {
		err = releaseErr
	}

	return err
}

func timeLeft(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return max(time.Until(deadline), 0)
	}

	return time.Second
}

func (s *Server) OnBoot(engine gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.engine, s.running = engine, true
	s.mu.Unlock()

	if s.hooks.OnStart != nil {
		s.hooks.OnStart()
	}

	return gnet.None
}

func (s *Server) OnShutdown(gnet.Engine) {
	if s.hooks.OnStop != nil {
		s.hooks.OnStop()
	}
}

func (s *Server) OnOpen(gc gnet.Conn) ([]byte, gnet.Action) {
	c := newConn(gc, transport.ConnID(s.lastID.Add(1)), &s.buffers)
	gc.SetContext(c)
	s.logger.Debug("connection opened",
		zap.Uint64("conn", uint64(c.ID())),
		zap.Stringer("remote", gc.RemoteAddr()),
	)

	return nil, gnet.None
}

func (s *Server) OnClose(gc gnet.Conn, err error) gnet.Action {
	c, ok := gc.Context().(*conn)
	if !ok {
		return gnet.None
	}

	if forgetErr := s.router.Forget(c.ID()); forgetErr != nil {
		s.logger.Warn("failed to clean up the connection",
			zap.Uint64("conn", uint64(c.ID())),
			zap.Error(forgetErr),
		)
	}

	s.logger.Debug("connection closed", zap.Uint64("conn", uint64(c.ID())), zap.Error(err))

	return gnet.None
}

func (s *Server) OnTraffic(gc gnet.Conn) gnet.Action {
	c, ok := gc.Context().(*conn)
	if !ok {
		return gnet.Close
	}

	data, err := gc.Next(-1)
	if err != nil {
		return gnet.Close
	}

	request, err := s.router.Dispatch(c, data)
	if err != nil {
		// the router has already responded and closed the connection if needed
		s.logger.Debug("request rejected", zap.Uint64("conn", uint64(c.ID())), zap.Error(err))
		return gnet.None
	}

	if request != nil {
		s.submit(request)
	}

	return gnet.None
}

func (s *Server) submit(request *http.Request) {
	err := s.pool.Submit(func() {
		s.handle(request)
	})
	if err != nil {
		s.logger.Warn("worker pool rejected the request", zap.String("request", request.ID()), zap.Error(err))
		s.respond(request, http.NewResponse().Code(status.ServiceUnavailable), true)
	}
}

// handle runs the handler within the timeout. If the timeout elapses first, the client gets
// 408 Request Timeout and the connection is closed; the response of the handler is dropped.
func (s *Server) handle(request *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Handler.Timeout)
	defer cancel()

	var once sync.Once
	stop := context.AfterFunc(ctx, func() {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}

		once.Do(func() {
			s.logger.Warn("handler timed out", zap.String("request", request.ID()))
			s.respond(request, http.NewResponse().Error(status.ErrRequestTimeout), true)
		})
	})
	defer stop()

	response := s.run(request.WithContext(ctx))
	once.Do(func() {
		s.respond(request, response, false)
	})
}

func (s *Server) run(request *http.Request) (response *http.Response) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("handler panicked",
				zap.String("request", request.ID()),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			response = http.NewResponse().Error(status.ErrInternalServerError)
		}
	}()

	if response = s.handler(request); response == nil {
		response = request.Respond()
	}

	return response
}

// respond writes the response, closing the connection afterwards unless it's kept alive.
func (s *Server) respond(request *http.Request, response *http.Response, closing bool) {
	closing = closing || !request.KeepAlive()
	s.decorate(response, closing)

	c := request.Conn()
	buf := s.buffers.Get()
	buf.B = http1.Serialize(buf.B[:0], response, s.clock.Now())

	var err error
	if pooled, ok := c.(*conn); ok {
		err = pooled.send(buf)
	} else {
		err = c.Write(buf.B)
		s.buffers.Put(buf)
	}

	if err != nil {
		s.logger.Debug("failed to write the response", zap.String("request", request.ID()), zap.Error(err))
		closing = true
	}

	if closing {
		_ = c.Close()
	}
}

func (s *Server) decorate(response *http.Response, closing bool) {
	headers := response.GetHeaders()
	for key, value := range s.cfg.Headers.Default {
		if !headers.Has(key) {
			response.Header(key, value)
		}
	}

	if closing {
		response.Header("Connection", "close")
		return
	}

	response.Header("Connection", "keep-alive")
	response.Header("Keep-Alive",
		"timeout="+strconv.Itoa(int(s.cfg.NET.KeepAliveTimeout.Seconds()))+
			", max="+strconv.Itoa(s.cfg.NET.KeepAliveMax),
	)
}
