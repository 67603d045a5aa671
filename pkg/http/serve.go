package xhttp

import (
	"net"
	"os"
	"time"

	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/valyala/fasthttp"
)

type Server = fasthttp.Server

// ServerOption carries the fasthttp settings the admin API tunes. Zero
// values fall back to fasthttp's own defaults.
type ServerOption struct {
	Name string

	// keep short; the admin API serves a handful of operators
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ReadBufferSize also caps the request header size.
	ReadBufferSize     int
	WriteBufferSize    int
	MaxRequestBodySize int
	Concurrency        int

	// Logger defaults to the package logger at NewServer time.
	Logger logger.Logger
}

// DefaultServerOption suits small JSON bodies. WriteTimeout has to outlive a
// deliver call, which waits on the messaging platform.
var DefaultServerOption = ServerOption{
	Name:               "report-dispatcher",
	IdleTimeout:        10 * time.Second,
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       30 * time.Second,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	MaxRequestBodySize: 1024 * 1024,
	Concurrency:        1024,
}

type Engine struct {
	*Router
	*Server
	middle []MiddlewareFunc
}

func NewServer(options ServerOption) *Engine {
	lg := options.Logger
	if lg == nil {
		lg = logger.GetLogger()
	}
	return &Engine{
		Router: NewRouter(),
		Server: &fasthttp.Server{
			Handler:               NotFoundHandler,
			ErrorHandler:          errorHandler,
			Name:                  options.Name,
			Concurrency:           options.Concurrency,
			ReadBufferSize:        options.ReadBufferSize,
			WriteBufferSize:       options.WriteBufferSize,
			ReadTimeout:           options.ReadTimeout,
			WriteTimeout:          options.WriteTimeout,
			IdleTimeout:           options.IdleTimeout,
			MaxRequestBodySize:    options.MaxRequestBodySize,
			TCPKeepalive:          true,
			NoDefaultServerHeader: true,
			NoDefaultContentType:  true,
			CloseOnShutdown:       true,
			Logger:                lg,
		},
	}
}

func errorHandler(ctx *RequestCtx, err error) {
	logger.Warn("[xhttp] request error", "error", err, "ip", ctx.RemoteIP().String())
	WriteError(ctx, StatusBadRequest, StatusText(StatusBadRequest))
}

// Use appends middleware. The first registered runs outermost.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// DoRouting wraps the router in the registered middlewares and installs the
// result as the server handler. It is safe to call more than once.
func (e *Engine) DoRouting() error {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			e.Server.Logger.Printf("[xhttp] method: %s, path: %s", method, r)
		}
	}
	h := e.Router.Handler
	for i := len(e.middle) - 1; i >= 0; i-- {
		h = e.middle[i](h)
	}
	e.Server.Handler = h
	return nil
}

func (e *Engine) ListenAndServe(addr string) error {
	if err := e.DoRouting(); err != nil {
		return err
	}
	e.Server.Logger.Printf("[xhttp] server is listening on %s", addr)
	return e.Server.ListenAndServe(addr)
}

// Serve is ListenAndServe over an existing listener.
func (e *Engine) Serve(ln net.Listener) error {
	if err := e.DoRouting(); err != nil {
		return err
	}
	return e.Server.Serve(ln)
}

// Shutdown waits for in-flight requests and closes open connections.
func (e *Engine) Shutdown() {
	e.Server.Logger.Printf("[xhttp] server is shutting down, process id: %d", os.Getpid())
	if err := e.Server.Shutdown(); err != nil {
		e.Server.Logger.Printf("[xhttp] error while shutting down: %v", err)
	}
}
