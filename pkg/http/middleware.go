package xhttp

import (
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/valyala/fasthttp"
)

// health checks and scrapes would drown the access log
var skipPaths = []string{"/api/v1/health", "/metrics"}

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

// TimeoutMiddleware answers 408 when the handler runs past timeout.
func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, `{"error":"Request Timeout"}`, StatusRequestTimeout)
	}
}

func CompressMiddleware(level int) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.CompressHandlerBrotliLevel(next, level, level)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("[xhttp] panic recovered", "error", err, "path", string(ctx.Path()))
				WriteError(ctx, StatusInternalServerError, StatusText(StatusInternalServerError))
			}
		}()
		next(ctx)
	}
}

// RequestLoggerMiddleware logs one line per request. 5xx log at error; 4xx
// and anything slower than slow log at warn.
func RequestLoggerMiddleware(slow time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			path := string(ctx.Path())
			if shouldSkip(path) {
				next(ctx)
				return
			}

			start := time.Now()
			next(ctx)
			latency := time.Since(start)
			status := ctx.Response.StatusCode()

			kv := []any{
				"status", status,
				"method", string(ctx.Method()),
				"path", path,
				"latency", latency.String(),
				"bytes_in", len(ctx.PostBody()),
				"bytes_out", len(ctx.Response.Body()),
				"ip", ctx.RemoteIP().String(),
				"request_id", requestID(ctx),
			}
			switch {
			case status >= 500:
				logger.Error("http_request", kv...)
			case status >= 400 || latency > slow:
				logger.Warn("http_request", kv...)
			default:
				logger.Info("http_request", kv...)
			}
		}
	}
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if p == sp || strings.HasPrefix(p, sp+"/") {
			return true
		}
	}
	return false
}

// fasthttp normalizes header names, so one lookup covers X-Request-ID too.
func requestID(ctx *RequestCtx) string {
	return string(ctx.Request.Header.Peek("X-Request-Id"))
}
