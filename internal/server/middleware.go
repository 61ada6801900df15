package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"example.com/devserve/internal/logger"
)

// Chain applies the standard middleware: access log outermost, then panic
// recovery, then the per-request URL log.
func Chain(h http.Handler, lg *logger.Logger) http.Handler {
	return AccessLog(Recover(RequestLog(h, lg), lg), lg)
}

// RequestLog logs every requested URL before the handler runs.
func RequestLog(next http.Handler, lg *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		lg.Info("request", logger.LogFields{
			"url":    req.URL.Path,
			"method": req.Method,
		})
		next.ServeHTTP(w, req)
	})
}

// AccessLog records one access entry per response.
func AccessLog(next http.Handler, lg *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := NewStatusRecorder(w)
		next.ServeHTTP(rec, req)
		lg.Access(req, rec.Status(), rec.BytesWritten(), time.Since(start))
	})
}

// Recover turns a handler panic into a 500 for that request only. When the
// handler already wrote headers the connection is aborted instead.
func Recover(next http.Handler, lg *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec, ok := w.(*StatusRecorder)
		if !ok {
			rec = NewStatusRecorder(w)
		}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			lg.Error("panic while handling request", logger.LogFields{
				"url":   req.URL.Path,
				"panic": fmt.Sprint(v),
				"stack": string(debug.Stack()),
			})
			if rec.WroteHeader() {
				panic(http.ErrAbortHandler)
			}
			SendDefaultErrorResponse(rec, http.StatusInternalServerError, req, "", lg)
		}()
		next.ServeHTTP(rec, req)
	})
}

// StatusRecorder remembers the status code and body size written through it.
type StatusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w}
}

func (r *StatusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *StatusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Status is 200 when the handler wrote nothing explicit.
func (r *StatusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *StatusRecorder) BytesWritten() int64 { return r.bytes }

func (r *StatusRecorder) WroteHeader() bool { return r.wroteHeader }

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *StatusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
