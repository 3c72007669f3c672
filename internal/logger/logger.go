package logger

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tiendaluna/cobranzas/internal/logger/config"
)

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	zl, err := zapcfg.Build()
	if err != nil {
		return nil, err
	}
	return zl, nil
}

// middleware logger for incoming HTTP requests
func RequestLogMdlw(h http.HandlerFunc, zaplog *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl := newResponseWriterLogger(w)

		handlerStart := time.Now()
		h(wl, r)
		handlerDuration := time.Since(handlerStart)

		zaplog.Info("handled HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", wl.statusCode),
			zap.Int("length", wl.length),
			zap.Duration("duration", handlerDuration),
		)
	}
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func newResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}
