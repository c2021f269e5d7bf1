package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
)

var (
	callbackPattern    = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)
	errInvalidCallback = errors.New("invalid callback name")
)

// writeJSONP writes v as JSON, wrapped in callback(...) when one is given.
func writeJSONP(w http.ResponseWriter, callback string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if callback == "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}
	if !callbackPattern.MatchString(callback) {
		writeError(w, http.StatusBadRequest, errInvalidCallback)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Write([]byte(callback + "("))
	w.Write(body)
	w.Write([]byte(")"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func withRecovery(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", v))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
