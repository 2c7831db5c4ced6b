package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mister-Storm/slipnotify/internal/entity"
	"github.com/Mister-Storm/slipnotify/observability"
)

// ErrDuplicateKey is returned by stores when a live record already exists
// for the key. The first writer wins.
var ErrDuplicateKey = errors.New("slipnotify: idempotency key already exists")

// ErrNotFound is returned by stores when no live record exists for the key.
var ErrNotFound = errors.New("slipnotify: idempotency record not found")

// ErrKeyReuse marks a key presented with a different request shape than the
// one it was first used for. Surfaced to the caller as 409.
var ErrKeyReuse = errors.New("slipnotify: idempotency key reused for a different request")

// Config holds idempotency middleware configuration.
type Config struct {
	// TTL is how long cached responses are served. Defaults to 24h.
	TTL time.Duration
}

// Middleware replays cached responses for requests that repeat an
// Idempotency-Key. Only 2xx responses are cached; a failed request may be
// retried with the same key. Reusing a key for a different request shape
// is rejected with 409.
func Middleware(store Store, cfg Config, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			fingerprint := Fingerprint(r)

			rec, err := store.GetIdempotency(ctx, key)
			switch {
			case err == nil:
				if rec.Fingerprint != fingerprint {
					logger.WarnContext(ctx, "idempotency key reuse",
						"key", key, "error", ErrKeyReuse)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusConflict)
					_, _ = w.Write([]byte(`{"error":"idempotency key reused for a different request"}`))
					return
				}
				if metrics != nil {
					metrics.IdempotentReplays.Inc()
				}
				logger.InfoContext(ctx, "replaying cached response",
					slog.String("idempotency_key", key),
					slog.Int("status", rec.StatusCode))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(rec.StatusCode)
				_, _ = w.Write(rec.Body)
				return

			case !errors.Is(err, ErrNotFound):
				// A cache outage must not take the API down.
				logger.ErrorContext(ctx, "idempotency lookup failed",
					slog.String("idempotency_key", key),
					slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			// Only successful responses are cached; failures stay retryable.
			if cw.status < 200 || cw.status >= 300 {
				return
			}

			putErr := store.PutIdempotency(ctx, &Record{
				Entity:      entity.New(),
				Key:         key,
				Endpoint:    r.URL.Path,
				Fingerprint: fingerprint,
				StatusCode:  cw.status,
				Body:        cw.body.Bytes(),
				ExpiresAt:   time.Now().UTC().Add(cfg.TTL),
			})
			if putErr != nil && !errors.Is(putErr, ErrDuplicateKey) {
				logger.ErrorContext(ctx, "idempotency cache write failed",
					slog.String("idempotency_key", key),
					slog.String("error", putErr.Error()))
			}
		})
	}
}

// captureWriter tees the response so it can be cached after the handler runs.
type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (cw *captureWriter) WriteHeader(status int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.status = status
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *captureWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	cw.body.Write(p)
	return cw.ResponseWriter.Write(p)
}
