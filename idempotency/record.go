// Package idempotency caches successful API responses so clients can
// safely retry requests carrying an Idempotency-Key header.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/Mister-Storm/slipnotify/internal/entity"
)

// Header is the request header carrying the client-chosen key.
const Header = "Idempotency-Key"

// Record is a cached response for one idempotency key.
type Record struct {
	entity.Entity

	// Key is the client-chosen idempotency key.
	Key string `json:"key"`

	// Endpoint is the request path the key was first used on.
	Endpoint string `json:"endpoint"`

	// Fingerprint binds the key to the original request shape. A replay
	// with a different fingerprint is a key reuse, not a retry.
	Fingerprint string `json:"fingerprint"`

	// StatusCode is the cached response status.
	StatusCode int `json:"status_code"`

	// Body is the cached response body.
	Body []byte `json:"body"`

	// ExpiresAt is when the cached response stops being served.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its TTL.
func (rec *Record) Expired(now time.Time) bool {
	return now.After(rec.ExpiresAt)
}

// Fingerprint hashes the request shape: method, path and query string.
func Fingerprint(r *http.Request) string {
	data := r.Method + ":" + r.URL.Path + ":" + r.URL.RawQuery
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
