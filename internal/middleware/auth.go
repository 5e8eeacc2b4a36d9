package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/keypair"
)

const (
	CallerHeader    = "X-Caller"
	TimestampHeader = "X-Timestamp"
	SignatureHeader = "X-Signature"

	maxSignedBody = 1 << 20
)

type contextKey string

const callerContextKey contextKey = "caller"

// GetCaller extracts the authenticated caller address from the request context.
func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(callerContextKey).(string)
	return caller
}

// WithCaller returns a context carrying caller as the authenticated address.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// SigningMessage is the digest a caller signs for a request:
// sha256(method \n path \n timestamp \n sha256hex(body)).
func SigningMessage(method, path, timestamp string, body []byte) []byte {
	h := sha256.Sum256([]byte(method + "\n" + path + "\n" + timestamp + "\n" + SHA256Hex(body)))
	return h[:]
}

// CallerAuth returns middleware that authenticates requests signed by a Stellar key.
// Requests whose timestamp is further than maxSkew from the server clock are rejected.
func CallerAuth(maxSkew time.Duration, limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptKey := clientIPKey(r, "caller")
			if limiter != nil && !limiter.allow(attemptKey) {
				respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many authentication failures")
				return
			}

			fail := func(status int, code, message string) {
				if limiter != nil {
					limiter.registerFailure(attemptKey, code)
				}
				respondError(w, status, code, message)
			}

			caller := r.Header.Get(CallerHeader)
			timestamp := r.Header.Get(TimestampHeader)
			signature := r.Header.Get(SignatureHeader)
			if caller == "" || timestamp == "" || signature == "" {
				fail(http.StatusUnauthorized, "unauthenticated", "Missing request signature headers")
				return
			}

			kp, err := keypair.ParseAddress(caller)
			if err != nil {
				fail(http.StatusUnauthorized, "unauthenticated", "X-Caller is not a valid Stellar public key")
				return
			}

			unix, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				fail(http.StatusUnauthorized, "unauthenticated", "X-Timestamp must be unix seconds")
				return
			}
			if skew := time.Since(time.Unix(unix, 0)); skew > maxSkew || skew < -maxSkew {
				fail(http.StatusUnauthorized, "stale_request", "Request timestamp is outside the allowed clock skew")
				return
			}

			sig, err := base64.StdEncoding.DecodeString(signature)
			if err != nil {
				fail(http.StatusUnauthorized, "unauthenticated", "X-Signature must be base64")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				respondError(w, http.StatusRequestEntityTooLarge, "invalid_request", "Request body is too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := kp.Verify(SigningMessage(r.Method, r.URL.Path, timestamp, body), sig); err != nil {
				fail(http.StatusUnauthorized, "invalid_signature", "Request signature does not verify")
				return
			}

			if limiter != nil {
				limiter.registerSuccess(attemptKey)
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// SHA256Hex returns the hex-encoded SHA-256 hash of the input.
func SHA256Hex(input []byte) string {
	h := sha256.Sum256(input)
	return hex.EncodeToString(h[:])
}
