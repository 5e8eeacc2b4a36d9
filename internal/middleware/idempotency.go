package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/metrics"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	idempotencyPrefix = "cardfund:idempotency:v1:"
	inProgressMarker  = "__in_progress__"
	redisTimeout      = 2 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on mutating
// requests. Keys are scoped to the authenticated caller. Requests without the header pass
// through, as do server errors, which are not stored so the client can retry.
func Idempotency(cache *redis.Client, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if cache == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := idempotencyPrefix + GetCaller(r.Context()) + ":" + r.Method + ":" + r.URL.Path + ":" + key

			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
			defer cancel()

			cached, err := cache.Get(ctx, cacheKey).Result()
			switch {
			case err == nil:
				replay(w, key, cached)
				return
			case !errors.Is(err, redis.Nil):
				log.Error().Err(err).Str("key", key).Msg("idempotency lookup failed")
				respondError(w, http.StatusServiceUnavailable, "idempotency_unavailable", "Idempotency store failure")
				return
			}

			reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("idempotency reservation failed")
				respondError(w, http.StatusServiceUnavailable, "idempotency_unavailable", "Idempotency store failure")
				return
			}
			if !reserved {
				respondError(w, http.StatusConflict, "duplicate_request", "A request with this Idempotency-Key is still processing")
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(r.Context()), redisTimeout)
			defer persistCancel()

			if rec.status >= http.StatusInternalServerError {
				cache.Del(persistCtx, cacheKey)
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err == nil {
				err = cache.Set(persistCtx, cacheKey, payload, ttl).Err()
			}
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("failed to persist idempotent response")
				cache.Del(persistCtx, cacheKey)
			}
		})
	}
}

func replay(w http.ResponseWriter, key, cached string) {
	if cached == inProgressMarker {
		respondError(w, http.StatusConflict, "duplicate_request", "A request with this Idempotency-Key is still processing")
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to decode stored idempotent response")
		respondError(w, http.StatusConflict, "duplicate_request", "Duplicate request")
		return
	}

	metrics.IdempotentReplays.Inc()
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

// recordingWriter copies the response body while passing it through.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	if !rw.wroteHeader {
		rw.status = status
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
