package cache

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// cachedResponse is the stored form of a rendered GET response
type cachedResponse struct {
	StatusCode  int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	ETag        string `json:"etag"`
}

// generation counts the clears of a cache. A GET stores its response only when no
// write completed while it was rendering.
type generation struct {
	mu sync.RWMutex
	n  uint64
}

func (g *generation) current() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.n
}

// advance bumps the generation and runs clear while no GET can store
func (g *generation) advance(clear func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return clear()
}

// storeIf runs set unless the generation moved past seen
func (g *generation) storeIf(seen uint64, set func() error) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.n != seen {
		return false, nil
	}
	return true, set()
}

// Documents caches successful GET responses keyed by request URI and answers
// conditional requests from the stored ETag. Any successful non-GET request clears
// the whole cache before its response is returned. A GET overlapping such a write is
// served but not stored.
func Documents(c Cache, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	gen := &generation{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method != http.MethodGet {
				rec := newResponseRecorder(w)
				next.ServeHTTP(rec, r)
				if rec.statusCode < 300 {
					if err := gen.advance(func() error { return c.Clear(ctx) }); err != nil {
						logger.Warn("cache clear failed", zap.Error(err))
					}
				}
				rec.flush()
				return
			}

			key := "GET " + r.URL.RequestURI()

			if data, err := c.Get(ctx, key); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(data, &cached); err == nil {
					w.Header().Set("ETag", cached.ETag)
					w.Header().Set("X-Cache", "HIT")
					if MatchesIfNoneMatch(r.Header.Get("If-None-Match"), cached.ETag) {
						w.WriteHeader(http.StatusNotModified)
						return
					}
					w.Header().Set("Content-Type", cached.ContentType)
					w.WriteHeader(cached.StatusCode)
					w.Write(cached.Body)
					return
				}
			} else if !IsCacheMiss(err) {
				logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
			}

			seen := gen.current()
			rec := newResponseRecorder(w)
			next.ServeHTTP(rec, r)

			if rec.statusCode == http.StatusOK {
				cached := cachedResponse{
					StatusCode:  rec.statusCode,
					ContentType: rec.Header().Get("Content-Type"),
					Body:        rec.body.Bytes(),
					ETag:        GenerateETag(rec.body.Bytes()),
				}
				if data, err := json.Marshal(cached); err == nil {
					stored, err := gen.storeIf(seen, func() error { return c.Set(ctx, key, data, 0) })
					if err != nil {
						logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
					} else if !stored {
						logger.Debug("stale response not cached", zap.String("key", key))
					}
				}
				rec.Header().Set("ETag", cached.ETag)
				if MatchesIfNoneMatch(r.Header.Get("If-None-Match"), cached.ETag) {
					rec.statusCode = http.StatusNotModified
					rec.body.Reset()
				}
			}

			rec.Header().Set("X-Cache", "MISS")
			rec.flush()
		})
	}
}

// responseRecorder buffers a response so headers can still change after the
// handler returns
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader records the status code
func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
}

// Write records the response body
func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

// flush sends the recorded status and body to the underlying writer
func (r *responseRecorder) flush() {
	r.ResponseWriter.WriteHeader(r.statusCode)
	if r.statusCode != http.StatusNotModified {
		r.ResponseWriter.Write(r.body.Bytes())
	}
}
