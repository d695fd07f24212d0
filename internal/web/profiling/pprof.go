// Package profiling serves pprof and runtime statistics for a running fixture API.
//
// The endpoints expose goroutine stacks and memory contents. Serve them on a separate
// loopback listener, never next to the fixture routes.
package profiling

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// DefaultPath is the prefix of the pprof routes
const DefaultPath = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	// Path is the URL prefix of the pprof routes
	Path string
	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int
	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
	// Stats adds application counters to GET /debug/stats
	Stats func() map[string]interface{}
}

// DefaultConfig returns default profiling configuration
func DefaultConfig() Config {
	return Config{
		Path:          DefaultPath,
		BlockRate:     1,
		MutexFraction: 1,
	}
}

// RegisterRoutes mounts the pprof routes and GET /debug/stats on router
func RegisterRoutes(router chi.Router, config Config) {
	if config.Path == "" {
		config.Path = DefaultPath
	}

	runtime.SetBlockProfileRate(config.BlockRate)
	runtime.SetMutexProfileFraction(config.MutexFraction)

	router.Route(config.Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
	router.Get("/debug/stats", StatsHandler(config.Stats))
}

// Handler returns a router serving only the profiling endpoints
func Handler(config Config) http.Handler {
	router := chi.NewRouter()
	RegisterRoutes(router, config)
	return router
}

// RuntimeStats returns current runtime statistics
func RuntimeStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":       m.Alloc,
			"total_alloc": m.TotalAlloc,
			"sys":         m.Sys,
			"num_gc":      m.NumGC,
		},
		"cpu": map[string]interface{}{
			"num_cpu":      runtime.NumCPU(),
			"num_cgo_call": runtime.NumCgoCall(),
		},
	}
}

// StatsHandler serves RuntimeStats merged with the counters of app under "app"
func StatsHandler(app func() map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := RuntimeStats()
		if app != nil {
			stats["app"] = app()
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(stats)
	}
}
