package adapter

import (
	"context"
	"net/http"
	"testing"

	"github.com/iaconlabs/owinbridge/router"
)

// RunSuiteBenchmarks executes a performance battery to measure the overhead
// of different [router.Router] backends.
func RunSuiteBenchmarks(b *testing.B, factory func() router.Router) {
	// 1. Benchmark: Simple Static Route (Baseline).
	b.Run("Static/Simple", func(b *testing.B) {
		runStaticBenchmark(b, factory())
	})

	// 2. Benchmark: Dynamic Parameters (:id).
	// Measures the cost of value extraction and state propagation.
	b.Run("Param/Single", func(b *testing.B) {
		runParamBenchmark(b, factory())
	})

	// 3. Benchmark: Middleware onion (3 levels).
	b.Run("Middleware/Onion", func(b *testing.B) {
		runOnionBenchmark(b, factory())
	})
}

func runStaticBenchmark(b *testing.B, rt router.Router) {
	rt.GET("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		Invoke(b, rt, context.Background(), NewRequest(http.MethodGet, "/health", ""), nil)
	}
}

func runParamBenchmark(b *testing.B, rt router.Router) {
	rt.GET("/user/:id", func(_ http.ResponseWriter, r *http.Request) {
		_ = rt.Param(r, "id")
	})
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		Invoke(b, rt, context.Background(), NewRequest(http.MethodGet, "/user/12345", ""), nil)
	}
}

func runOnionBenchmark(b *testing.B, rt router.Router) {
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		})
	}

	rt.Use(mw)
	rt.GET("/end", func(_ http.ResponseWriter, _ *http.Request) {}, mw, mw)

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		Invoke(b, rt, context.Background(), NewRequest(http.MethodGet, "/end", ""), nil)
	}
}
