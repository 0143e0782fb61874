package gorillaadapter_test

import (
	"testing"

	"github.com/iaconlabs/owinbridge/adapter"
	"github.com/iaconlabs/owinbridge/adapter/gorillaadapter"
	"github.com/iaconlabs/owinbridge/router"
)

func BenchmarkGorilla(b *testing.B) {
	adapter.RunSuiteBenchmarks(b, func() router.Router {
		return gorillaadapter.NewGorillaAdapter()
	})
}
