// Package util holds small internal helpers shared across BLINK's storage
// packages: currently just cache-line padding for hot counters.
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for most modern CPUs.
// std has runtime/internal/sys.CacheLineSize but it's unexported.
// 64 works well in practice.
const CacheLineSize = 64

// CacheLinePad is a dummy field used to separate hot fields into distinct
// cache lines and reduce false sharing. Place between groups of hot fields.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedAtomicUint64 is an atomic uint64 padded to exactly one cache line.
// Use when several goroutines update a hot counter (e.g. the cache's hit
// counter) that sits next to other frequently written fields, to avoid
// false sharing between them.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// ---- Compile-time size check (must be exactly one cache line) ----

var _ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
