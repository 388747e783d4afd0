//go:build linux && amd64

// Package jit ties the storage planner and emitter together into the
// process-wide compiled-unit cache spec §4.7 describes: compile a VCODE
// unit once, hand back a callable entry point, and answer reverse
// address-to-owning-unit lookups for stack-trace symbolization.
package jit

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vcode-rt/corejit/codebuf"
	"github.com/vcode-rt/corejit/emit"
	"github.com/vcode-rt/corejit/internal/diag"
	"github.com/vcode-rt/corejit/plan"
	"github.com/vcode-rt/corejit/regs"
	"github.com/vcode-rt/corejit/vcode"
)

// ErrJITDisabled is returned by Compile when VCODEJIT_DISABLE=1.
var ErrJITDisabled = fmt.Errorf("jit: compilation disabled via VCODEJIT_DISABLE")

// Cache is the process-wide table of compiled units (spec §4.7). The
// concurrency model (spec §5) puts serialization of inserts/deletes on
// the caller; Cache still takes its own lock so a read (FindByAddr)
// racing a concurrent Free at least can't observe a torn slice.
type Cache struct {
	mu     sync.Mutex
	logger *log.Logger

	disabled     bool
	verbose      bool
	maxCodeBytes int

	states  []*State
	byUnit  map[vcode.Unit]*State
	metrics *cacheMetrics
}

// NewCache builds a Cache, reading VCODEJIT_DISABLE, VCODEJIT_MAX_CODE_BYTES
// and NVC_JIT_VERBOSE once (SPEC_FULL.md, Configuration) rather than on
// every Compile call.
func NewCache() *Cache {
	c := &Cache{
		logger:       log.New(os.Stderr, "corejit: ", log.LstdFlags),
		maxCodeBytes: codebuf.DefaultCapacity,
		byUnit:       make(map[vcode.Unit]*State),
		metrics:      newCacheMetrics(),
	}
	if os.Getenv("VCODEJIT_DISABLE") == "1" {
		c.disabled = true
	}
	if v := os.Getenv("VCODEJIT_MAX_CODE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.maxCodeBytes = n
		}
	}
	if os.Getenv("NVC_JIT_VERBOSE") != "" {
		c.verbose = true
	}
	return c
}

// SetLogger replaces the diagnostic logger for verbose dumps.
func (c *Cache) SetLogger(l *log.Logger) { c.logger = l }

// Metrics returns the prometheus collectors this Cache updates, for a
// caller to register with its own prometheus.Registerer.
func (c *Cache) Metrics() []prometheus.Collector { return c.metrics.Collectors() }

// Compile runs the storage planner and emitter over u and installs the
// result in the cache (spec §4.7, §6 "compile(unit) → code_base"). It
// is the boundary diag.Recover documents: a Fatalf anywhere in plan or
// emit surfaces here as a logged, process-aborting failure rather than
// an ordinary error return, since those are all programmer-contract
// violations (spec §7).
func (c *Cache) Compile(u vcode.Unit) (st *State, err error) {
	defer diag.Recover()

	if c.disabled {
		return nil, ErrJITDisabled
	}

	buf, err := codebuf.New(c.maxCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("jit: allocate code buffer: %w", err)
	}

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	e := emit.New(buf, pl, f)
	entry := e.Emit(u)

	if err := buf.Finalize(); err != nil {
		_ = buf.Release()
		return nil, fmt.Errorf("jit: finalize code buffer: %w", err)
	}

	base, _ := buf.GetBounds()
	st = &State{
		Unit:     u,
		Plan:     pl,
		Buf:      buf,
		Entry:    entry,
		codeBase: base,
		codeLen:  buf.Len(),
	}

	c.mu.Lock()
	c.states = append(c.states, st)
	c.byUnit[u] = st
	c.mu.Unlock()

	c.metrics.compiles.Inc()
	c.metrics.units.Set(float64(len(c.states)))
	c.metrics.codeBytes.Add(float64(st.codeLen))

	if c.verbose {
		c.dumpVerbose(u, pl, buf)
	}

	return st, nil
}

// FindByAddr is the reverse lookup spec §4.7/§6 name:
// find_in_cache(addr) → owning state, a linear scan since the cache is
// small and code buffers never overlap (spec §5). Only the written code,
// [CodeBase, CodeBase+CodeLen), belongs to a state; the unused tail of
// its buffer does not.
func (c *Cache) FindByAddr(addr uintptr) *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.states {
		start, end := st.codeBase, st.codeBase+uintptr(st.codeLen)
		if addr >= start && addr < end {
			return st
		}
	}
	return nil
}

// Free removes the unit owning addr from the cache and releases its
// code buffer. Freeing an address the cache never issued is a
// programmer error and is fatal (spec §7, "Cache misses").
func (c *Cache) Free(addr uintptr) {
	defer diag.Recover()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, st := range c.states {
		start, end := st.Buf.GetBounds()
		if addr < start || addr >= end {
			continue
		}
		if err := st.Buf.Release(); err != nil {
			c.logger.Printf("jit: releasing code buffer for %#x: %v", addr, err)
		}
		c.states = append(c.states[:i], c.states[i+1:]...)
		delete(c.byUnit, st.Unit)
		c.metrics.units.Set(float64(len(c.states)))
		return
	}

	diag.Fatalf("jit: free of address %#x not present in the cache", addr)
}
