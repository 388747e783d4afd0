// Package diag implements the single fatal-abort path every programmer
// contract violation in this module funnels through (spec §7): an
// unbound label destroyed with pending patches, a double-bound label, a
// full code buffer, an unsupported op, a register with no definition, a
// jump displacement that doesn't fit 16 bits, or a Free of an address the
// cache never issued. None of these are recoverable — the spec is
// explicit that "a fatal condition aborts the process with a diagnostic
// dump" — so Fatalf never returns to its caller.
package diag

import (
	"log"
	"os"

	"github.com/cockroachdb/errors"
)

// Logger is the process-wide sink for fatal diagnostics.
var Logger = log.New(os.Stderr, "corejit: ", log.LstdFlags)

// SetLogger replaces the diagnostic logger, e.g. so an embedding host can
// route it to its own log file the way ascrivener-jam's singlestep.go
// routes interpreter traces to one.
func SetLogger(l *log.Logger) { Logger = l }

// Fatal wraps a programmer contract violation. Fatalf raises it as a
// panic rather than calling os.Exit directly so that a deliberate abort
// boundary (Recover, below) can turn it into a real process exit in
// production while tests can recover it like any other panic.
type Fatal struct {
	Err error
}

func (f Fatal) Error() string { return f.Err.Error() }
func (f Fatal) Unwrap() error { return f.Err }

// Fatalf builds an assertion-failure error carrying a stack trace and
// panics with it. Never returns.
func Fatalf(format string, args ...any) {
	err := errors.AssertionFailedf(format, args...)
	panic(Fatal{Err: err})
}

// OnFatal is invoked by Recover once a Fatal has been logged. Production
// callers leave it at the default (process abort); tests override it to
// capture the failure instead of killing the test binary.
var OnFatal = func(f Fatal) {
	os.Exit(2)
}

// Recover must be deferred at every public entry point that can trigger
// Fatalf transitively (jit.Cache.Compile and jit.Cache.Free; calls made
// straight into bytecode, codebuf, plan or emit have no such boundary and
// see the Fatal as a panic). It logs a verbose (stack-carrying) rendering of the
// failure and hands off to OnFatal. Panics that are not a Fatal are
// re-raised unchanged.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	f, ok := r.(Fatal)
	if !ok {
		panic(r)
	}
	Logger.Printf("FATAL: %+v", f.Err)
	OnFatal(f)
}
