package bytecode

import "github.com/vcode-rt/corejit/internal/diag"

func fatalf(format string, args ...any) {
	diag.Fatalf(format, args...)
}
