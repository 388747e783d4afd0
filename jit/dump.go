//go:build linux && amd64

package jit

import (
	"fmt"
	"strings"

	"github.com/vcode-rt/corejit/codebuf"
	"github.com/vcode-rt/corejit/plan"
	"github.com/vcode-rt/corejit/vcode"
)

// dumpSink implements vcode.DumpSink, annotating each op with its block
// position and each register with the storage the planner assigned it —
// the "verbose dump when NVC_JIT_VERBOSE is set" spec §6 describes.
type dumpSink struct {
	sb   *strings.Builder
	plan *plan.Plan
}

func (d *dumpSink) Op(block, op int, text string) {
	fmt.Fprintf(d.sb, "  block %d op %d: %s\n", block, op, text)
}

func (d *dumpSink) Reg(reg vcode.Reg, text string) {
	st := d.plan.Regs[reg].Storage
	fmt.Fprintf(d.sb, "  reg %d (%s): storage=%s\n", int(reg), text, st.Kind)
}

// dumpVerbose logs a per-op and per-register annotation of a just-
// compiled unit. Cache.Compile checks c.verbose once and only calls
// this when it's set, so a disabled cache does no formatting work at
// all (SPEC_FULL.md, Logging: "checked once at Cache construction, not
// per compile").
func (c *Cache) dumpVerbose(u vcode.Unit, pl *plan.Plan, buf *codebuf.Buffer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "compiled unit: frame_size=%d code_bytes=%d\n", pl.FrameSize, buf.Len())
	u.Dump(&dumpSink{sb: &sb, plan: pl})
	c.logger.Print(sb.String())
}
