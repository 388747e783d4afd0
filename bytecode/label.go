package bytecode

// Label is a forward- or backward-reference target within one Assembler
// (spec §3, §4.2). It is owned by whoever created it; it only borrows its
// Assembler for the duration of an operation (Bind, or emitting a branch
// that references it) rather than holding a permanent pointer to it.
//
// Go has no destructors, so the "destroying an unbound label with
// pending patches is a programming error" invariant is enforced by an
// explicit Close call rather than at scope exit; callers that create a
// scratch Label must Close it once they are done with the Assembler.
type Label struct {
	bound   int // -1 while unbound, else the bound byte offset
	patches []int
}

// NewLabel creates an unbound label.
func NewLabel() *Label {
	return &Label{bound: -1}
}

// Bound reports whether the label has been bound to an offset yet.
func (l *Label) Bound() bool { return l.bound >= 0 }

// Target returns the bound byte offset. It panics if the label is not
// bound — callers must check Bound first, mirroring the source's
// unsigned target() which is only meaningful once bound_ != -1.
func (l *Label) Target() int {
	if !l.Bound() {
		panic("bytecode: Target called on an unbound label")
	}
	return l.bound
}

// Close asserts the label carries no unresolved patches. It is a
// programming error to Close a label that was referenced by a branch but
// never bound — that branch's placeholder displacement would never be
// overwritten with a real value (spec §7, §8 property 1).
func (l *Label) Close() {
	if !l.Bound() && len(l.patches) > 0 {
		fatalf("bytecode: label destroyed with %d unresolved patch(es)", len(l.patches))
	}
}
