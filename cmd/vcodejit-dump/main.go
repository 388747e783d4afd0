// Command vcodejit-dump disassembles a raw bytecode program file, the
// disassembly dump hook (spec §4.2, §6) exposed as an operator tool
// rather than a library call.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/vcode-rt/corejit/bytecode"
	"github.com/vcode-rt/corejit/machine"
)

func main() {
	inputPath := flag.String("input", "", "Path to a raw bytecode.Program.Code file")
	frameSize := flag.Uint64("frame-size", 0, "Frame size in bytes to attribute to the program")
	mark := flag.Int("mark", bytecode.NoMark, "Byte offset to highlight, e.g. a fault PC (-1 for none)")

	flag.Parse()

	if *inputPath == "" {
		log.Fatal("Error: --input flag is required")
	}

	code, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *inputPath, err)
	}

	p := &bytecode.Program{
		Machine:   machine.Interp32,
		Code:      code,
		FrameSize: uint32(*frameSize),
	}

	var sb strings.Builder
	p.Dump(&sb, *mark)
	os.Stdout.WriteString(sb.String())
}
