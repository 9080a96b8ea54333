package sntl

import (
	"io"
	"time"
)

// Direction describes which way (if any) data flows for a CDB.
type Direction int

const (
	DirNone Direction = iota
	DirIn             // device -> host (e.g. READ, INQUIRY)
	DirOut            // host -> device (e.g. WRITE, MODE SELECT)
	DirBidi
)

// ScsiIo is the per-call view the dispatcher and command translators work
// against: the CDB, a single data buffer (borrowed for the call, never
// stored), and the sense buffer to be
// filled on error. It plays the same role the teacher's SCSICmd plays for
// TCMU, but against a plain byte slice instead of a kernel-mmap'd iovec
// list, since the transport here is the NvmeTransport interface rather
// than shared memory with the kernel.
type ScsiIo struct {
	CDB       []byte
	Direction Direction
	Data      []byte
	Sense     []byte
	Timeout   time.Duration

	// FirstSegment/LastSegment mark explicit firmware-download segment
	// boundaries for WRITE BUFFER (spec.md §9: "the source declines to
	// auto-detect [the final segment]; preserve this").
	FirstSegment bool
	LastSegment  bool

	off int
}

// Opcode returns the CDB's operation code (byte 0).
func (io_ *ScsiIo) Opcode() byte {
	return io_.CDB[0]
}

// CdbLen returns the expected length of the CDB in bytes, following the
// SPC-4 §4.2.5.1 operation-code-to-length table. Identical in spirit to
// the teacher's SCSICmd.CdbLen, generalized to also report 32 for the
// 7Fh variable-length form the spec budgets for.
func CdbLen(opcode byte, secondByte byte) int {
	switch {
	case opcode <= 0x1f:
		return 6
	case opcode <= 0x5f:
		return 10
	case opcode == 0x7f:
		return int(secondByte) + 8
	case opcode >= 0x80 && opcode <= 0x9f:
		return 16
	case opcode >= 0xa0 && opcode <= 0xbf:
		return 12
	default:
		return 0
	}
}

// Write implements io.Writer against the data buffer — used by
// translators producing data-in (e.g. INQUIRY, MODE SENSE, READ).
func (io_ *ScsiIo) Write(b []byte) (int, error) {
	n := copy(io_.Data[io_.off:], b)
	io_.off += n
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Read implements io.Reader against the data buffer — used by translators
// consuming data-out (e.g. MODE SELECT, WRITE, UNMAP parameter lists).
func (io_ *ScsiIo) Read(b []byte) (int, error) {
	n := copy(b, io_.Data[io_.off:])
	io_.off += n
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

// Reset rewinds the read/write cursor; translators that make two passes
// over Data (e.g. emitting a header then a variable body) call this
// between passes.
func (io_ *ScsiIo) Reset() { io_.off = 0 }
