package sntl

import (
	"time"

	"github.com/coreos/go-sntl/nvme"
)

// BufDir tells the transport which way (if any) the data buffer flows for
// one NVMe command, mirroring spec.md §6's `BufDir` enum.
type BufDir int

const (
	BufNone BufDir = iota
	BufIn
	BufOut
)

// NvmeTransport is the core's only external dependency (spec.md §6): a
// thin seam an OS- or protocol-specific pass-through helper implements to
// actually put bytes on the wire. The core never retries and performs no
// work between issue and completion (spec.md §5) — every method here is
// expected to block for up to timeout and return exactly one completion.
type NvmeTransport interface {
	IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (status, result uint32)
	IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (status, result uint32)
	Reset(kind nvme.ResetKind)
}

// issuer wraps a DeviceCtx's transport with the cdw10..15 convenience
// signature the command translators use, and centralizes the Debugf
// logging every issued command gets — the "thin adapter" role of C6.
type issuer struct {
	ctx *DeviceCtx
}

func (i issuer) admin(opcode byte, nsid uint32, cdw10, cdw11, cdw12, cdw13, cdw14, cdw15 uint32, dir BufDir, data []byte) nvme.StatusDword {
	cdw := [6]uint32{cdw10, cdw11, cdw12, cdw13, cdw14, cdw15}
	status, _ := i.ctx.Transport.IssueAdmin(opcode, nsid, cdw, dir, data, i.ctx.timeout())
	logf("issued admin opcode=0x%02x nsid=%d status=0x%08x", opcode, nsid, status)
	return nvme.StatusDword(status)
}

func (i issuer) adminResult(opcode byte, nsid uint32, cdw10, cdw11, cdw12, cdw13, cdw14, cdw15 uint32, dir BufDir, data []byte) (nvme.StatusDword, uint32) {
	cdw := [6]uint32{cdw10, cdw11, cdw12, cdw13, cdw14, cdw15}
	status, result := i.ctx.Transport.IssueAdmin(opcode, nsid, cdw, dir, data, i.ctx.timeout())
	logf("issued admin opcode=0x%02x nsid=%d status=0x%08x result=0x%08x", opcode, nsid, status, result)
	return nvme.StatusDword(status), result
}

func (i issuer) io(opcode byte, nsid uint32, cdw10, cdw11, cdw12, cdw13, cdw14, cdw15 uint32, dir BufDir, data []byte) nvme.StatusDword {
	cdw := [6]uint32{cdw10, cdw11, cdw12, cdw13, cdw14, cdw15}
	status, _ := i.ctx.Transport.IssueIO(opcode, nsid, cdw, dir, data, i.ctx.timeout())
	logf("issued io opcode=0x%02x nsid=%d status=0x%08x", opcode, nsid, status)
	return nvme.StatusDword(status)
}
