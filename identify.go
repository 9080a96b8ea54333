package sntl

import (
	"sync"
	"time"

	"github.com/coreos/go-sntl/nvme"
)

// DeviceCtx is the device context spec.md §3 describes: created once per
// attached controller, held for its lifetime, and owning the identify
// cache (C4). It is **not** safe for concurrent use by more than one
// goroutine at a time (spec.md §5): callers using multiple namespaces in
// parallel must use one DeviceCtx per namespace and serialize access to
// each themselves.
type DeviceCtx struct {
	Transport NvmeTransport
	Nsid      uint32

	// DescriptorSenseFormat selects whether sense data defaults to
	// descriptor (true) or fixed (false) format when a command doesn't
	// otherwise dictate the choice.
	DescriptorSenseFormat bool

	// CommandTimeout bounds every transport call; zero selects a
	// 30-second default.
	CommandTimeout time.Duration

	Controller nvme.IdentifyController
	Namespace  nvme.IdentifyNamespace

	// RotationRate, when non-zero, is the medium rotation rate reported
	// by the NVMe Rotational Media Information log page (spec.md
	// §4.5.1, INQUIRY EVPD B1h). Populated by the caller when
	// that log page is available; zero means "non-rotating".
	RotationRate uint16

	blockSize uint32
	maxLBA    uint64

	mu         sync.Mutex
	identified bool

	fallbackSense [maxSenseLen]byte
}

func (ctx *DeviceCtx) timeout() time.Duration {
	if ctx.CommandTimeout == 0 {
		return 30 * time.Second
	}
	return ctx.CommandTimeout
}

// BlockSize returns the cached namespace block size (spec.md §4.4:
// block_size = 2^lbaf[flbas].lbaDS).
func (ctx *DeviceCtx) BlockSize() uint32 { return ctx.blockSize }

// MaxLBA returns the cached namespace max LBA (nsze - 1).
func (ctx *DeviceCtx) MaxLBA() uint64 { return ctx.maxLBA }

// ensureIdentify implements C4: on first dispatch call, populate the
// controller- and namespace-identify snapshot. Subsequent calls are a
// no-op (spec.md §3: "cached identify is populated exactly once;
// subsequent calls must not re-issue identify for hot-path commands").
func (ctx *DeviceCtx) ensureIdentify() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.identified {
		return
	}
	ctx.populateIdentify()
	ctx.identified = true
}

func (ctx *DeviceCtx) populateIdentify() {
	is := issuer{ctx: ctx}

	ctrlBuf := make([]byte, 4096)
	status, _ := is.adminResult(nvme.AdminIdentify, 0, nvme.CNSIdentifyController, 0, 0, 0, 0, 0, BufIn, ctrlBuf)
	if !status.Success() {
		errorf("identify controller failed: status=0x%08x", uint32(status))
	} else {
		nvme.DecodeIdentifyController(ctrlBuf, &ctx.Controller)
	}

	nsBuf := make([]byte, 4096)
	status, _ = is.adminResult(nvme.AdminIdentify, ctx.Nsid, nvme.CNSIdentifyNamespace, 0, 0, 0, 0, 0, BufIn, nsBuf)
	if !status.Success() {
		errorf("identify namespace failed: status=0x%08x", uint32(status))
	} else {
		nvme.DecodeIdentifyNamespace(nsBuf, &ctx.Namespace)
	}

	ctx.blockSize = ctx.Namespace.BlockSize()
	ctx.maxLBA = ctx.Namespace.MaxLBA()
}

// InvalidateIdentify discards the cached identify data, forcing the next
// dispatch call to re-populate it. spec.md §9's design note: "the cache
// is write-once per device context and becomes stale only on controller
// reset; the reset hook must invalidate it."
func (ctx *DeviceCtx) InvalidateIdentify() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.identified = false
	ctx.Controller = nvme.IdentifyController{}
	ctx.Namespace = nvme.IdentifyNamespace{}
	ctx.blockSize = 0
	ctx.maxLBA = 0
}

// Reset invalidates the identify cache and forwards to the transport's
// reset hook — the one place SCSI state survives a single translation
// call, per spec.md §1's Non-goals note.
func (ctx *DeviceCtx) Reset(kind nvme.ResetKind) {
	ctx.InvalidateIdentify()
	ctx.Transport.Reset(kind)
}

// identifiersAreLegacy reports whether both NGUID and EUI64 are zero,
// meaning the controller predates NVMe 1.1 and identifiers must be
// synthesized from PCI vendor id + serial + NSID (spec.md §3 invariant).
func (ctx *DeviceCtx) identifiersAreLegacy() bool {
	return isAllZero(ctx.Namespace.Nguid[:]) && isAllZero(ctx.Namespace.EUI64[:])
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
