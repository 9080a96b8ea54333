package sntl

import (
	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// cmdWriteBuffer implements WRITE BUFFER (3Bh) for the modes spec.md
// §4.5.8 names: 05h download microcode and, on the last segment, commit
// it and reset the controller so it takes effect; 0Dh and 0Eh download
// microcode with offsets only, issuing no Firmware Commit (SPC-4
// distinguishes them only by whether the buffer ID addresses a
// microcode-specific buffer, which this translator does not model); 0Fh
// commits the previously-downloaded microcode and resets the controller
// (no data transfer). Segment boundaries are tracked by the caller via
// ScsiIo.FirstSegment/LastSegment (spec.md §9: "the source declines to
// auto-detect the final segment; preserve this").
func cmdWriteBuffer(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	mode := io_.CDB[1] & 0x1f
	bufferOffset := uint32(io_.CDB[3])<<16 | uint32(io_.CDB[4])<<8 | uint32(io_.CDB[5])

	switch mode {
	case 0x05:
		return downloadFirmware(ctx, io_, bufferOffset, true)
	case 0x0d, 0x0e:
		return downloadFirmware(ctx, io_, bufferOffset, false)
	case 0x0f:
		return activateDeferredFirmware(ctx, io_)
	default:
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, ctx.DescriptorSenseFormat)
		return nil
	}
}

// fwug returns the Firmware Update Granularity in bytes (NVMe Identify
// Controller FWUG field, reported in 4KiB units; 00h and FFh both mean
// "no restriction" per spec.md §4.5.8).
func fwug(ctx *DeviceCtx) uint32 {
	switch ctx.Controller.Fwug {
	case 0x00, 0xff:
		return 0
	default:
		return uint32(ctx.Controller.Fwug) * 4096
	}
}

func downloadFirmware(ctx *DeviceCtx, io_ *ScsiIo, offset uint32, activateImmediately bool) error {
	granularity := fwug(ctx)
	length := uint32(len(io_.Data))
	if granularity != 0 && (offset%granularity != 0 || length%granularity != 0) {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 6, 7)
		return nil
	}
	if length < 4 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 6, 7)
		return nil
	}

	is := issuer{ctx: ctx}
	numd := uint32(len(io_.Data)/4) - 1
	status := is.admin(nvme.AdminFirmwareImageDownload, 0, numd, offset, 0, 0, 0, 0, BufOut, io_.Data)
	if !status.Success() {
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
		return nil
	}

	// Modes 0Dh/0Eh only download; mode 0Fh commits the image later.
	if !activateImmediately || !io_.LastSegment {
		return nil
	}

	// CA=1: the downloaded image replaces the slot's image and is
	// activated at the next reset, which is issued right after.
	commit := is.admin(nvme.AdminFirmwareCommit, 0, 1, 0, 0, 0, 0, 0, BufNone, nil)
	if !commit.Success() {
		mapNvmeStatus(io_.Sense, commit, ctx.DescriptorSenseFormat)
		return nil
	}
	ctx.Reset(nvme.ResetController)
	return nil
}

func activateDeferredFirmware(ctx *DeviceCtx, io_ *ScsiIo) error {
	is := issuer{ctx: ctx}
	// CA=1: commit the downloaded image, activated by the reset below.
	status := is.admin(nvme.AdminFirmwareCommit, 0, 1, 0, 0, 0, 0, 0, BufNone, nil)
	if !status.Success() {
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
		return nil
	}
	ctx.Reset(nvme.ResetController)
	return nil
}
