package sntl

import (
	"time"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// SANITIZE service actions (SPC-5/SBC-4 table "SANITIZE service actions").
const (
	sanitizeOverwrite      = 0x01
	sanitizeBlockErase     = 0x02
	sanitizeCryptoErase    = 0x03
	sanitizeExitFailureMode = 0x1f
)

// cmdSanitize implements SANITIZE per spec.md §4.5.11: maps the service
// action to the NVMe Sanitize command's SANACT field, and — when IMMED=0
// — polls the Sanitize Status log until completion before returning,
// since the NVMe command itself completes as soon as the operation is
// accepted.
func cmdSanitize(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	action := io_.CDB[1] & 0x1f
	immed := io_.CDB[1]&0x80 != 0

	var sanact uint32
	switch action {
	case sanitizeOverwrite:
		if ctx.Controller.Sanicap&nvme.SanicapOverwrite == 0 {
			emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
			return nil
		}
		sanact = 3
	case sanitizeBlockErase:
		if ctx.Controller.Sanicap&nvme.SanicapBlockErase == 0 {
			emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
			return nil
		}
		sanact = 2
	case sanitizeCryptoErase:
		if ctx.Controller.Sanicap&nvme.SanicapCryptoErase == 0 {
			emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
			return nil
		}
		sanact = 4
	case sanitizeExitFailureMode:
		sanact = 1
	default:
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 4)
		return nil
	}

	var cdw10 uint32 = sanact
	var cdw11 uint32
	if action == sanitizeOverwrite && len(io_.Data) >= 4 {
		cdw11 = uint32(io_.Data[0])<<24 | uint32(io_.Data[1])<<16 | uint32(io_.Data[2])<<8 | uint32(io_.Data[3])
	}

	is := issuer{ctx: ctx}
	status := is.admin(nvme.AdminSanitize, 0, cdw10, cdw11, 0, 0, 0, 0, BufNone, nil)
	if !status.Success() {
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
		return nil
	}

	ctx.InvalidateIdentify()

	if immed {
		return nil
	}
	return pollSanitizeCompletion(ctx, io_)
}

// pollSanitizeCompletion blocks, re-reading the Sanitize Status log at a
// fixed interval, until the operation is no longer in progress (spec.md
// §4.5.11: "when IMMED=0, block the SCSI command until NVMe reports the
// sanitize operation has left the in-progress state"). The core performs
// no transport work between commands in the IMMED=1 path (spec.md §5);
// this loop is the one explicit exception, entered only at the caller's
// request.
func pollSanitizeCompletion(ctx *DeviceCtx, io_ *ScsiIo) error {
	is := issuer{ctx: ctx}
	for {
		buf := make([]byte, 20)
		cdw10 := uint32(nvme.LogSanitizeStatus) | (uint32(20/4-1) << 16)
		status := is.admin(nvme.AdminGetLogPage, 0xffffffff, cdw10, 0, 0, 0, 0, 0, BufIn, buf)
		if !status.Success() {
			mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
			return nil
		}
		sstat := uint16(buf[0]) | uint16(buf[1])<<8
		switch sstat & 0x07 {
		case nvme.SanitizeStatusInProgress:
			time.Sleep(5 * time.Second)
			continue
		case nvme.SanitizeStatusFailed:
			emitSense(io_.Sense, scsi.SenseMediumError, scsi.AscSanitizeFailed, ctx.DescriptorSenseFormat)
			return nil
		default:
			return nil
		}
	}
}
