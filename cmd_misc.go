package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// cmdTestUnitReady implements TEST UNIT READY (00h): spec.md §6 — success
// unless a sanitize or self-test is in progress, reusing REQUEST SENSE's
// priority probe so both commands agree on "not ready".
func cmdTestUnitReady(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	if progress, ok := sanitizeInProgress(ctx); ok {
		emitProgressDescriptor(io_.Sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySanitize, ctx.DescriptorSenseFormat, progress)
		return nil
	}
	if progress, ok := selfTestInProgress(ctx); ok {
		emitProgressDescriptor(io_.Sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySelfTest, ctx.DescriptorSenseFormat, progress)
		return nil
	}
	return nil
}

// cmdReportLuns implements REPORT LUNS (A0h): spec.md §6 — a single-LUN
// reply since the core translates one namespace to one LUN.
func cmdReportLuns(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], 8)
	io_.Write(buf)
	return nil
}

var sendDiagnosticReserved = []reservedField{
	{1, 0x01}, // bit 0 reserved (UnitOffL/DevOffL/SelfTest obsolete forms not modeled)
}

// cmdSendDiagnostic implements SEND DIAGNOSTIC (1Dh): spec.md §6 —
// validates reserved bits and returns GOOD with no NVMe side effect.
func cmdSendDiagnostic(ctx *DeviceCtx, io_ *ScsiIo) error {
	if validateReserved(io_, ctx, sendDiagnosticReserved) {
		return nil
	}
	return nil
}

// cmdSynchronizeCache implements SYNCHRONIZE CACHE (10/16): spec.md §6 —
// issues NVMe Flush.
func cmdSynchronizeCache(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	is := issuer{ctx: ctx}
	status := is.io(nvme.IOFlush, ctx.Nsid, 0, 0, 0, 0, 0, 0, BufNone, nil)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}

const maxSecurityProtocolLen = 65535

// cmdSecurityProtocolIn implements SECURITY PROTOCOL IN (A2h): spec.md
// §6 — passthrough to NVMe Security Receive, SP specifier and INC_512
// mapped to SECP/SPSP.
func cmdSecurityProtocolIn(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	secp := cdb[1]
	spsp := binary.BigEndian.Uint16(cdb[2:4])
	inc512 := cdb[4]&0x80 != 0
	allocLen := binary.BigEndian.Uint32(cdb[6:10])
	if allocLen > maxSecurityProtocolLen {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 6, 7)
		return nil
	}

	cdw10 := uint32(secp)<<24 | uint32(spsp)<<8
	if inc512 {
		cdw10 |= 0x01
	}
	cdw11 := allocLen
	is := issuer{ctx: ctx}
	status := is.admin(nvme.AdminSecurityReceive, ctx.Nsid, cdw10, cdw11, 0, 0, 0, 0, BufIn, io_.Data)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}

// cmdSecurityProtocolOut implements SECURITY PROTOCOL OUT (B5h):
// passthrough to NVMe Security Send.
func cmdSecurityProtocolOut(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	secp := cdb[1]
	spsp := binary.BigEndian.Uint16(cdb[2:4])
	inc512 := cdb[4]&0x80 != 0
	transferLen := binary.BigEndian.Uint32(cdb[6:10])
	if transferLen > maxSecurityProtocolLen {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 6, 7)
		return nil
	}

	cdw10 := uint32(secp)<<24 | uint32(spsp)<<8
	if inc512 {
		cdw10 |= 0x01
	}
	cdw11 := transferLen
	is := issuer{ctx: ctx}
	status := is.admin(nvme.AdminSecuritySend, ctx.Nsid, cdw10, cdw11, 0, 0, 0, 0, BufOut, io_.Data)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}

// cmdWriteLong implements WRITE LONG (3Fh): spec.md §6 — unsupported, no
// NVMe equivalent without PI metadata plumbing beyond scope. Matches the
// teacher's NotHandled() idiom for commands the emulation layer declines
// to implement.
func cmdWriteLong(ctx *DeviceCtx, io_ *ScsiIo) error {
	emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
	return nil
}
