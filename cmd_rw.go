package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// rwRequest is the CDB-length-independent view a READ/WRITE/VERIFY
// translator works against, populated by one of the per-length parsers
// below (spec.md §4.5.3: "normalize 6/10/12/16-byte forms to one internal
// shape before mapping to NVMe").
type rwRequest struct {
	lba       uint64
	length    uint32 // in logical blocks; 0 from a 6-byte CDB means 256
	protect   uint8  // RDPROTECT/WRPROTECT/VRPROTECT, bits 7:5 of byte1 on 10/12/16 forms
	dpo       bool
	fua       bool
	groupNum  uint8
	byteCheck uint8 // VERIFY's BYTCHK field, 2 bits
}

func parseRW6(cdb []byte) rwRequest {
	lba := uint32(cdb[1]&0x1f)<<16 | uint32(cdb[2])<<8 | uint32(cdb[3])
	length := uint32(cdb[4])
	if length == 0 {
		length = 256
	}
	return rwRequest{lba: uint64(lba), length: length}
}

func parseRW10(cdb []byte) rwRequest {
	return rwRequest{
		protect:  cdb[1] >> 5,
		dpo:      cdb[1]&0x10 != 0,
		fua:      cdb[1]&0x08 != 0,
		lba:      uint64(binary.BigEndian.Uint32(cdb[2:6])),
		groupNum: cdb[6] & 0x1f,
		length:   uint32(binary.BigEndian.Uint16(cdb[7:9])),
	}
}

func parseRW12(cdb []byte) rwRequest {
	return rwRequest{
		protect:  cdb[1] >> 5,
		dpo:      cdb[1]&0x10 != 0,
		fua:      cdb[1]&0x08 != 0,
		lba:      uint64(binary.BigEndian.Uint32(cdb[2:6])),
		length:   binary.BigEndian.Uint32(cdb[6:10]),
		groupNum: cdb[10] & 0x1f,
	}
}

func parseRW16(cdb []byte) rwRequest {
	return rwRequest{
		protect:  cdb[1] >> 5,
		dpo:      cdb[1]&0x10 != 0,
		fua:      cdb[1]&0x08 != 0,
		lba:      binary.BigEndian.Uint64(cdb[2:10]),
		length:   binary.BigEndian.Uint32(cdb[10:14]),
		groupNum: cdb[14] & 0x1f,
	}
}

func parseVerify10(cdb []byte) rwRequest {
	r := parseRW10(cdb)
	r.byteCheck = (cdb[1] >> 1) & 0x03
	return r
}

func parseVerify12(cdb []byte) rwRequest {
	r := parseRW12(cdb)
	r.byteCheck = (cdb[1] >> 1) & 0x03
	return r
}

func parseVerify16(cdb []byte) rwRequest {
	r := parseRW16(cdb)
	r.byteCheck = (cdb[1] >> 1) & 0x03
	return r
}

// prinfo maps SBC RDPROTECT/WRPROTECT/VRPROTECT values to the NVMe PRINFO
// nibble per spec.md §4.5.3's literal table: 0->0xF, 1->0x7, 2->0x3, 3->0,
// 4->0x4, 5->0x7.
func prinfo(protect uint8) uint32 {
	switch protect {
	case 0:
		return nvme.RWPRACT | nvme.RWPRCHKGuard | nvme.RWPRCHKAppTag | nvme.RWPRCHKRefTag
	case 1, 5:
		return nvme.RWPRCHKGuard | nvme.RWPRCHKAppTag | nvme.RWPRCHKRefTag
	case 2:
		return nvme.RWPRCHKAppTag | nvme.RWPRCHKRefTag
	case 4:
		return nvme.RWPRCHKGuard
	default: // 3, and reserved 6/7
		return 0
	}
}

func cdw12For(r rwRequest) uint32 {
	cdw12 := r.length - 1 // NLB is zero-based
	cdw12 |= prinfo(r.protect)
	if r.fua {
		cdw12 |= nvme.RWForceUnitAccess
	}
	return cdw12
}

func cdw10_11For(lba uint64) (uint32, uint32) {
	return uint32(lba), uint32(lba >> 32)
}

func rwRangeExceeds(ctx *DeviceCtx, r rwRequest) bool {
	if r.length == 0 {
		return false
	}
	last := r.lba + uint64(r.length) - 1
	return last > ctx.MaxLBA()
}

// maxRWTransferBlocks is the largest transfer length spec.md §4.5.2
// permits on a single READ/WRITE/VERIFY; longer requests are rejected
// rather than silently clamped.
const maxRWTransferBlocks = 65536

func cmdRead(ctx *DeviceCtx, io_ *ScsiIo, r rwRequest) error {
	ctx.ensureIdentify()
	if r.length == 0 {
		return nil
	}
	if r.length > maxRWTransferBlocks {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, ctx.DescriptorSenseFormat)
		return nil
	}
	if rwRangeExceeds(ctx, r) {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange, ctx.DescriptorSenseFormat)
		return nil
	}
	cdw10, cdw11 := cdw10_11For(r.lba)
	is := issuer{ctx: ctx}
	status := is.io(nvme.IORead, ctx.Nsid, cdw10, cdw11, cdw12For(r), 0, 0, 0, BufIn, io_.Data)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}

func cmdWrite(ctx *DeviceCtx, io_ *ScsiIo, r rwRequest) error {
	ctx.ensureIdentify()
	if r.length == 0 {
		return nil
	}
	if r.length > maxRWTransferBlocks {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, ctx.DescriptorSenseFormat)
		return nil
	}
	if rwRangeExceeds(ctx, r) {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange, ctx.DescriptorSenseFormat)
		return nil
	}
	cdw10, cdw11 := cdw10_11For(r.lba)
	is := issuer{ctx: ctx}
	status := is.io(nvme.IOWrite, ctx.Nsid, cdw10, cdw11, cdw12For(r), 0, 0, 0, BufOut, io_.Data)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}

// cmdVerify implements VERIFY per spec.md §4.5.3: BYTCHK=0 issues an NVMe
// Verify with no data buffer; BYTCHK=1 issues a Compare against the
// data-out parameter bytes, mapping a compare failure to MISCOMPARE.
func cmdVerify(ctx *DeviceCtx, io_ *ScsiIo, r rwRequest) error {
	ctx.ensureIdentify()
	if r.length == 0 {
		return nil
	}
	if r.length > maxRWTransferBlocks {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, ctx.DescriptorSenseFormat)
		return nil
	}
	if rwRangeExceeds(ctx, r) {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange, ctx.DescriptorSenseFormat)
		return nil
	}
	if r.byteCheck >= 2 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 2)
		return nil
	}
	cdw10, cdw11 := cdw10_11For(r.lba)
	is := issuer{ctx: ctx}
	if r.byteCheck == 0 {
		status := is.io(nvme.IOVerify, ctx.Nsid, cdw10, cdw11, cdw12For(r), 0, 0, 0, BufNone, nil)
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
		return nil
	}
	status := is.io(nvme.IOCompare, ctx.Nsid, cdw10, cdw11, cdw12For(r), 0, 0, 0, BufOut, io_.Data)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}

func cmdRead6(ctx *DeviceCtx, io_ *ScsiIo) error    { return cmdRead(ctx, io_, parseRW6(io_.CDB)) }
func cmdWrite6(ctx *DeviceCtx, io_ *ScsiIo) error   { return cmdWrite(ctx, io_, parseRW6(io_.CDB)) }
func cmdRead10(ctx *DeviceCtx, io_ *ScsiIo) error   { return cmdRead(ctx, io_, parseRW10(io_.CDB)) }
func cmdWrite10(ctx *DeviceCtx, io_ *ScsiIo) error  { return cmdWrite(ctx, io_, parseRW10(io_.CDB)) }
func cmdRead12(ctx *DeviceCtx, io_ *ScsiIo) error   { return cmdRead(ctx, io_, parseRW12(io_.CDB)) }
func cmdWrite12(ctx *DeviceCtx, io_ *ScsiIo) error  { return cmdWrite(ctx, io_, parseRW12(io_.CDB)) }
func cmdRead16(ctx *DeviceCtx, io_ *ScsiIo) error   { return cmdRead(ctx, io_, parseRW16(io_.CDB)) }
func cmdWrite16(ctx *DeviceCtx, io_ *ScsiIo) error  { return cmdWrite(ctx, io_, parseRW16(io_.CDB)) }

func cmdVerify10(ctx *DeviceCtx, io_ *ScsiIo) error { return cmdVerify(ctx, io_, parseVerify10(io_.CDB)) }
func cmdVerify12(ctx *DeviceCtx, io_ *ScsiIo) error { return cmdVerify(ctx, io_, parseVerify12(io_.CDB)) }
func cmdVerify16(ctx *DeviceCtx, io_ *ScsiIo) error { return cmdVerify(ctx, io_, parseVerify16(io_.CDB)) }
