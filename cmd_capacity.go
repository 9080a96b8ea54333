package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/scsi"
)

// cmdReadCapacity10 implements READ CAPACITY (10) (25h): spec.md §4.5.2.
// Reports the saturated max LBA (0xffffffff) when the real value doesn't
// fit 32 bits, signaling the initiator to fall back to READ CAPACITY (16).
func cmdReadCapacity10(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()

	buf := make([]byte, 8)
	maxLBA := ctx.MaxLBA()
	if maxLBA > 0xfffffffe {
		binary.BigEndian.PutUint32(buf[0:4], 0xffffffff)
	} else {
		binary.BigEndian.PutUint32(buf[0:4], uint32(maxLBA))
	}
	binary.BigEndian.PutUint32(buf[4:8], ctx.BlockSize())
	io_.Write(buf)
	return nil
}

var readCapacity16Reserved = []reservedField{
	{14, 0x7e}, // bits 1-6 reserved (bit0 PMI is obsolete/tolerated, bit7 control)
}

// cmdReadCapacity16 implements READ CAPACITY (16) (9Eh/10h): spec.md
// §4.5.2. Populates LOGICAL BLOCKS PER PHYSICAL BLOCK EXPONENT and
// LOWEST ALIGNED LOGICAL BLOCK ADDRESS from the namespace's NAWUPF/NABO
// when available, and P_TYPE/PROT_EN from the namespace's DPS.
func cmdReadCapacity16(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()

	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[0:8], ctx.MaxLBA())
	binary.BigEndian.PutUint32(buf[8:12], ctx.BlockSize())

	if ctx.Namespace.Dps&0x07 != 0 {
		buf[12] |= 0x01 // PROT_EN
		pType := (ctx.Namespace.Dps & 0x07) - 1
		buf[12] |= pType << 1
	}

	exponent := byte(0)
	if ctx.Namespace.Nawupf > 0 {
		for (1 << exponent) < ctx.Namespace.Nawupf+1 {
			exponent++
		}
	}
	buf[13] = exponent & 0x0f

	lowestAligned := ctx.Namespace.Nabo
	binary.BigEndian.PutUint16(buf[14:16], lowestAligned&0x3fff)

	io_.Write(buf)
	return nil
}

func cmdReadCapacity16Dispatch(ctx *DeviceCtx, io_ *ScsiIo) error {
	if validateReserved(io_, ctx, readCapacity16Reserved) {
		return nil
	}
	allocLen := binary.BigEndian.Uint32(io_.CDB[10:14])
	if allocLen < 32 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 10, 7)
		return nil
	}
	return cmdReadCapacity16(ctx, io_)
}

// cmdReadBlockLimits is the obsolete READ BLOCK LIMITS (05h) command,
// unsupported per spec.md §6's follow-the-pattern list; reported exactly
// like any unimplemented opcode.
func cmdReadBlockLimits(ctx *DeviceCtx, io_ *ScsiIo) error {
	emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
	return nil
}
