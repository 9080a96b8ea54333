package sntl

import (
	"math/bits"

	"github.com/coreos/go-sntl/scsi"
)

// reservedField declares one reserved byte (or masked portion of a byte)
// a CDB validator checks. byteOffset is the CDB index; mask selects which
// bits of that byte are reserved (must be zero). Scan order is the slice
// order the command table declares, which spec.md §4.3 requires to be
// "ascending byte index; within a byte, semantic order declared by the
// command table" so that identical malformed CDBs always report the same
// pointer.
type reservedField struct {
	byteOffset int
	mask       byte
}

// validateReserved implements C3: walks fields in order, and on the first
// one with a non-zero masked value, emits ILLEGAL REQUEST / INVALID FIELD
// IN CDB with a field-pointer sense-key-specific descriptor. bitPointer is
// the most-significant set bit of the offending masked value (spec.md
// §4.3: "computes bit_pointer as the most-significant set bit of the
// offending value within the byte"). Returns true if a violation was
// found and sense was written.
func validateReserved(io_ *ScsiIo, ctx *DeviceCtx, fields []reservedField) bool {
	for _, f := range fields {
		if f.byteOffset >= len(io_.CDB) {
			continue
		}
		v := io_.CDB[f.byteOffset] & f.mask
		if v == 0 {
			continue
		}
		bitPointer := 7 - bits.LeadingZeros8(v)
		emitFieldPointerDescriptor(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, ctx.DescriptorSenseFormat,
			true, false, uint8(bitPointer), uint16(f.byteOffset))
		return true
	}
	return false
}

// controlByteOffset returns the offset of the control byte for a CDB of
// the given opcode and length: last byte for fixed-length CDBs, index 1
// for the variable-length (7Eh) and 32-byte (7Fh) forms (spec.md §4.3).
func controlByteOffset(opcode byte, cdbLen int) int {
	if opcode == 0x7e || opcode == 0x7f {
		return 1
	}
	return cdbLen - 1
}

// validateControlByte enforces that bits 0-5 of the control byte are
// clear (bits 6,7 are vendor-specific and tolerated), per spec.md §4.3.
func validateControlByte(io_ *ScsiIo, ctx *DeviceCtx) bool {
	off := controlByteOffset(io_.Opcode(), len(io_.CDB))
	if off < 0 || off >= len(io_.CDB) {
		return false
	}
	v := io_.CDB[off] & 0x3f
	if v == 0 {
		return false
	}
	bitPointer := 7 - bits.LeadingZeros8(v)
	emitFieldPointerDescriptor(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, ctx.DescriptorSenseFormat,
		true, false, uint8(bitPointer), uint16(off))
	return true
}

// validateParameterListField reports an invalid field within a data-out
// parameter list (MODE SELECT, PERSISTENT RESERVE OUT, UNMAP): CD=0, ASC
// 26h/00h, per spec.md §7's "Invalid field in parameter list" row.
func validateParameterListField(sense []byte, descriptorFormat bool, byteOffset int, mask byte) {
	bitPointer := 7
	if mask != 0 {
		bitPointer = 7 - bits.LeadingZeros8(mask)
	}
	emitFieldPointerDescriptor(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList, descriptorFormat,
		false, true, uint8(bitPointer), uint16(byteOffset))
}

// validateCdbField reports an invalid field within the CDB itself at an
// arbitrary byte/bit (used by per-command translators for checks that
// aren't simple "reserved bit" scans, e.g. an out-of-range transfer
// length or an unsupported BYTCHK value).
func validateCdbField(sense []byte, descriptorFormat bool, byteOffset int, bitPointer uint8) {
	emitFieldPointerDescriptor(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, descriptorFormat,
		true, false, bitPointer, uint16(byteOffset))
}
