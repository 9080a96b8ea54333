package sntl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/go-sntl/scsi"
)

func TestValidateReservedNoViolation(t *testing.T) {
	io_ := &ScsiIo{CDB: []byte{0x12, 0x00, 0x00, 0x00, 0x60, 0x00}, Sense: make([]byte, 18)}
	ctx := &DeviceCtx{}
	fields := []reservedField{{1, 0xfe}}
	assert.False(t, validateReserved(io_, ctx, fields))
	for _, b := range io_.Sense {
		assert.Equal(t, byte(0), b)
	}
}

func TestValidateReservedReportsFirstViolation(t *testing.T) {
	io_ := &ScsiIo{CDB: []byte{0x12, 0x08, 0x00, 0x00, 0x60, 0x00}, Sense: make([]byte, 18)}
	ctx := &DeviceCtx{}
	fields := []reservedField{{1, 0xfe}}

	require.True(t, validateReserved(io_, ctx, fields))
	assert.Equal(t, byte(scsi.SenseIllegalRequest), io_.Sense[2]&0x0f)
	assert.Equal(t, byte(0x24), io_.Sense[12])
	assert.Equal(t, byte(0x00), io_.Sense[13])
	// bit 3 (0x08) is the most-significant set bit of the offending value.
	assert.Equal(t, byte(3), io_.Sense[15]&0x07)
}

func TestValidateReservedSkipsOutOfRangeOffset(t *testing.T) {
	io_ := &ScsiIo{CDB: []byte{0x00}, Sense: make([]byte, 18)}
	ctx := &DeviceCtx{}
	fields := []reservedField{{5, 0xff}}
	assert.False(t, validateReserved(io_, ctx, fields))
}

func TestControlByteOffsetFixedLength(t *testing.T) {
	assert.Equal(t, 5, controlByteOffset(scsi.Inquiry, 6))
	assert.Equal(t, 9, controlByteOffset(scsi.Read10, 10))
	assert.Equal(t, 1, controlByteOffset(0x7e, 12))
	assert.Equal(t, 1, controlByteOffset(0x7f, 32))
}

func TestValidateControlByteAcceptsVendorBits(t *testing.T) {
	io_ := &ScsiIo{CDB: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xc0}, Sense: make([]byte, 18)}
	ctx := &DeviceCtx{}
	assert.False(t, validateControlByte(io_, ctx))
}

func TestValidateControlByteRejectsReservedBits(t *testing.T) {
	io_ := &ScsiIo{CDB: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}, Sense: make([]byte, 18)}
	ctx := &DeviceCtx{}
	require.True(t, validateControlByte(io_, ctx))
	assert.Equal(t, byte(scsi.SenseIllegalRequest), io_.Sense[2]&0x0f)
}

func TestValidateParameterListField(t *testing.T) {
	sense := make([]byte, 18)
	validateParameterListField(sense, false, 4, 0x40)
	assert.Equal(t, byte(scsi.SenseIllegalRequest), sense[2]&0x0f)
	assert.Equal(t, byte(0x26), sense[12])
	assert.Equal(t, byte(0x00), sense[13])
	assert.Equal(t, byte(6), sense[15]&0x07)
}

func TestValidateCdbField(t *testing.T) {
	sense := make([]byte, 18)
	validateCdbField(sense, false, 7, 2)
	assert.Equal(t, byte(scsi.SenseIllegalRequest), sense[2]&0x0f)
	assert.Equal(t, byte(0x24), sense[12])
	assert.Equal(t, byte(7), sense[17])
}
