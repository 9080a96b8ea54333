package sntl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/go-sntl/scsi"
)

func TestEmitSenseFixedFormat(t *testing.T) {
	sense := make([]byte, 18)
	emitSense(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, false)

	assert.Equal(t, byte(scsi.SenseResponseFixedCurrent), sense[0])
	assert.Equal(t, byte(scsi.SenseIllegalRequest), sense[2]&0x0f)
	assert.Equal(t, byte(0x24), sense[12])
	assert.Equal(t, byte(0x00), sense[13])
	assert.Equal(t, byte(0x0a), sense[7])
}

func TestEmitSenseDescriptorFormat(t *testing.T) {
	sense := make([]byte, 32)
	emitSense(sense, scsi.SenseMediumError, scsi.AscUnrecoveredReadError, true,
		informationDescriptor{value: 0x1234})

	require.Equal(t, byte(scsi.SenseResponseDescriptorCurrent), sense[0])
	assert.Equal(t, byte(scsi.SenseMediumError), sense[1]&0x0f)
	assert.Equal(t, byte(0x11), sense[2])
	assert.Equal(t, byte(0x00), sense[3])
	assert.Equal(t, byte(0x00), sense[8]) // information descriptor type
	assert.Equal(t, byte(0x0a), sense[9]) // descriptor length
	assert.True(t, sense[7] > 0, "additional sense length should be set")
}

func TestEmitSenseZeroesBufferFirst(t *testing.T) {
	sense := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	emitSense(sense, scsi.SenseNoSense, scsi.AscNoAdditionalSenseInfo, false)
	assert.Equal(t, byte(scsi.SenseResponseFixedCurrent), sense[0])
	assert.Equal(t, byte(0), sense[2]&0x0f)
}

func TestEmitFieldPointerDescriptorFixed(t *testing.T) {
	sense := make([]byte, 18)
	emitFieldPointerDescriptor(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, false,
		true, false, 3, 5)

	// SKS lives at bytes 15-17 in fixed format.
	assert.Equal(t, byte(0xc0|3), sense[15]) // valid(0x80) | cd(0x40) | bitPointer(3)
	assert.Equal(t, byte(0), sense[16])
	assert.Equal(t, byte(5), sense[17])
}

func TestEmitProgressDescriptorDescriptorFormat(t *testing.T) {
	sense := make([]byte, 16)
	emitProgressDescriptor(sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySanitize, true, 0x4000)

	require.Equal(t, byte(scsi.SenseDescriptorSenseKeySpecific), sense[8])
	assert.Equal(t, byte(0x80), sense[12]&0x80) // progress indicator marker
}

func TestEmitSenseTruncatesOnShortBuffer(t *testing.T) {
	sense := make([]byte, 4)
	assert.NotPanics(t, func() {
		emitSense(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, true,
			informationDescriptor{value: 0xff})
	})
}

func TestEmitSenseEmptyBufferIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		emitSense(nil, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, false)
	})
}
