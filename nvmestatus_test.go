package sntl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

func statusDword(sct, sc uint8, dnr bool) nvme.StatusDword {
	var s uint32
	s |= uint32(sct&0x7) << 25
	s |= uint32(sc) << 17
	if dnr {
		s |= 1 << 31
	}
	return nvme.StatusDword(s)
}

func TestMapNvmeStatusSuccessClearsSense(t *testing.T) {
	sense := []byte{0x70, 0x05, 0x05, 0x24}
	mapNvmeStatus(sense, statusDword(0, 0, false), false)
	for i, b := range sense {
		assert.Equalf(t, byte(0), b, "byte %d not cleared", i)
	}
}

func TestMapNvmeStatusGenericCases(t *testing.T) {
	cases := []struct {
		name        string
		sct, sc     uint8
		dnr         bool
		wantKey     byte
		wantAscAscq uint16
	}{
		{"invalid opcode", nvme.SCTGeneric, nvme.SCInvalidOpcode, false, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode},
		{"invalid field", nvme.SCTGeneric, nvme.SCInvalidField, false, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb},
		{"lba out of range", nvme.SCTGeneric, nvme.SCLBAOutOfRange, false, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange},
		{"ns not ready, no dnr", nvme.SCTGeneric, nvme.SCNamespaceNotReady, false, scsi.SenseNotReady, scsi.AscLogicalUnitNotReady},
		{"sanitize in progress", nvme.SCTGeneric, nvme.SCSanitizeInProgress, false, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySanitize},
		{"internal error", nvme.SCTGeneric, nvme.SCInternalError, false, scsi.SenseHardwareError, scsi.AscInternalTargetFailure},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sense := make([]byte, 18)
			mapNvmeStatus(sense, statusDword(c.sct, c.sc, c.dnr), false)
			assert.Equal(t, c.wantKey, sense[2]&0x0f)
			gotAsc := uint16(sense[12])<<8 | uint16(sense[13])
			assert.Equal(t, c.wantAscAscq, gotAsc)
		})
	}
}

func TestMapNvmeStatusMediaIntegrity(t *testing.T) {
	sense := make([]byte, 18)
	mapNvmeStatus(sense, statusDword(nvme.SCTMediaIntegrity, nvme.SCCompareFailure, false), false)
	assert.Equal(t, byte(scsi.SenseMiscompare), sense[2]&0x0f)
	assert.Equal(t, byte(0x1d), sense[12])
}

func TestMapNvmeStatusCommandSpecific(t *testing.T) {
	sense := make([]byte, 18)
	mapNvmeStatus(sense, statusDword(nvme.SCTCommandSpecific, nvme.SCWriteToROrange, false), false)
	assert.Equal(t, byte(scsi.SenseDataProtect), sense[2]&0x0f)
	assert.Equal(t, byte(0x27), sense[12])
}

func TestMapNvmeStatusVendorSpecificSCT(t *testing.T) {
	sense := make([]byte, 18)
	mapNvmeStatus(sense, statusDword(nvme.SCTVendorSpecific, 0x55, false), false)
	assert.Equal(t, byte(scsi.SenseVendorSpecific), sense[2]&0x0f)
}

func TestMapNvmeStatusUnknownFallsBackToAborted(t *testing.T) {
	sense := make([]byte, 18)
	mapNvmeStatus(sense, statusDword(nvme.SCTGeneric, 0x7e, false), false)
	assert.Equal(t, byte(scsi.SenseAbortedCommand), sense[2]&0x0f)
}
