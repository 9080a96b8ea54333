package sntl

import (
	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// mapNvmeStatus implements C2: decode an NVMe completion status DWord
// into a (sense key, ASC, ASCQ) triple and write the resulting sense
// buffer, per the three tables in spec.md §4.2.
func mapNvmeStatus(sense []byte, status nvme.StatusDword, descriptorFormat bool) {
	if status.Success() {
		for i := range sense {
			sense[i] = 0
		}
		return
	}

	sct := status.SCT()
	sc := status.SC()

	if sct == nvme.SCTVendorSpecific {
		emitSense(sense, scsi.SenseVendorSpecific, 0x0000, descriptorFormat)
		return
	}

	switch sct {
	case nvme.SCTGeneric:
		mapGenericStatus(sense, sc, status.DNR(), descriptorFormat)
	case nvme.SCTCommandSpecific:
		mapCommandSpecificStatus(sense, sc, descriptorFormat)
	case nvme.SCTMediaIntegrity:
		mapMediaIntegrityStatus(sense, sc, descriptorFormat)
	default:
		if sc >= 0xc0 {
			emitSense(sense, scsi.SenseVendorSpecific, 0x0000, descriptorFormat)
			return
		}
		emitSense(sense, scsi.SenseAbortedCommand, 0x0000, descriptorFormat)
	}
}

func mapGenericStatus(sense []byte, sc uint8, dnr bool, descriptorFormat bool) {
	switch sc {
	case nvme.SCInvalidOpcode:
		emitSense(sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, descriptorFormat)
	case nvme.SCInvalidField:
		emitSense(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, descriptorFormat)
	case nvme.SCDataTransferError:
		emitSense(sense, scsi.SenseMediumError, scsi.AscReadError, descriptorFormat)
	case nvme.SCAbortedPowerLoss:
		emitSense(sense, scsi.SenseAbortedCommand, 0x0b08, descriptorFormat)
	case nvme.SCInternalError:
		emitSense(sense, scsi.SenseHardwareError, scsi.AscInternalTargetFailure, descriptorFormat)
	case nvme.SCAbortRequested, nvme.SCAbortSQDeletion, nvme.SCAbortFailedFused, nvme.SCAbortMissingFused:
		emitSense(sense, scsi.SenseAbortedCommand, 0x0000, descriptorFormat)
	case nvme.SCLBAOutOfRange:
		emitSense(sense, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange, descriptorFormat)
	case nvme.SCNamespaceNotReady:
		if dnr {
			emitSense(sense, scsi.SenseNotReady, 0x0401, descriptorFormat)
		} else {
			emitSense(sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReady, descriptorFormat)
		}
	case nvme.SCFormatInProgress:
		emitSense(sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadyFormat, descriptorFormat)
	case nvme.SCSanitizeInProgress:
		emitSense(sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySanitize, descriptorFormat)
	case nvme.SCSanitizeFailed:
		emitSense(sense, scsi.SenseMediumError, scsi.AscSanitizeFailed, descriptorFormat)
	default:
		if sc >= 0xc0 {
			emitSense(sense, scsi.SenseVendorSpecific, 0x0000, descriptorFormat)
			return
		}
		emitSense(sense, scsi.SenseAbortedCommand, 0x0000, descriptorFormat)
	}
}

func mapCommandSpecificStatus(sense []byte, sc uint8, descriptorFormat bool) {
	switch sc {
	case nvme.SCInvalidFormat:
		emitSense(sense, scsi.SenseMediumError, scsi.AscMediumFormatCorrupted, descriptorFormat)
	case nvme.SCSelfTestInProgress:
		emitSense(sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySelfTest, descriptorFormat)
	case nvme.SCConflictingAttributes:
		emitSense(sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, descriptorFormat)
	case nvme.SCWriteToROrange:
		emitSense(sense, scsi.SenseDataProtect, scsi.AscWriteProtected, descriptorFormat)
	default:
		if sc >= 0xc0 {
			emitSense(sense, scsi.SenseVendorSpecific, 0x0000, descriptorFormat)
			return
		}
		emitSense(sense, scsi.SenseAbortedCommand, 0x0000, descriptorFormat)
	}
}

func mapMediaIntegrityStatus(sense []byte, sc uint8, descriptorFormat bool) {
	switch sc {
	case nvme.SCWriteFault:
		emitSense(sense, scsi.SenseMediumError, scsi.AscWriteError, descriptorFormat)
	case nvme.SCUnrecoveredRead:
		emitSense(sense, scsi.SenseMediumError, scsi.AscUnrecoveredReadError, descriptorFormat)
	case nvme.SCGuardCheck:
		emitSense(sense, scsi.SenseMediumError, scsi.AscLogicalBlockGuardCheck, descriptorFormat)
	case nvme.SCApplicationTagCheck:
		emitSense(sense, scsi.SenseMediumError, scsi.AscLogicalBlockAppTagCheck, descriptorFormat)
	case nvme.SCReferenceTagCheck:
		emitSense(sense, scsi.SenseMediumError, scsi.AscLogicalBlockRefTagCheck, descriptorFormat)
	case nvme.SCCompareFailure:
		emitSense(sense, scsi.SenseMiscompare, scsi.AscMiscompareDuringVerifyOperation, descriptorFormat)
	case nvme.SCAccessDenied:
		emitSense(sense, scsi.SenseDataProtect, 0x2002, descriptorFormat)
	default:
		if sc >= 0xc0 {
			emitSense(sense, scsi.SenseVendorSpecific, 0x0000, descriptorFormat)
			return
		}
		emitSense(sense, scsi.SenseAbortedCommand, 0x0000, descriptorFormat)
	}
}
