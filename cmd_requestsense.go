package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// cmdRequestSense implements REQUEST SENSE (03h): spec.md §4.5.6's
// "priority probe" — since NVMe has no per-command deferred sense to
// drain, this synthesizes a plausible current condition by checking, in
// order, the Sanitize Status log, the Device Self-Test log, and the
// Power Management feature, reporting the first one that indicates an
// in-progress or abnormal state. If none do, it reports NO SENSE.
func cmdRequestSense(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	desc := io_.CDB[1]&0x01 != 0

	if progress, ok := sanitizeInProgress(ctx); ok {
		emitProgressDescriptor(io_.Sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySanitize, desc, progress)
		return nil
	}
	if progress, ok := selfTestInProgress(ctx); ok {
		emitProgressDescriptor(io_.Sense, scsi.SenseNotReady, scsi.AscLogicalUnitNotReadySelfTest, desc, progress)
		return nil
	}
	if lowPower(ctx) {
		emitSense(io_.Sense, scsi.SenseNoSense, scsi.AscLowPowerConditionOn, desc)
		return nil
	}
	emitSense(io_.Sense, scsi.SenseNoSense, scsi.AscNoAdditionalSenseInfo, desc)
	return nil
}

func sanitizeInProgress(ctx *DeviceCtx) (uint16, bool) {
	buf := make([]byte, 20)
	is := issuer{ctx: ctx}
	cdw10 := uint32(nvme.LogSanitizeStatus) | (uint32(20/4-1) << 16)
	status := is.admin(nvme.AdminGetLogPage, 0xffffffff, cdw10, 0, 0, 0, 0, 0, BufIn, buf)
	if !status.Success() {
		return 0, false
	}
	sstat := binary.LittleEndian.Uint16(buf[0:2])
	if sstat&0x07 != nvme.SanitizeStatusInProgress {
		return 0, false
	}
	sprog := binary.LittleEndian.Uint16(buf[2:4])
	progress := uint16(uint32(sprog) * 65535 / 65536)
	return progress, true
}

func selfTestInProgress(ctx *DeviceCtx) (uint16, bool) {
	buf := make([]byte, 32)
	is := issuer{ctx: ctx}
	cdw10 := uint32(nvme.LogDeviceSelfTest) | (uint32(32/4-1) << 16)
	status := is.admin(nvme.AdminGetLogPage, 0xffffffff, cdw10, 0, 0, 0, 0, 0, BufIn, buf)
	if !status.Success() {
		return 0, false
	}
	current := buf[0] & 0x0f
	if current == 0 {
		return 0, false
	}
	percent := buf[1] & 0x7f
	progress := uint16(uint32(percent) * 65535 / 100)
	return progress, true
}

func lowPower(ctx *DeviceCtx) bool {
	is := issuer{ctx: ctx}
	status, result := is.adminResult(nvme.AdminGetFeatures, 0, uint32(nvme.FeaturePowerManagement), 0, 0, 0, 0, BufNone, nil)
	if !status.Success() {
		return false
	}
	ps := result & 0xff
	return ps > 0
}
