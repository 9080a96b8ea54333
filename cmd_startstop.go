package sntl

import (
	"github.com/coreos/go-sntl/nvme"
)

// cmdStartStopUnit implements START STOP UNIT (1Bh): spec.md §4.5.9 maps
// the POWER CONDITION field to an NVMe power state via the Power
// Management feature, and START/IMMED toggles between the lowest
// non-operational state (STOP, power condition 0) and power state 0
// (START).
func cmdStartStopUnit(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	start := cdb[4]&0x01 != 0
	powerCondition := (cdb[4] >> 4) & 0x0f

	var targetState uint32
	switch {
	case powerCondition == 0x01: // ACTIVE
		targetState = 0
	case powerCondition == 0x02, powerCondition == 0x03: // IDLE, STANDBY
		targetState = lastNonOperationalState(ctx)
	case !start:
		targetState = lastNonOperationalState(ctx)
	default:
		targetState = 0
	}

	is := issuer{ctx: ctx}
	status := is.admin(nvme.AdminSetFeatures, 0, uint32(nvme.FeaturePowerManagement), targetState, 0, 0, 0, 0, BufNone, nil)
	if !status.Success() {
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
		return nil
	}
	return nil
}

// lastNonOperationalState returns the highest-numbered (lowest-power)
// power state the controller's Identify data advertises, used whenever
// the SCSI request asks for a non-active power condition without naming
// an exact state.
func lastNonOperationalState(ctx *DeviceCtx) uint32 {
	npss := ctx.Controller.Npss
	if npss == 0 {
		return 0
	}
	return uint32(npss)
}
