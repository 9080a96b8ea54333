package sntl

import (
	"github.com/coreos/go-sntl/scsi"
)

// commandHandler is the shape every per-command translator implements:
// read the CDB and (for data-out commands) io_.Data, issue zero or more
// NVMe commands through ctx.Transport, and write either a data-in
// payload (io_.Write) or a sense buffer (emitSense and friends) — never
// both an error return and a successfully-written sense buffer, per
// spec.md §5 invariant: "the returned Go error signals a process-ending
// transport failure, never a SCSI-visible condition".
type commandHandler func(ctx *DeviceCtx, io_ *ScsiIo) error

var dispatchTable = map[byte]commandHandler{
	scsi.TestUnitReady:     cmdTestUnitReady,
	scsi.RequestSense:      cmdRequestSense,
	scsi.Inquiry:           cmdInquiry,
	scsi.ModeSelect:        cmdModeSelect6,
	scsi.ModeSense:         cmdModeSense6,
	scsi.StartStop:         cmdStartStopUnit,
	scsi.SendDiagnostic:    cmdSendDiagnostic,
	scsi.ReadCapacity:      cmdReadCapacity10,
	scsi.Read6:             cmdRead6,
	scsi.Write6:            cmdWrite6,
	scsi.Read10:            cmdRead10,
	scsi.Write10:           cmdWrite10,
	scsi.Verify:            cmdVerify10,
	scsi.SynchronizeCache:  cmdSynchronizeCache,
	scsi.WriteBuffer:       cmdWriteBuffer,
	scsi.Unmap:             cmdUnmap,
	scsi.Sanitize:          cmdSanitize,
	scsi.ModeSelect10:      cmdModeSelect10,
	scsi.ModeSense10:       cmdModeSense10,
	scsi.PersistentReserveIn:  cmdPersistentReserveIn,
	scsi.PersistentReserveOut: cmdPersistentReserveOut,
	scsi.SecurityProtocolIn:   cmdSecurityProtocolIn,
	scsi.Read12:            cmdRead12,
	scsi.Write12:            cmdWrite12,
	scsi.Verify12:           cmdVerify12,
	scsi.ReportLuns:         cmdReportLuns,
	scsi.Read16:             cmdRead16,
	scsi.Write16:            cmdWrite16,
	scsi.Verify16:           cmdVerify16,
	scsi.WriteLong:          cmdWriteLong,
	scsi.SynchronizeCache16: cmdSynchronizeCache,
	scsi.SecurityProtocolOut: cmdSecurityProtocolOut,
	scsi.LogSense:           cmdLogSense,
}

// serviceActionHandler is consulted for the three opcodes whose meaning
// is entirely determined by a service-action sub-field (spec.md §4.7):
// ServiceActionIn16 (9Eh, e.g. READ CAPACITY(16)), ServiceActionOut16
// (9Fh, unused by this translator), and MaintenanceIn (A3h, REPORT
// SUPPORTED OPERATION CODES).
type serviceActionHandler func(ctx *DeviceCtx, io_ *ScsiIo) error

var serviceActionIn16Table = map[byte]serviceActionHandler{
	scsi.SaiReadCapacity16: cmdReadCapacity16Dispatch,
}

var maintenanceInTable = map[byte]serviceActionHandler{
	scsi.MiReportSupportedOperationCodes: cmdReportSupportedOperationCodes,
}

// Translate implements C7: the single entry point a caller passes one
// ScsiIo through. It validates the control byte, dispatches to the
// matching per-command translator (via opcode or opcode+service-action),
// and reports UNKNOWN OPCODE / UNKNOWN SERVICE ACTION exactly as spec.md
// §4.7 describes for anything this translator doesn't recognize. The
// identify cache (C4) is populated lazily by the handlers that need it,
// not unconditionally here, so that commands answered without device
// data (REPORT LUNS, SEND DIAGNOSTIC, REPORT SUPPORTED OPERATION CODES)
// don't pay an identify round trip they don't need — handlers call
// ctx.ensureIdentify() themselves.
func Translate(ctx *DeviceCtx, io_ *ScsiIo) error {
	if len(io_.Sense) == 0 {
		io_.Sense = ctx.fallbackSense[:]
	}
	for i := range io_.Sense {
		io_.Sense[i] = 0
	}

	opcode := io_.Opcode()

	if validateControlByte(io_, ctx) {
		return nil
	}

	switch opcode {
	case scsi.ServiceActionIn16:
		return dispatchServiceAction(ctx, io_, serviceActionIn16Table, io_.CDB[1]&0x1f)
	case scsi.MaintenanceIn:
		return dispatchServiceAction(ctx, io_, maintenanceInTable, io_.CDB[1]&0x1f)
	}

	handler, ok := dispatchTable[opcode]
	if !ok {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
		return nil
	}
	return handler(ctx, io_)
}

func dispatchServiceAction(ctx *DeviceCtx, io_ *ScsiIo, table map[byte]serviceActionHandler, action byte) error {
	handler, ok := table[action]
	if !ok {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 4)
		return nil
	}
	return handler(ctx, io_)
}
