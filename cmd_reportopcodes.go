package sntl

import (
	"encoding/binary"
	"sort"

	"github.com/coreos/go-sntl/scsi"
)

// opcodeTableEntry describes one dispatchable opcode (optionally
// service-action-qualified) for REPORT SUPPORTED OPERATION CODES (C8),
// spec.md §4.5.12.
type opcodeTableEntry struct {
	opcode         byte
	hasServiceAction bool
	serviceAction  uint16
	cdbLength      uint16
	supported      bool // false entries are reported with support=1 ("not supported")
}

// supportedOpcodes enumerates every opcode (and qualifying service
// action) this translator dispatches; reportAllOpcodes emits them in
// ascending opcode/service-action order, as C8 requires, whatever their
// order here. It is built by hand from dispatch.go's table rather than
// derived from it at runtime, since the explicitly-unsupported opcodes
// from spec.md §6 (WRITE LONG, whose dispatch entry only rejects it) are
// listed here to report "not supported".
var supportedOpcodes = []opcodeTableEntry{
	{opcode: scsi.TestUnitReady, cdbLength: 6, supported: true},
	{opcode: scsi.RequestSense, cdbLength: 6, supported: true},
	{opcode: scsi.Inquiry, cdbLength: 6, supported: true},
	{opcode: scsi.ModeSelect, cdbLength: 6, supported: true},
	{opcode: scsi.ModeSense, cdbLength: 6, supported: true},
	{opcode: scsi.StartStop, cdbLength: 6, supported: true},
	{opcode: scsi.SendDiagnostic, cdbLength: 6, supported: true},
	{opcode: scsi.ReadCapacity, cdbLength: 10, supported: true},
	{opcode: scsi.Read6, cdbLength: 6, supported: true},
	{opcode: scsi.Write6, cdbLength: 6, supported: true},
	{opcode: scsi.Read10, cdbLength: 10, supported: true},
	{opcode: scsi.Write10, cdbLength: 10, supported: true},
	{opcode: scsi.Verify, cdbLength: 10, supported: true},
	{opcode: scsi.SynchronizeCache, cdbLength: 10, supported: true},
	{opcode: scsi.WriteBuffer, cdbLength: 10, supported: true},
	{opcode: scsi.Unmap, cdbLength: 10, supported: true},
	{opcode: scsi.Sanitize, cdbLength: 10, supported: true},
	{opcode: scsi.ModeSelect10, cdbLength: 10, supported: true},
	{opcode: scsi.ModeSense10, cdbLength: 10, supported: true},
	{opcode: scsi.PersistentReserveIn, cdbLength: 10, supported: true},
	{opcode: scsi.PersistentReserveOut, cdbLength: 10, supported: true},
	{opcode: scsi.SecurityProtocolIn, cdbLength: 12, supported: true},
	{opcode: scsi.SecurityProtocolOut, cdbLength: 12, supported: true},
	{opcode: scsi.Read12, cdbLength: 12, supported: true},
	{opcode: scsi.Write12, cdbLength: 12, supported: true},
	{opcode: scsi.Verify12, cdbLength: 12, supported: true},
	{opcode: scsi.ReportLuns, cdbLength: 12, supported: true},
	{opcode: scsi.Read16, cdbLength: 16, supported: true},
	{opcode: scsi.Write16, cdbLength: 16, supported: true},
	{opcode: scsi.Verify16, cdbLength: 16, supported: true},
	{opcode: scsi.WriteLong, cdbLength: 10, supported: false},
	{opcode: scsi.SynchronizeCache16, cdbLength: 16, supported: true},
	{opcode: scsi.ServiceActionIn16, hasServiceAction: true, serviceAction: scsi.SaiReadCapacity16, cdbLength: 16, supported: true},
	{opcode: scsi.MaintenanceIn, hasServiceAction: true, serviceAction: scsi.MiReportSupportedOperationCodes, cdbLength: 12, supported: true},
	{opcode: scsi.LogSense, cdbLength: 10, supported: true},
}

// cmdReportSupportedOperationCodes implements MAINTENANCE IN (A3h),
// service action 0Ch, per spec.md §4.5.12: reporting option 00h walks
// the full table; 01h/02h/03h report a single opcode/service-action pair.
func cmdReportSupportedOperationCodes(ctx *DeviceCtx, io_ *ScsiIo) error {
	cdb := io_.CDB
	option := cdb[2] & 0x07
	reqOpcode := cdb[3]
	reqServiceAction := binary.BigEndian.Uint16(cdb[4:6])

	switch option {
	case 0x00:
		return reportAllOpcodes(ctx, io_)
	case 0x01, 0x02, 0x03:
		return reportOneOpcode(ctx, io_, option, reqOpcode, reqServiceAction)
	default:
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 2)
		return nil
	}
}

func reportAllOpcodes(ctx *DeviceCtx, io_ *ScsiIo) error {
	entries := make([]opcodeTableEntry, len(supportedOpcodes))
	copy(entries, supportedOpcodes)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].opcode != entries[j].opcode {
			return entries[i].opcode < entries[j].opcode
		}
		return entries[i].serviceAction < entries[j].serviceAction
	})
	var body []byte
	for _, e := range entries {
		if !e.supported {
			continue
		}
		entry := make([]byte, 8)
		entry[0] = e.opcode
		if e.hasServiceAction {
			entry[5] |= 0x01
			binary.BigEndian.PutUint16(entry[2:4], e.serviceAction)
		}
		binary.BigEndian.PutUint16(entry[6:8], e.cdbLength)
		body = append(body, entry...)
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	copy(buf[4:], body)
	io_.Write(buf)
	return nil
}

func findOpcode(opcode byte, hasServiceAction bool, serviceAction uint16) (opcodeTableEntry, bool) {
	for _, e := range supportedOpcodes {
		if e.opcode != opcode {
			continue
		}
		if e.hasServiceAction != hasServiceAction {
			continue
		}
		if hasServiceAction && e.serviceAction != serviceAction {
			continue
		}
		return e, true
	}
	return opcodeTableEntry{}, false
}

func reportOneOpcode(ctx *DeviceCtx, io_ *ScsiIo, option, reqOpcode byte, reqServiceAction uint16) error {
	hasServiceAction := option != 0x01
	e, found := findOpcode(reqOpcode, hasServiceAction, reqServiceAction)
	if option == 0x03 && !found {
		// Auto-detect: try without a service action qualifier too.
		e, found = findOpcode(reqOpcode, false, 0)
	}

	buf := make([]byte, 4)
	if !found || !e.supported {
		buf[1] = 0x01 // support = 001b, not supported
		io_.Write(buf)
		return nil
	}

	buf[1] = 0x03 // support = 011b, supported per standard
	binary.BigEndian.PutUint16(buf[2:4], e.cdbLength)
	cdbUsage := make([]byte, e.cdbLength)
	cdbUsage[0] = e.opcode
	buf = append(buf, cdbUsage...)
	io_.Write(buf)
	return nil
}
