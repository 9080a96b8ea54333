package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

// PR OUT service actions (SPC-5 table "PERSISTENT RESERVE OUT service actions").
const (
	prOutRegister              = 0x00
	prOutReserve               = 0x01
	prOutRelease               = 0x02
	prOutClear                 = 0x03
	prOutPreempt               = 0x04
	prOutPreemptAndAbort       = 0x05
	prOutRegisterIgnoreKey     = 0x06
	prOutRegisterAndMove       = 0x07
)

// PR IN service actions.
const (
	prInReadKeys         = 0x00
	prInReadReservation  = 0x01
	prInReportCapability = 0x02
	prInReadFullStatus   = 0x03
)

// Reservation Type codes (SPC-5 table 66), reused as the NVMe Reservation
// Type Encoding, since the two catalogues are numerically identical for
// the types this translator supports.
const (
	prTypeWriteExclusive            = 0x01
	prTypeExclusiveAccess           = 0x03
	prTypeWriteExclusiveRegistrants = 0x05
	prTypeExclusiveAccessRegistrants = 0x06
	prTypeWriteExclusiveAllRegistrants = 0x07
	prTypeExclusiveAccessAllRegistrants = 0x08
)

// cmdPersistentReserveIn implements PERSISTENT RESERVE IN (5Eh) by
// issuing NVMe Reservation Report (0Eh) and translating the returned
// controller/registrant list, per spec.md §4.5.10.
func cmdPersistentReserveIn(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	action := io_.CDB[1] & 0x1f

	switch action {
	case prInReadKeys, prInReadReservation, prInReadFullStatus:
		return prInReport(ctx, io_, action)
	case prInReportCapability:
		return prInReportCapabilities(ctx, io_)
	default:
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 4)
		return nil
	}
}

type reservationReportEntry struct {
	hostID   [8]byte
	rkey     uint64
	rtype    uint8
	holder   bool
}

func getReservationReport(ctx *DeviceCtx) ([]reservationReportEntry, bool, bool) {
	buf := make([]byte, 4096)
	is := issuer{ctx: ctx}
	numd := uint32(len(buf)/4) - 1
	status := is.io(nvme.IOReservationReport, ctx.Nsid, numd, 0, 0, 0, 0, 0, BufIn, buf)
	if !status.Success() {
		return nil, false, false
	}

	gen := binary.LittleEndian.Uint32(buf[0:4])
	_ = gen
	rtype := buf[4]
	ptpls := buf[5]&0x01 != 0
	numRegs := binary.LittleEndian.Uint16(buf[6:8])

	var entries []reservationReportEntry
	const recSize = 24
	for i := 0; i < int(numRegs); i++ {
		off := 24 + i*recSize
		if off+recSize > len(buf) {
			break
		}
		var e reservationReportEntry
		copy(e.hostID[:], buf[off:off+8])
		e.rkey = binary.LittleEndian.Uint64(buf[off+8 : off+16])
		e.rtype = rtype
		e.holder = buf[off+16]&0x01 != 0
		entries = append(entries, e)
	}
	return entries, ptpls, true
}

func prInReport(ctx *DeviceCtx, io_ *ScsiIo, action byte) error {
	entries, _, ok := getReservationReport(ctx)
	if !ok {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
		return nil
	}

	switch action {
	case prInReadKeys:
		buf := make([]byte, 8+len(entries)*8)
		binary.BigEndian.PutUint32(buf[4:8], uint32(len(entries)*8))
		for i, e := range entries {
			off := 8 + i*8
			synthKey := binary.LittleEndian.Uint64(e.hostID[:]) ^ e.rkey
			binary.BigEndian.PutUint64(buf[off:off+8], synthKey)
		}
		io_.Write(buf)
	case prInReadReservation:
		var holder *reservationReportEntry
		for i := range entries {
			if entries[i].holder {
				holder = &entries[i]
				break
			}
		}
		if holder == nil {
			buf := make([]byte, 8)
			io_.Write(buf)
			return nil
		}
		buf := make([]byte, 24)
		binary.BigEndian.PutUint32(buf[4:8], 16)
		synthKey := binary.LittleEndian.Uint64(holder.hostID[:]) ^ holder.rkey
		binary.BigEndian.PutUint64(buf[8:16], synthKey)
		buf[21] = holder.rtype
		io_.Write(buf)
	case prInReadFullStatus:
		var body []byte
		for _, e := range entries {
			entry := make([]byte, 24)
			synthKey := binary.LittleEndian.Uint64(e.hostID[:]) ^ e.rkey
			binary.BigEndian.PutUint64(entry[0:8], synthKey)
			if e.holder {
				entry[8] = 0x01
			}
			entry[13] = e.rtype
			binary.BigEndian.PutUint32(entry[20:24], 0)
			body = append(body, entry...)
		}
		buf := make([]byte, 8+len(body))
		binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
		copy(buf[8:], body)
		io_.Write(buf)
	}
	return nil
}

func prInReportCapabilities(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], 8)
	buf[2] = 0x10 // ATP_C (all target ports) — closest analogue NVMe reservations offer
	buf[3] = 0x00
	binary.BigEndian.PutUint16(buf[4:6], 0)
	// TYPE MASK: this translator supports WE, EA, WERO, EARO, WEAR, EAAR.
	buf[6] = 0xea
	buf[7] = 0x00
	io_.Write(buf)
	return nil
}

// cmdPersistentReserveOut implements PERSISTENT RESERVE OUT (5Fh): spec.md
// §4.5.10 maps REGISTER to Reservation Register, RESERVE/RELEASE to
// Reservation Acquire/Release, and CLEAR to a Release with the "clear"
// RRELA. PREEMPT forms use Reservation Acquire's preempt RACQA.
func cmdPersistentReserveOut(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	action := io_.CDB[1] & 0x1f
	scope := io_.CDB[2] >> 4
	ptype := io_.CDB[2] & 0x0f
	if scope != 0 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 7)
		return nil
	}
	if len(io_.Data) < 24 {
		validateParameterListField(io_.Sense, ctx.DescriptorSenseFormat, 0, 0xff)
		return nil
	}

	rkey := binary.BigEndian.Uint64(io_.Data[0:8])
	sarkey := binary.BigEndian.Uint64(io_.Data[8:16])

	is := issuer{ctx: ctx}
	var status nvme.StatusDword

	switch action {
	case prOutRegister, prOutRegisterIgnoreKey:
		rrega := uint32(0)
		if action == prOutRegisterIgnoreKey {
			rrega = 1
		}
		iekey := uint32(0)
		if action == prOutRegisterIgnoreKey {
			iekey = 1
		}
		cdw10 := rrega | (iekey << 3)
		status = is.io(nvme.IOReservationRegister, ctx.Nsid, cdw10, 0, 0, 0, 0, 0, BufOut, newKeyPair(rkey, sarkey))
	case prOutReserve:
		cdw10 := uint32(0) | (uint32(ptype) << 8)
		status = is.io(nvme.IOReservationAcquire, ctx.Nsid, cdw10, 0, 0, 0, 0, 0, BufOut, newKeyPair(rkey, sarkey))
	case prOutRelease:
		cdw10 := uint32(0) | (uint32(ptype) << 8)
		status = is.io(nvme.IOReservationRelease, ctx.Nsid, cdw10, 0, 0, 0, 0, 0, BufOut, newKeyPair(rkey, 0))
	case prOutClear:
		cdw10 := uint32(1) // RRELA=1: clear
		status = is.io(nvme.IOReservationRelease, ctx.Nsid, cdw10, 0, 0, 0, 0, 0, BufOut, newKeyPair(rkey, 0))
	case prOutPreempt, prOutPreemptAndAbort:
		racqa := uint32(1) // preempt
		if action == prOutPreemptAndAbort {
			racqa = 2 // preempt and abort
		}
		cdw10 := racqa | (uint32(ptype) << 8)
		status = is.io(nvme.IOReservationAcquire, ctx.Nsid, cdw10, 0, 0, 0, 0, 0, BufOut, newKeyPair(rkey, sarkey))
	default:
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 4)
		return nil
	}

	if !status.Success() {
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	}
	return nil
}

func newKeyPair(crkey, nrkey uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], crkey)
	binary.LittleEndian.PutUint64(buf[8:16], nrkey)
	return buf
}
