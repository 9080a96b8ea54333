package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
)

var logSensePages = []byte{0x00, 0x0d, 0x0e, 0x10, 0x11, 0x15, 0x19, 0x2f}

// cmdLogSense implements LOG SENSE (4Dh) for the pages spec.md §4.5.5
// names: 00h Supported Pages, 0Dh Temperature, 0Eh Start-Stop Cycle
// Counter, 10h Self-Test Results, 11h Solid State Media, 15h Background
// Scan Results, 19h General Statistics and Performance, 2Fh
// Informational Exceptions. 0Dh, 11h, 19h and 2Fh are built from the
// NVMe SMART/Health Information log page (02h) and 10h from the Device
// Self-Test log page (06h); 0Eh and 15h report fixed values.
func cmdLogSense(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	pageCode := io_.CDB[2] & 0x3f
	subpage := io_.CDB[3]
	if subpage != 0 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 3, 7)
		return nil
	}

	switch pageCode {
	case 0x00:
		return logSenseSupportedPages(io_)
	case 0x0d:
		return logSenseTemperature(ctx, io_)
	case 0x0e:
		return logSenseStartStopCycle(io_)
	case 0x10:
		return logSenseSelfTest(ctx, io_)
	case 0x11:
		return logSenseSolidStateMedia(ctx, io_)
	case 0x15:
		return logSenseBackgroundScan(io_)
	case 0x19:
		return logSenseGeneralStatistics(ctx, io_)
	case 0x2f:
		return logSenseInformationalExceptions(ctx, io_)
	default:
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 5)
		return nil
	}
}

func logSenseHeader(page byte, paramLen int) []byte {
	hdr := make([]byte, 4)
	hdr[0] = page
	binary.BigEndian.PutUint16(hdr[2:4], uint16(paramLen))
	return hdr
}

func logSenseSupportedPages(io_ *ScsiIo) error {
	buf := append(logSenseHeader(0x00, len(logSensePages)), logSensePages...)
	io_.Write(buf)
	return nil
}

func getSmartLog(ctx *DeviceCtx) ([]byte, bool) {
	buf := make([]byte, 512)
	is := issuer{ctx: ctx}
	cdw10 := uint32(nvme.LogSMARTHealth) | (uint32(512/4-1) << 16)
	status := is.admin(nvme.AdminGetLogPage, 0xffffffff, cdw10, 0, 0, 0, 0, 0, BufIn, buf)
	return buf, status.Success()
}

// logSenseTemperature maps NVMe SMART log CompositeTemperature (bytes
// 1:3, Kelvin) into one "Temperature" parameter (0000h) plus one
// "Reference Temperature" parameter (0001h), per spec.md §4.5.5.
func logSenseTemperature(ctx *DeviceCtx, io_ *ScsiIo) error {
	smart, ok := getSmartLog(ctx)
	celsius := byte(0)
	if ok {
		kelvin := binary.LittleEndian.Uint16(smart[1:3])
		if kelvin > 273 {
			celsius = byte(kelvin - 273)
		}
	}
	var body []byte
	body = append(body, 0x00, 0x00, 0x03, 0x02, 0x00, celsius)
	body = append(body, 0x00, 0x01, 0x03, 0x02, 0x00, 0x00)
	buf := append(logSenseHeader(0x0d, len(body)), body...)
	io_.Write(buf)
	return nil
}

// logSenseStartStopCycle reports a single parameter 0001h whose 4-byte
// value is always zero; no NVMe log data is read for this page.
func logSenseStartStopCycle(io_ *ScsiIo) error {
	var body []byte
	body = append(body, 0x00, 0x01, 0x03, 0x04, 0, 0, 0, 0)
	buf := append(logSenseHeader(0x0e, len(body)), body...)
	io_.Write(buf)
	return nil
}

// logSenseSelfTest translates the NVMe Device Self-test log (06h) result
// entries into SCSI Self-Test results parameters (spec.md §4.5.5's
// "Self-Test parameter translation"): the most recent 20 results,
// newest first, each a fixed 20-byte parameter.
func logSenseSelfTest(ctx *DeviceCtx, io_ *ScsiIo) error {
	raw := make([]byte, 564)
	is := issuer{ctx: ctx}
	cdw10 := uint32(nvme.LogDeviceSelfTest) | (uint32(564/4-1) << 16)
	status := is.admin(nvme.AdminGetLogPage, 0xffffffff, cdw10, 0, 0, 0, 0, 0, BufIn, raw)
	if !status.Success() {
		mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
		return nil
	}

	var body []byte
	const entrySize = 28
	for i := 0; i < 20; i++ {
		off := 4 + i*entrySize
		if off+entrySize > len(raw) {
			break
		}
		result := raw[off] & 0x0f
		if result == 0x0f {
			continue // unused entry
		}
		param := make([]byte, 20)
		binary.BigEndian.PutUint16(param[0:2], uint16(0xffff-i))
		param[2] = 0x03
		param[3] = 16
		param[4] = (1 << 4) | (result & 0x0f) // self-test code unknown, result in low nibble
		param[5] = byte(i + 1)
		binary.BigEndian.PutUint16(param[6:8], binary.LittleEndian.Uint16(raw[off+4:off+6]))
		copy(param[8:16], raw[off+8:off+16])
		body = append(body, param...)
	}
	buf := append(logSenseHeader(0x10, len(body)), body...)
	io_.Write(buf)
	return nil
}

// logSenseSolidStateMedia reports Percentage Used (SMART log byte 5) as
// the Percentage Used Endurance Indicator parameter (0001h).
func logSenseSolidStateMedia(ctx *DeviceCtx, io_ *ScsiIo) error {
	smart, ok := getSmartLog(ctx)
	pctUsed := byte(0)
	if ok {
		pctUsed = smart[5]
	}
	body := []byte{0x00, 0x01, 0x03, 0x04, 0, 0, 0, pctUsed}
	buf := append(logSenseHeader(0x11, len(body)), body...)
	io_.Write(buf)
	return nil
}

// logSenseBackgroundScan reports a status-only parameter: NVMe has no
// background medium scan concept, so this always reports "no scans
// active, no errors" (spec.md §6: translators with no NVMe analogue
// report a benign fixed value rather than failing the command).
func logSenseBackgroundScan(io_ *ScsiIo) error {
	body := []byte{0x00, 0x00, 0x03, 0x04, 0, 0, 0, 0}
	buf := append(logSenseHeader(0x15, len(body)), body...)
	io_.Write(buf)
	return nil
}

// logSenseGeneralStatistics maps NVMe SMART log data units read/written
// (bytes 32:48 and 48:64, 512-byte units in thousands) into the Number
// of Read Commands (0001h) / Number of Write Commands (0002h) style
// parameters defined by SPC-4 table "General Statistics and Performance
// log parameters". Each 128-bit counter is saturated to 64 bits: a
// non-zero upper half reports 0xFFFFFFFFFFFFFFFF.
func logSenseGeneralStatistics(ctx *DeviceCtx, io_ *ScsiIo) error {
	smart, ok := getSmartLog(ctx)
	var unitsRead, unitsWritten uint64
	if ok {
		unitsRead = binary.LittleEndian.Uint64(smart[32:40])
		if binary.LittleEndian.Uint64(smart[40:48]) != 0 {
			unitsRead = ^uint64(0)
		}
		unitsWritten = binary.LittleEndian.Uint64(smart[48:56])
		if binary.LittleEndian.Uint64(smart[56:64]) != 0 {
			unitsWritten = ^uint64(0)
		}
	}
	var body []byte
	p1 := make([]byte, 12)
	binary.BigEndian.PutUint16(p1[0:2], 0x0001)
	p1[2] = 0x03
	p1[3] = 8
	binary.BigEndian.PutUint64(p1[4:12], unitsRead)
	body = append(body, p1...)

	p2 := make([]byte, 12)
	binary.BigEndian.PutUint16(p2[0:2], 0x0002)
	p2[2] = 0x03
	p2[3] = 8
	binary.BigEndian.PutUint64(p2[4:12], unitsWritten)
	body = append(body, p2...)

	buf := append(logSenseHeader(0x19, len(body)), body...)
	io_.Write(buf)
	return nil
}

// logSenseInformationalExceptions reports the General Informational
// Exceptions parameter (0000h): ASC/ASCQ zeroed (no exception reported)
// plus the translated temperature, per spec.md §4.5.5.
func logSenseInformationalExceptions(ctx *DeviceCtx, io_ *ScsiIo) error {
	smart, ok := getSmartLog(ctx)
	celsius := byte(0)
	if ok {
		kelvin := binary.LittleEndian.Uint16(smart[1:3])
		if kelvin > 273 {
			celsius = byte(kelvin - 273)
		}
	}
	body := []byte{0x00, 0x00, 0x03, 0x04, 0x00, 0x00, celsius, 0x00}
	buf := append(logSenseHeader(0x2f, len(body)), body...)
	io_.Write(buf)
	return nil
}
