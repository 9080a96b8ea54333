package sntl

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/coreos/go-sntl/nvme"
)

// FixedString pads or truncates s to length bytes with trailing spaces,
// the same idiom the teacher's cmd_handler.go uses for INQUIRY vendor/
// product/revision fields.
func FixedString(s string, length int) []byte {
	p := []byte(s)
	if len(p) >= length {
		return p[:length]
	}
	return append(p, bytes.Repeat([]byte{' '}, length-len(p))...)
}

func trimmedField(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

var inquiryReservedFields = []reservedField{
	{1, 0xfe}, // EVPD is bit 0; bits 1-7 reserved in byte 1
}

// cmdInquiry implements §4.5.1 INQUIRY (12h).
func cmdInquiry(ctx *DeviceCtx, io_ *ScsiIo) error {
	if validateReserved(io_, ctx, inquiryReservedFields) {
		return nil
	}
	ctx.ensureIdentify()
	evpd := io_.CDB[1]&0x01 != 0
	pageCode := io_.CDB[2]
	if !evpd {
		if pageCode != 0 {
			validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 7)
			return nil
		}
		return inquiryStandard(ctx, io_)
	}
	return inquiryEVPD(ctx, io_, pageCode)
}

func inquiryStandard(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 96)
	buf[3] = 0x12 // HiSUP=1, response data format=2
	buf[4] = 92   // additional length
	buf[7] = 0x02 // CmdQue

	copy(buf[8:16], FixedString("NVMe", 8))
	model := trimmedField(ctx.Controller.ModelNumber[:])
	copy(buf[16:32], FixedString(first(model, 16), 16))
	fw := trimmedField(ctx.Controller.Firmware[:])
	copy(buf[32:36], FixedString(last(fw, 4), 4))
	sn := trimmedField(ctx.Controller.SerialNumber[:])
	copy(buf[36:56], FixedString(sn, 20))

	// Version descriptors: SAM-5, SPC-4, SBC-3 (SPC-4 table D.1 codes).
	binary.BigEndian.PutUint16(buf[58:60], 0x00a0) // SAM-5
	binary.BigEndian.PutUint16(buf[60:62], 0x0460) // SPC-4
	binary.BigEndian.PutUint16(buf[62:64], 0x04c0) // SBC-3

	io_.Write(buf)
	return nil
}

func first(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func last(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func inquiryEVPD(ctx *DeviceCtx, io_ *ScsiIo, page byte) error {
	switch page {
	case 0x00:
		return inquirySupportedPages(io_)
	case 0x80:
		return inquiryUnitSerialNumber(ctx, io_)
	case 0x83:
		return inquiryDeviceIdentification(ctx, io_)
	case 0x86:
		return inquiryExtendedInquiry(ctx, io_)
	case 0xb0:
		return inquiryBlockLimits(ctx, io_)
	case 0xb1:
		return inquiryBlockDeviceCharacteristics(ctx, io_)
	case 0xb2:
		return inquiryLogicalBlockProvisioning(ctx, io_)
	default:
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 7)
		return nil
	}
}

func inquirySupportedPages(io_ *ScsiIo) error {
	pages := []byte{0x00, 0x80, 0x83, 0x86, 0xb0, 0xb1, 0xb2}
	buf := make([]byte, 4+len(pages))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(pages)))
	copy(buf[4:], pages)
	io_.Write(buf)
	return nil
}

// snNsidFallback returns "SN_NSID." as described in spec.md §4.5.1 (80h, the
// no-EUI64/no-NGUID fallback): SN is 20 ASCII chars of controller SN, NSID
// is 8 uppercase hex digits.
func snNsidFallback(ctx *DeviceCtx) string {
	sn := FixedString(trimmedField(ctx.Controller.SerialNumber[:]), 20)
	return string(sn) + "_" + strings.ToUpper(hexPad(ctx.Nsid, 8)) + "."
}

func hexPad(v uint32, digits int) string {
	s := hex.EncodeToString(beBytes(v, digits/2))
	return s
}

func beBytes(v uint32, n int) []byte {
	b := make([]byte, n)
	switch n {
	case 4:
		binary.BigEndian.PutUint32(b, v)
	case 8:
		binary.BigEndian.PutUint64(b, uint64(v))
	default:
		tmp := make([]byte, 4)
		binary.BigEndian.PutUint32(tmp, v)
		copy(b, tmp[4-n:])
	}
	return b
}

func inquiryUnitSerialNumber(ctx *DeviceCtx, io_ *ScsiIo) error {
	ns := &ctx.Namespace
	var payload string
	switch {
	case !isAllZero(ns.EUI64[:]) && isAllZero(ns.Nguid[:]):
		// "xxxx_xxxx_xxxx_xxxx." with underscore every 4 nibbles.
		h := hex.EncodeToString(ns.EUI64[:])
		var sb strings.Builder
		for i := 0; i < len(h); i += 4 {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteString(h[i : i+4])
		}
		sb.WriteByte('.')
		payload = sb.String()
	case !isAllZero(ns.Nguid[:]):
		h := hex.EncodeToString(ns.Nguid[:])
		var sb strings.Builder
		for i := 0; i < len(h); i += 4 {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteString(h[i : i+4])
		}
		sb.WriteByte('.')
		payload = sb.String()
	default:
		payload = snNsidFallback(ctx)
	}
	buf := make([]byte, 4+len(payload))
	buf[1] = 0x80
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[4:], payload)
	io_.Write(buf)
	return nil
}

// synthesizeEUI64 produces a deterministic 8-byte pseudo-identifier from
// PCI VID + serial + NSID, used when both NGUID and EUI64 are zero
// (spec.md §3 invariant 5 / testable property 5).
func synthesizeEUI64(ctx *DeviceCtx) [8]byte {
	var out [8]byte
	binary.BigEndian.PutUint16(out[0:2], ctx.Controller.VendorID)
	sn := trimmedField(ctx.Controller.SerialNumber[:])
	snBytes := []byte(FixedString(sn, 2))
	copy(out[2:4], snBytes[:2])
	binary.BigEndian.PutUint32(out[4:8], ctx.Nsid)
	return out
}

func inquiryDeviceIdentification(ctx *DeviceCtx, io_ *ScsiIo) error {
	ns := &ctx.Namespace
	eui64 := ns.EUI64
	if isAllZero(eui64[:]) && isAllZero(ns.Nguid[:]) {
		eui64 = synthesizeEUI64(ctx)
	}

	buf := &bytes.Buffer{}

	// NAA extended format 6 + OUI + EUI64 + 32 zero bits.
	naa1 := make([]byte, 16)
	naa1[0] = 0x61 // type 6, first nibble of OUI
	naa1[1] = ctx.Controller.IEEE[0]
	naa1[2] = ctx.Controller.IEEE[1]
	naa1[3] = ctx.Controller.IEEE[2]
	copy(naa1[4:12], eui64[:])
	writeDesigDescriptor(buf, 1, 3, naa1)

	// NAA locally-assigned format 3 + 60 bits of EUI64.
	naa2 := make([]byte, 8)
	naa2[0] = 0x30
	copy(naa2[1:8], eui64[1:])
	writeDesigDescriptor(buf, 1, 3, naa2)

	// T10 Vendor ID.
	t10 := make([]byte, 8+16+16)
	copy(t10[0:8], FixedString("NVMe", 8))
	copy(t10[8:24], FixedString(trimmedField(ctx.Controller.ModelNumber[:]), 16))
	switch {
	case !isAllZero(ns.Nguid[:]):
		copy(t10[24:40], []byte(strings.ToUpper(hex.EncodeToString(ns.Nguid[:])))[:16])
	case !isAllZero(ns.EUI64[:]):
		copy(t10[24:40], []byte(strings.ToUpper(hex.EncodeToString(ns.EUI64[:])))[:16])
	default:
		// PCI VID + 7 chars of SN + NSID. The NSID's 8 hex digits end at
		// offset 43, so the designator body grows from 40 to 43 bytes for
		// this form — spec.md §9 open question (a): the upstream source
		// has a literal typo ([33] instead of [43]) here; this
		// implementation writes the NSID nibble to the correct offset.
		t10 = append(t10, make([]byte, 3)...)
		vidHex := hex.EncodeToString(beBytes(uint32(ctx.Controller.VendorID), 2))
		sn7 := first(trimmedField(ctx.Controller.SerialNumber[:]), 7)
		copy(t10[24:28], []byte(strings.ToUpper(vidHex)))
		copy(t10[28:35], []byte(sn7))
		nsidHex := strings.ToUpper(hexPad(ctx.Nsid, 8))
		copy(t10[35:43], []byte(nsidHex))
	}
	writeDesigDescriptor(buf, 2, 1, t10)

	// SCSI Name String: "eui." + uppercase hex, one per populated id.
	if !isAllZero(ns.Nguid[:]) {
		s := "eui." + strings.ToUpper(hex.EncodeToString(ns.Nguid[:]))
		writeDesigDescriptor(buf, 3, 8, []byte(s))
	}
	if !isAllZero(eui64[:]) {
		s := "eui." + strings.ToUpper(hex.EncodeToString(eui64[:]))
		writeDesigDescriptor(buf, 3, 8, []byte(s))
	}

	// EUI-64 binary: one per populated id (NGUID preferred when present).
	if !isAllZero(ns.Nguid[:]) {
		writeDesigDescriptor(buf, 1, 2, ns.Nguid[:])
	}
	if !isAllZero(eui64[:]) {
		writeDesigDescriptor(buf, 1, 2, eui64[:])
	}

	payload := buf.Bytes()
	out := make([]byte, 4+len(payload))
	out[1] = 0x83
	binary.BigEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[4:], payload)
	io_.Write(out)
	return nil
}

// writeDesigDescriptor appends one SPC-5 "Identification descriptor"
// (table 497): byte0 code-set(bits3-0)/protocol-id(bits7-4), byte1
// association(bits5-4)/designator-type(bits3-0), byte2 reserved, byte3
// length, then the designator body.
func writeDesigDescriptor(buf *bytes.Buffer, codeSet byte, designatorType byte, body []byte) {
	hdr := [4]byte{codeSet, designatorType, 0, byte(len(body))}
	buf.Write(hdr[:])
	buf.Write(body)
}

func inquiryExtendedInquiry(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 64)
	binary.BigEndian.PutUint16(buf[2:4], 60)

	dpc := ctx.Namespace.Dpc & 0x07
	spt := map[byte]byte{1: 0, 2: 2, 3: 1, 4: 4, 5: 3, 6: 5, 7: 7}[dpc]
	buf[4] = spt << 3
	if ctx.Namespace.Dps != 0 {
		buf[4] |= 0x07 // GRD_CHK, APP_CHK, REF_CHK
	}
	buf[5] = 0x20 // UASK_SUP
	if ctx.Controller.Oncs&nvme.OncsWriteUncorrect != 0 {
		buf[5] |= 0x0c // WU_SUP, CRD_SUP
	}
	if ctx.Controller.Vwc&0x01 != 0 {
		buf[6] |= 0x01 // WCE
	}
	buf[6] |= 0x02 // LUICLR
	io_.Write(buf)
	return nil
}

func inquiryBlockLimits(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 64)
	buf[1] = 0xb0
	binary.BigEndian.PutUint16(buf[2:4], 0x3c)

	maxXfer := uint32(0)
	if ctx.Controller.Mdts != 0 {
		maxXfer = 1 << ctx.Controller.Mdts
	}
	binary.BigEndian.PutUint32(buf[8:12], maxXfer)

	bs := ctx.blockSize
	if bs == 0 {
		bs = 512
	}
	optXfer := uint32(65536) / bs
	binary.BigEndian.PutUint32(buf[12:16], optXfer)

	if ctx.Controller.Oncs&nvme.OncsDatasetMgmt != 0 {
		binary.BigEndian.PutUint32(buf[20:24], 0xffffffff) // max unmap LBA count
		binary.BigEndian.PutUint32(buf[24:28], 256)        // max unmap descriptor count
	}
	io_.Write(buf)
	return nil
}

func inquiryBlockDeviceCharacteristics(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 64)
	buf[1] = 0xb1
	binary.BigEndian.PutUint16(buf[2:4], 0x3c)
	binary.BigEndian.PutUint16(buf[4:6], 0x0001) // non-rotating, unless overridden below

	lpa := ctx.Controller.Lpa
	ctratt := ctx.Controller.Ctratt
	if lpa&0x20 != 0 && ctratt&0x10 != 0 && ctx.Namespace.Endgid != 0 {
		// Rotational Media log page is available; spec.md §4.5.1's
		// translator would issue a Get Log Page here and copy the
		// returned rotation rate. Outside the scope of this buffer
		// build, rotationRate is supplied by the caller via the
		// RotationRate field on DeviceCtx when known.
		if ctx.RotationRate != 0 {
			binary.BigEndian.PutUint16(buf[4:6], ctx.RotationRate)
		}
	}
	io_.Write(buf)
	return nil
}

func inquiryLogicalBlockProvisioning(ctx *DeviceCtx, io_ *ScsiIo) error {
	buf := make([]byte, 4)
	buf[1] = 0xb2
	if ctx.Controller.Oncs&nvme.OncsDatasetMgmt != 0 {
		buf[1] = 0xb2 // keep page code; LBPU set below
	}
	lbpu := byte(0)
	if ctx.Controller.Oncs&nvme.OncsDatasetMgmt != 0 {
		lbpu = 0x80
	}
	lbprz := byte(0)
	if ctx.Namespace.Dlfeat&0x07 == 0x01 {
		lbprz = 0x40
	}
	var provType byte
	switch {
	case ctx.Namespace.Nsfeat&nvme.NsfeatThinProvisioning != 0:
		provType = 2
	case ctx.Controller.Oncs&nvme.OncsDatasetMgmt != 0:
		provType = 1
	default:
		provType = 0
	}
	buf[2] = lbpu | lbprz
	buf[3] = provType
	io_.Write(buf)
	return nil
}
