package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
)

// modePage builds one mode page's body (without the 2-byte PS/page-code +
// length header, which the caller prepends) for the page codes spec.md
// §4.5.4 names: 01h Read-Write Error Recovery, 08h Caching, 0Ah Control,
// 1Ah Power Condition, 1Ch Informational Exceptions Control.
func modePage(ctx *DeviceCtx, page byte) []byte {
	switch page {
	case 0x01:
		return make([]byte, 10) // AWRE/ARRE left clear: no NVMe equivalent
	case 0x08:
		buf := make([]byte, 18)
		if ctx.Controller.Vwc&0x01 != 0 {
			buf[0] |= 0x04 // WCE
		}
		return buf
	case 0x0a:
		buf := make([]byte, 8)
		buf[1] = 0x06 // Queue Algorithm Modifier: default
		return buf
	case 0x1a:
		return make([]byte, 10)
	case 0x1c:
		buf := make([]byte, 10)
		buf[1] = 0x08 // DEXCPT clear, MRIE = 08h (generate no sense) default
		return buf
	default:
		return nil
	}
}

var modeSensePages = []byte{0x01, 0x08, 0x0a, 0x1a, 0x1c}

func buildModePages(ctx *DeviceCtx, pageCode, subpage byte, all bool) ([]byte, bool) {
	if all {
		var out []byte
		for _, p := range modeSensePages {
			body := modePage(ctx, p)
			hdr := []byte{p, byte(len(body))}
			out = append(out, hdr...)
			out = append(out, body...)
		}
		return out, true
	}
	if subpage != 0 {
		return nil, false
	}
	body := modePage(ctx, pageCode)
	if body == nil {
		return nil, false
	}
	hdr := []byte{pageCode, byte(len(body))}
	return append(hdr, body...), true
}

// blockDescriptorBytes builds the short-form block descriptor MODE
// SENSE/SELECT carry when DBD=0 (spec.md §4.5.4).
func blockDescriptorBytes(ctx *DeviceCtx) []byte {
	buf := make([]byte, 8)
	maxLBA := ctx.MaxLBA() + 1
	if maxLBA > 0xffffffff {
		binary.BigEndian.PutUint32(buf[0:4], 0xffffffff)
	} else {
		binary.BigEndian.PutUint32(buf[0:4], uint32(maxLBA))
	}
	binary.BigEndian.PutUint32(buf[4:8], ctx.BlockSize())
	return buf
}

func cmdModeSense6(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	dbd := cdb[1]&0x08 != 0
	pc := cdb[2] >> 6
	pageCode := cdb[2] & 0x3f
	subpage := cdb[3]

	if pc != 0 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 7)
		return nil
	}

	pages, ok := buildModePages(ctx, pageCode, subpage, pageCode == 0x3f)
	if !ok {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 5)
		return nil
	}

	var blockDesc []byte
	if !dbd {
		blockDesc = blockDescriptorBytes(ctx)
	}

	buf := make([]byte, 4+len(blockDesc)+len(pages))
	buf[1] = 0x00 // medium type
	buf[3] = byte(len(blockDesc))
	copy(buf[4:], blockDesc)
	copy(buf[4+len(blockDesc):], pages)
	buf[0] = byte(len(buf) - 1)
	io_.Write(buf)
	return nil
}

func cmdModeSense10(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	dbd := cdb[1]&0x08 != 0
	pc := cdb[2] >> 6
	pageCode := cdb[2] & 0x3f
	subpage := cdb[3]

	if pc != 0 {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 7)
		return nil
	}

	pages, ok := buildModePages(ctx, pageCode, subpage, pageCode == 0x3f)
	if !ok {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 2, 5)
		return nil
	}

	var blockDesc []byte
	if !dbd {
		blockDesc = blockDescriptorBytes(ctx)
	}

	buf := make([]byte, 8+len(blockDesc)+len(pages))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(blockDesc)))
	copy(buf[8:], blockDesc)
	copy(buf[8+len(blockDesc):], pages)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(buf)-2))
	io_.Write(buf)
	return nil
}

// cmdModeSelect6/10 implement MODE SELECT by applying only the Caching
// (08h) page's write-cache enable bit; every other page in the list,
// Control (0Ah) included, is accepted and ignored rather than rejected,
// matching the "most mode pages are
// effectively read-only shims over controller-wide NVMe features"
// guidance.
func modeSelectApply(ctx *DeviceCtx, io_ *ScsiIo, body []byte) error {
	off := 0
	for off+2 <= len(body) {
		page := body[off] & 0x3f
		length := int(body[off+1])
		if off+2+length > len(body) {
			break
		}
		data := body[off+2 : off+2+length]
		switch page {
		case 0x08:
			if length > 0 {
				wce := data[0]&0x04 != 0
				is := issuer{ctx: ctx}
				cdw11 := uint32(0)
				if wce {
					cdw11 = 1
				}
				status := is.admin(nvme.AdminSetFeatures, ctx.Nsid, uint32(nvme.FeatureVolatileWriteCache), cdw11, 0, 0, 0, 0, BufNone, nil)
				if !status.Success() {
					mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
					return nil
				}
			}
		}
		off += 2 + length
	}
	return nil
}

func cmdModeSelect6(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	pf := cdb[1]&0x10 != 0
	if !pf {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 4)
		return nil
	}
	body := io_.Data
	if len(body) < 4 {
		return nil
	}
	blockDescLen := int(body[3])
	start := 4 + blockDescLen
	if start > len(body) {
		start = len(body)
	}
	return modeSelectApply(ctx, io_, body[start:])
}

func cmdModeSelect10(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	cdb := io_.CDB
	pf := cdb[1]&0x10 != 0
	if !pf {
		validateCdbField(io_.Sense, ctx.DescriptorSenseFormat, 1, 4)
		return nil
	}
	body := io_.Data
	if len(body) < 8 {
		return nil
	}
	blockDescLen := int(binary.BigEndian.Uint16(body[6:8]))
	start := 8 + blockDescLen
	if start > len(body) {
		start = len(body)
	}
	return modeSelectApply(ctx, io_, body[start:])
}
