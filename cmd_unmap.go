package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/nvme"
	"github.com/coreos/go-sntl/scsi"
)

const maxDSMRanges = 256

// unmapRange is one UNMAP block descriptor, parsed to host-native form.
// length is uint64 (wider than the wire's 32-bit field) so that merging
// adjacent descriptors in coalesceUnmapRanges can't silently wrap before
// the oversized-range split below gets a chance to run.
type unmapRange struct {
	lba    uint64
	length uint64
}

// parseUnmapParameterList parses the UNMAP parameter list (SBC-4 table
// "UNMAP parameter list"): 8-byte header, then the UNMAP block descriptor
// data, each descriptor 16 bytes (LBA uint64 + number of logical blocks
// uint32 + 4 reserved bytes). Per spec.md §4.5.7, at most 256 ranges are accepted; a
// longer list is rejected with INVALID FIELD IN PARAMETER LIST.
func parseUnmapParameterList(body []byte) ([]unmapRange, bool) {
	if len(body) < 8 {
		return nil, true
	}
	descLen := int(binary.BigEndian.Uint16(body[2:4]))
	if 8+descLen > len(body) {
		descLen = len(body) - 8
	}
	count := descLen / 16
	if count > maxDSMRanges {
		return nil, false
	}
	ranges := make([]unmapRange, 0, count)
	for i := 0; i < count; i++ {
		off := 8 + i*16
		lba := binary.BigEndian.Uint64(body[off : off+8])
		length := binary.BigEndian.Uint32(body[off+8 : off+12])
		ranges = append(ranges, unmapRange{lba: lba, length: uint64(length)})
	}
	return ranges, true
}

// coalesceUnmapRanges merges adjacent/overlapping ranges and splits any
// range whose length exceeds 0xffffffff logical blocks (the NVMe DSM
// per-range limit). Per spec.md §4.5.7, a result exceeding 255 DSM range
// entries is a caller error (ILLEGAL REQUEST / 26h/00h), not something to
// truncate silently, so the cap is enforced by the caller rather than here.
func coalesceUnmapRanges(ranges []unmapRange) []unmapRange {
	if len(ranges) == 0 {
		return ranges
	}
	sorted := make([]unmapRange, len(ranges))
	copy(sorted, ranges)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].lba > sorted[j].lba; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	var out []unmapRange
	for _, r := range sorted {
		if r.length == 0 {
			continue
		}
		if len(out) > 0 {
			last := &out[len(out)-1]
			lastEnd := last.lba + last.length
			if r.lba <= lastEnd {
				end := r.lba + r.length
				if end > lastEnd {
					last.length = end - last.lba
				}
				continue
			}
		}
		out = append(out, r)
	}

	var split []unmapRange
	for _, r := range out {
		remaining := r.length
		lba := r.lba
		for remaining > 0 {
			chunk := remaining
			if chunk > 0xffffffff {
				chunk = 0xffffffff
			}
			split = append(split, unmapRange{lba: lba, length: chunk})
			lba += uint64(chunk)
			remaining -= chunk
		}
	}
	return split
}

// validateUnmapRanges rejects descriptors the device's namespace can't
// satisfy, per spec.md §4.5.6: LBA > MaxLBA points at the descriptor's
// byte 0 (the LBA field), LBA+count > MaxLBA points at byte 8 (the count
// field); both report ILLEGAL REQUEST / 21h/00h. descOffset is the
// descriptor's absolute byte offset within the parameter list (8-byte
// header + 16 bytes per preceding descriptor).
func validateUnmapRanges(sense []byte, descriptorFormat bool, ctx *DeviceCtx, ranges []unmapRange) bool {
	maxLBA := ctx.MaxLBA()
	for i, r := range ranges {
		descOffset := uint16(8 + i*16)
		if r.lba > maxLBA {
			emitFieldPointerDescriptor(sense, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange, descriptorFormat,
				false, true, 7, descOffset)
			return false
		}
		if r.length > 0 && r.lba+r.length-1 > maxLBA {
			emitFieldPointerDescriptor(sense, scsi.SenseIllegalRequest, scsi.AscLbaOutOfRange, descriptorFormat,
				false, true, 7, descOffset+8)
			return false
		}
	}
	return true
}

// cmdUnmap implements UNMAP (42h) per spec.md §4.5.7: parse, coalesce,
// and issue a single NVMe Dataset Management command with the Deallocate
// attribute set in DWord11; each range's context attributes are zero.
func cmdUnmap(ctx *DeviceCtx, io_ *ScsiIo) error {
	ctx.ensureIdentify()
	if ctx.Controller.Oncs&nvme.OncsDatasetMgmt == 0 {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode, ctx.DescriptorSenseFormat)
		return nil
	}

	ranges, ok := parseUnmapParameterList(io_.Data)
	if !ok {
		validateParameterListField(io_.Sense, ctx.DescriptorSenseFormat, 2, 0xff)
		return nil
	}
	if !validateUnmapRanges(io_.Sense, ctx.DescriptorSenseFormat, ctx, ranges) {
		return nil
	}
	ranges = coalesceUnmapRanges(ranges)
	if len(ranges) == 0 {
		return nil
	}
	if len(ranges) > 255 {
		emitSense(io_.Sense, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList, ctx.DescriptorSenseFormat)
		return nil
	}

	dsmRanges := make([]byte, len(ranges)*16)
	for i, r := range ranges {
		off := i * 16
		binary.LittleEndian.PutUint32(dsmRanges[off:off+4], 0) // context attributes
		binary.LittleEndian.PutUint32(dsmRanges[off+4:off+8], uint32(r.length))
		binary.LittleEndian.PutUint64(dsmRanges[off+8:off+16], r.lba)
	}

	is := issuer{ctx: ctx}
	cdw10 := uint32(len(ranges) - 1)
	cdw11 := uint32(nvme.DSMIdentifyDeallocate)
	status := is.io(nvme.IODatasetMgmt, ctx.Nsid, cdw10, cdw11, 0, 0, 0, 0, BufOut, dsmRanges)
	mapNvmeStatus(io_.Sense, status, ctx.DescriptorSenseFormat)
	return nil
}
