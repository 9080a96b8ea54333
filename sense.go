package sntl

import (
	"encoding/binary"

	"github.com/coreos/go-sntl/scsi"
)

// senseDescriptor is the typed intermediate form every sense payload is
// built from before being serialized to either fixed or descriptor
// format at emit time (spec.md §9's "Dual-format sense data" design
// note). Descriptor types with no fixed-format equivalent report
// hasFixedForm() == false and are dropped silently on fixed-format emit.
type senseDescriptor interface {
	descType() byte
	hasFixedForm() bool
	writeDescriptor(buf []byte) int // appends at buf[0:], returns bytes written
	writeFixed(buf []byte)          // writes directly into the fixed-format byte ranges it owns
}

// informationDescriptor carries a 32/64-bit "information" field (SPC-5
// table 49); on fixed-format emit it is clamped to 32 bits with the VALID
// bit set, per spec.md §4.1.
type informationDescriptor struct {
	value uint64
}

func (d informationDescriptor) descType() byte { return scsi.SenseDescriptorInformation }
func (d informationDescriptor) hasFixedForm() bool { return true }
func (d informationDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x0a
	buf[2] = 0x80 // VALID
	binary.BigEndian.PutUint64(buf[4:12], d.value)
	return 12
}
func (d informationDescriptor) writeFixed(buf []byte) {
	buf[0] |= 0x80 // VALID bit lives in byte 0 alongside the response code
	v := uint32(d.value)
	if d.value > 0xffffffff {
		v = 0xffffffff
	}
	binary.BigEndian.PutUint32(buf[3:7], v)
}

// commandSpecificDescriptor (SPC-5 table 50).
type commandSpecificDescriptor struct {
	value uint32
}

func (d commandSpecificDescriptor) descType() byte     { return scsi.SenseDescriptorCommandSpecific }
func (d commandSpecificDescriptor) hasFixedForm() bool { return true }
func (d commandSpecificDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x0a
	binary.BigEndian.PutUint64(buf[4:12], uint64(d.value))
	return 12
}
func (d commandSpecificDescriptor) writeFixed(buf []byte) {
	binary.BigEndian.PutUint32(buf[8:12], d.value)
}

// senseKeySpecificDescriptor is the field-pointer / progress-indicator
// descriptor (spec.md §3 invariant: "type 02h is 8 bytes; bit-pointer,
// field-pointer, C/D, and BPV bit encode the exact offending bit").
type senseKeySpecificDescriptor struct {
	// For field-pointer form:
	cd          bool
	bpv         bool
	bitPointer  uint8
	fieldPointer uint16
	// For progress-indicator form (mutually exclusive with the above):
	isProgress bool
	progress   uint16
}

func (d senseKeySpecificDescriptor) descType() byte     { return scsi.SenseDescriptorSenseKeySpecific }
func (d senseKeySpecificDescriptor) hasFixedForm() bool { return true }

func (d senseKeySpecificDescriptor) sksBytes() [3]byte {
	var sks [3]byte
	if d.isProgress {
		sks[0] = 0x80
		binary.BigEndian.PutUint16(sks[1:3], d.progress)
		return sks
	}
	b := d.bitPointer | 0x80
	if d.cd {
		b |= 0x40
	}
	if d.bpv {
		b |= 0x08
	}
	sks[0] = b
	binary.BigEndian.PutUint16(sks[1:3], d.fieldPointer)
	return sks
}

func (d senseKeySpecificDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x06
	sks := d.sksBytes()
	copy(buf[4:7], sks[:])
	return 8
}

func (d senseKeySpecificDescriptor) writeFixed(buf []byte) {
	sks := d.sksBytes()
	copy(buf[15:18], sks[:])
}

// fruDescriptor (Field Replaceable Unit, SPC-5 table 51) — single byte.
type fruDescriptor struct{ code byte }

func (d fruDescriptor) descType() byte     { return scsi.SenseDescriptorFieldReplaceableUnit }
func (d fruDescriptor) hasFixedForm() bool { return true }
func (d fruDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x02
	buf[3] = d.code
	return 4
}
func (d fruDescriptor) writeFixed(buf []byte) { buf[14] = d.code }

// streamDescriptor carries the filemark/EOM/ILI bits (SPC-5 table 52).
type streamDescriptor struct{ filemark, eom, ili bool }

func (d streamDescriptor) descType() byte     { return scsi.SenseDescriptorStream }
func (d streamDescriptor) hasFixedForm() bool { return true }
func (d streamDescriptor) flagByte() byte {
	var b byte
	if d.filemark {
		b |= 0x80
	}
	if d.eom {
		b |= 0x40
	}
	if d.ili {
		b |= 0x20
	}
	return b
}
func (d streamDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x02
	buf[3] = d.flagByte()
	return 4
}
func (d streamDescriptor) writeFixed(buf []byte) { buf[2] |= d.flagByte() }

// blockDescriptor carries just the ILI bit (SPC-5 table 53).
type blockDescriptor struct{ ili bool }

func (d blockDescriptor) descType() byte     { return scsi.SenseDescriptorBlock }
func (d blockDescriptor) hasFixedForm() bool { return true }
func (d blockDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x02
	if d.ili {
		buf[3] = 0x20
	}
	return 4
}
func (d blockDescriptor) writeFixed(buf []byte) {
	if d.ili {
		buf[2] |= 0x20
	}
}

// ataStatusReturnDescriptor carries the 12-byte ATA-to-SCSI status return
// (SAT-3 table 156). On fixed-format emit the EXTEND bit lives in bit 7
// of byte 8, and the "upper LBA/count non-zero" bits live at bits 5/6 of
// the same byte, exactly as spec.md §4.1 specifies.
type ataStatusReturnDescriptor struct {
	extend      bool
	error       byte
	count       uint16
	lbaLow      uint8
	lbaMid      uint8
	lbaHigh     uint8
	device      byte
	status      byte
	upperLBANonZero   bool
	upperCountNonZero bool
}

func (d ataStatusReturnDescriptor) descType() byte     { return scsi.SenseDescriptorATAStatusReturn }
func (d ataStatusReturnDescriptor) hasFixedForm() bool { return true }
func (d ataStatusReturnDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x0c
	if d.extend {
		buf[2] = 0x01
	}
	buf[3] = d.error
	binary.BigEndian.PutUint16(buf[4:6], d.count)
	buf[6] = d.lbaLow
	buf[7] = d.lbaMid
	buf[8] = d.lbaHigh
	buf[9] = d.device
	buf[10] = d.status
	return 14
}
func (d ataStatusReturnDescriptor) writeFixed(buf []byte) {
	buf[3] = d.error
	binary.BigEndian.PutUint16(buf[4:6], d.count)
	buf[6] = d.lbaLow
	buf[7] = d.lbaMid
	b8 := d.lbaHigh
	if d.extend {
		b8 |= 0x80
	}
	if d.upperLBANonZero {
		b8 |= 0x20
	}
	if d.upperCountNonZero {
		b8 |= 0x40
	}
	buf[8] = b8
	buf[9] = d.device
	buf[10] = d.status
}

// anotherProgressDescriptor and forwardedSenseDescriptor have no fixed
// layout equivalent: they are dropped on fixed-format emit.
type anotherProgressDescriptor struct{ progress uint16 }

func (d anotherProgressDescriptor) descType() byte     { return scsi.SenseDescriptorAnotherProgress }
func (d anotherProgressDescriptor) hasFixedForm() bool { return false }
func (d anotherProgressDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x06
	buf[4] = 0x80
	binary.BigEndian.PutUint16(buf[5:7], d.progress)
	return 8
}
func (d anotherProgressDescriptor) writeFixed([]byte) {}

type forwardedSenseDescriptor struct{ payload []byte }

func (d forwardedSenseDescriptor) descType() byte     { return scsi.SenseDescriptorForwardedSense }
func (d forwardedSenseDescriptor) hasFixedForm() bool  { return false }
func (d forwardedSenseDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = byte(len(d.payload))
	n := copy(buf[2:], d.payload)
	return 2 + n
}
func (d forwardedSenseDescriptor) writeFixed([]byte) {}

// directAccessBlockDescriptor combines several fields for direct-access
// devices (SBC-4 table): flag bits, FRU, truncated information, and
// command-specific.
type directAccessBlockDescriptor struct {
	flags           byte
	fru             byte
	information     uint32
	commandSpecific uint32
}

func (d directAccessBlockDescriptor) descType() byte     { return scsi.SenseDescriptorDirectAccessBlock }
func (d directAccessBlockDescriptor) hasFixedForm() bool { return true }
func (d directAccessBlockDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.descType()
	buf[1] = 0x0a
	buf[2] = d.flags
	buf[3] = d.fru
	binary.BigEndian.PutUint32(buf[4:8], d.information)
	binary.BigEndian.PutUint32(buf[8:12], d.commandSpecific)
	return 12
}
func (d directAccessBlockDescriptor) writeFixed(buf []byte) {
	buf[14] = d.fru
	binary.BigEndian.PutUint32(buf[3:7], d.information)
	binary.BigEndian.PutUint32(buf[8:12], d.commandSpecific)
}

// deviceDesignationDescriptor and microcodeActivationDescriptor and
// userDataSegmentReferralDescriptor and osdDescriptor round out the
// SPC-5 descriptor catalogue spec.md §3 names; they are rare in
// practice and this translator never constructs them; rawDescriptor can
// carry any of them through the senseDescriptor interface, as a
// descriptor-format-only entry.
type rawDescriptor struct {
	t       byte
	payload []byte
}

func (d rawDescriptor) descType() byte     { return d.t }
func (d rawDescriptor) hasFixedForm() bool { return false }
func (d rawDescriptor) writeDescriptor(buf []byte) int {
	buf[0] = d.t
	buf[1] = byte(len(d.payload))
	n := copy(buf[2:], d.payload)
	return 2 + n
}
func (d rawDescriptor) writeFixed([]byte) {}

const maxSenseLen = 252

// emitSense implements C1's emit_sense: assembles a sense buffer from a
// sense key, ASC/ASCQ, and a list of descriptors, in either descriptor or
// fixed format. Writes at most len(sense) bytes and never fails — any
// overflow is silently truncated, per spec.md §4.1.
func emitSense(sense []byte, key byte, ascAscq uint16, descriptorFormat bool, descs ...senseDescriptor) {
	if len(sense) == 0 {
		return
	}
	for i := range sense {
		sense[i] = 0
	}
	asc := byte(ascAscq >> 8)
	ascq := byte(ascAscq)

	if descriptorFormat {
		emitDescriptorSense(sense, key, asc, ascq, descs)
		return
	}
	emitFixedSense(sense, key, asc, ascq, descs)
}

func emitDescriptorSense(sense []byte, key, asc, ascq byte, descs []senseDescriptor) {
	sense[0] = scsi.SenseResponseDescriptorCurrent
	sense[1] = key & 0x0f
	sense[2] = asc
	sense[3] = ascq
	off := 8
	for _, d := range descs {
		if off >= len(sense) {
			break
		}
		tmp := make([]byte, 256)
		n := d.writeDescriptor(tmp)
		// type 09h (ATA status return) carries an extra trailing "log
		// index" byte in the source's internal representation that is
		// not emitted on the wire — spec.md §4.1.
		if d.descType() == 0x09 && n > 0 {
			n--
		}
		copy(sense[off:], tmp[:n])
		off += n
		if off > len(sense) {
			off = len(sense)
		}
	}
	if off > 8 && off-8 <= 0xff {
		sense[7] = byte(off - 8)
	} else if off > 8 {
		sense[7] = 0xff
	}
}

func emitFixedSense(sense []byte, key, asc, ascq byte, descs []senseDescriptor) {
	sense[0] = scsi.SenseResponseFixedCurrent
	sense[2] = key & 0x0f
	if len(sense) > 13 {
		sense[12] = asc
		sense[13] = ascq
	}
	if len(sense) > 7 {
		sense[7] = 0x0a
	}
	for _, d := range descs {
		if !d.hasFixedForm() {
			continue
		}
		if len(sense) < 18 {
			continue
		}
		d.writeFixed(sense)
	}
}

// emitFieldPointerDescriptor implements C1's
// emit_field_pointer_descriptor: a sense buffer carrying one
// sense-key-specific field-pointer descriptor, in the format
// descriptorFormat selects (used by the validator and the per-command
// translators).
func emitFieldPointerDescriptor(sense []byte, key byte, ascAscq uint16, descriptorFormat bool, cd, bpv bool, bitPointer uint8, fieldPointer uint16) {
	emitSense(sense, key, ascAscq, descriptorFormat, senseKeySpecificDescriptor{
		cd:           cd,
		bpv:          bpv,
		bitPointer:   bitPointer,
		fieldPointer: fieldPointer,
	})
}

// emitProgressDescriptor implements C1's emit_progress_descriptor.
func emitProgressDescriptor(sense []byte, key byte, ascAscq uint16, descriptorFormat bool, progress uint16) {
	emitSense(sense, key, ascAscq, descriptorFormat, senseKeySpecificDescriptor{
		isProgress: true,
		progress:   progress,
	})
}
