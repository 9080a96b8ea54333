package nvme

import "encoding/binary"

// IdentifyController mirrors the CNS=01h Identify Controller data structure.
// Field widths and ordering are grounded on dswarbrick/smart's
// nvmeIdentController (itself decoded off a real NVMe ioctl buffer); CTRATT,
// FWUG, and SANICAP are carried at the same byte offsets that struct already
// reserved (96, 319, and 328 respectively), since those match later NVMe
// revisions' placement of all three fields.
type IdentifyController struct {
	VendorID     uint16   // bytes 0:2
	Ssvid        uint16   // 2:4
	SerialNumber [20]byte // 4:24
	ModelNumber  [40]byte // 24:64
	Firmware     [8]byte  // 64:72
	Rab          uint8    // 72
	IEEE         [3]byte  // 73:76 PCI vendor OUI
	Cmic         uint8    // 76
	Mdts         uint8    // 77 — max data transfer size, 2^Mdts * min page size
	Cntlid       uint16   // 78:80
	Ver          uint32   // 80:84
	Rtd3r        uint32   // 84:88
	Rtd3e        uint32   // 88:92
	Oaes         uint32   // 92:96
	Ctratt       uint32   // 96:100 — Controller Attributes (bit 4 = endurance groups)
	_            [156]byte

	Oacs   uint16 // 256:258 — Optional Admin Command Support
	Acl    uint8
	Aerl   uint8
	Frmw   uint8 // Firmware Updates (bit 4 = activate-without-reset supported)
	Lpa    uint8 // Log Page Attributes (bit 5 = extended SMART/Rotational Media log)
	Elpe   uint8
	Npss   uint8 // Number of Power States Support
	Avscc  uint8
	Apsta  uint8
	Wctemp uint16
	Cctemp uint16
	Mtfa   uint16
	Hmpre  uint32
	Hmmin  uint32
	Tnvmcap [16]byte
	Unvmcap [16]byte
	Rpmbs   uint32
	_       [3]byte
	Fwug    uint8  // 319 — Firmware Update Granularity, 4KiB units; 00h/FFh = no restriction
	_       [8]byte
	Sanicap uint32 // 328:332 — Sanitize Capabilities: bit0 crypto erase, bit1 block erase, bit2 overwrite
	_       [180]byte

	Sqes    uint8
	Cqes    uint8
	_       [2]byte
	Nn      uint32
	Oncs    uint16 // Optional NVM Command Support
	Fuses   uint16
	Fna     uint8
	Vwc     uint8 // Volatile Write Cache (bit 0 present, bit 1 flush-per-namespace)
	Awun    uint16
	Awupf   uint16
	Nvscc   uint8
	_       uint8
	Acwu    uint16
	_       [2]byte
	Sgls    uint32
	_       [1508]byte

	Psd [32]PowerStateDescriptor
	Vs  [1024]byte
}

// PowerStateDescriptor per NVMe Identify Controller Power State Descriptor table.
type PowerStateDescriptor struct {
	MaxPower        uint16
	_               uint8
	Flags           uint8
	EntryLat        uint32
	ExitLat         uint32
	ReadTput        uint8
	ReadLat         uint8
	WriteTput       uint8
	WriteLat        uint8
	IdlePower       uint16
	IdleScale       uint8
	_               uint8
	ActivePower     uint16
	ActiveWorkScale uint8
	_               [9]byte
}

// Sanicap bits advertising which SANITIZE actions the controller supports.
const (
	SanicapCryptoErase = 1 << 0
	SanicapBlockErase  = 1 << 1
	SanicapOverwrite   = 1 << 2
)

// Oacs bits this translator cares about.
const (
	OacsSecurity    = 1 << 0
	OacsFormat      = 1 << 1
	OacsFirmware    = 1 << 2
	OacsNsManage    = 1 << 3
	OacsSelfTest    = 1 << 4
	OacsDirectives  = 1 << 5
)

// Oncs bits this translator cares about.
const (
	OncsCompare        = 1 << 0
	OncsWriteUncorrect = 1 << 1
	OncsDatasetMgmt    = 1 << 2
	OncsWriteZeroes    = 1 << 3
	OncsSaveFeature    = 1 << 4
	OncsReservations   = 1 << 5
	OncsTimestamp      = 1 << 6
	OncsVerify         = 1 << 7
)

// LBAFormat describes one entry of the namespace's supported LBA format table.
type LBAFormat struct {
	MetadataSize uint16
	LBADataSize  uint8 // log2(block size)
	RelativePerf uint8
}

// IdentifyNamespace mirrors the CNS=00h Identify Namespace data structure.
// Grounded on dswarbrick/smart's nvmeIdentNamespace, extended with ENDGID
// at the offset NVMe 1.4+ defines it (102).
type IdentifyNamespace struct {
	Nsze   uint64
	Ncap   uint64
	Nuse   uint64
	Nsfeat uint8
	Nlbaf  uint8
	Flbas  uint8
	Mc     uint8
	Dpc    uint8
	Dps    uint8
	Nmic   uint8
	Rescap uint8
	Fpi    uint8
	Dlfeat uint8
	Nawun  uint16
	Nawupf uint16
	Nacwu  uint16
	Nabsn  uint16
	Nabo   uint16
	Nabspf uint16
	Noiob  uint16
	Nvmcap [16]byte
	_      [40]byte
	Endgid uint16 // 102:104 — Endurance Group Identifier
	_      [32]byte
	Nguid  [16]byte
	EUI64  [8]byte
	Lbaf   [16]LBAFormat
	_      [192]byte
	Vs     [3712]byte
}

// Nsfeat/Dlfeat bits the translator cares about.
const (
	NsfeatThinProvisioning = 1 << 0
	DlfeatWriteZeroesMask  = 0x07
	DlfeatWriteZeroesOnes  = 0x01
)

// ActiveLBAFIndex returns the LBA format table index FLBAS selects,
// accounting for the NLBAF>16 extension into FLBAS bits [6:5] (spec.md
// §4.4: "When NLBAF > 16, FLBAS extends into bits 6:5 to index the LBA
// format table").
func (ns *IdentifyNamespace) ActiveLBAFIndex() int {
	idx := int(ns.Flbas & 0x0f)
	if ns.Nlbaf > 16 {
		idx |= int(ns.Flbas&0x60) >> 1
	}
	return idx
}

func (ns *IdentifyNamespace) BlockSize() uint32 {
	idx := ns.ActiveLBAFIndex()
	if idx < 0 || idx >= len(ns.Lbaf) {
		return 512
	}
	return 1 << ns.Lbaf[idx].LBADataSize
}

func (ns *IdentifyNamespace) MaxLBA() uint64 {
	if ns.Nsze == 0 {
		return 0
	}
	return ns.Nsze - 1
}

var byteOrder = binary.LittleEndian

// DecodeIdentifyController decodes a 4096-byte Identify Controller buffer.
func DecodeIdentifyController(buf []byte, out *IdentifyController) {
	r := newReader(buf)
	r.read(&out.VendorID)
	r.read(&out.Ssvid)
	r.readBytes(out.SerialNumber[:])
	r.readBytes(out.ModelNumber[:])
	r.readBytes(out.Firmware[:])
	r.read(&out.Rab)
	r.readBytes(out.IEEE[:])
	r.read(&out.Cmic)
	r.read(&out.Mdts)
	r.read(&out.Cntlid)
	r.read(&out.Ver)
	r.read(&out.Rtd3r)
	r.read(&out.Rtd3e)
	r.read(&out.Oaes)
	r.read(&out.Ctratt)
	r.skip(156)
	r.seek(256)
	r.read(&out.Oacs)
	r.read(&out.Acl)
	r.read(&out.Aerl)
	r.read(&out.Frmw)
	r.read(&out.Lpa)
	r.read(&out.Elpe)
	r.read(&out.Npss)
	r.read(&out.Avscc)
	r.read(&out.Apsta)
	r.read(&out.Wctemp)
	r.read(&out.Cctemp)
	r.read(&out.Mtfa)
	r.read(&out.Hmpre)
	r.read(&out.Hmmin)
	r.readBytes(out.Tnvmcap[:])
	r.readBytes(out.Unvmcap[:])
	r.read(&out.Rpmbs)
	r.seek(319)
	r.read(&out.Fwug)
	r.seek(328)
	r.read(&out.Sanicap)
	r.seek(512)
	r.read(&out.Sqes)
	r.read(&out.Cqes)
	r.skip(2)
	r.read(&out.Nn)
	r.read(&out.Oncs)
	r.read(&out.Fuses)
	r.read(&out.Fna)
	r.read(&out.Vwc)
	r.read(&out.Awun)
	r.read(&out.Awupf)
	r.read(&out.Nvscc)
	r.skip(1)
	r.read(&out.Acwu)
	r.skip(2)
	r.read(&out.Sgls)
	r.seek(2048)
	for i := range out.Psd {
		r.read(&out.Psd[i].MaxPower)
		r.skip(1)
		r.read(&out.Psd[i].Flags)
		r.read(&out.Psd[i].EntryLat)
		r.read(&out.Psd[i].ExitLat)
		r.read(&out.Psd[i].ReadTput)
		r.read(&out.Psd[i].ReadLat)
		r.read(&out.Psd[i].WriteTput)
		r.read(&out.Psd[i].WriteLat)
		r.read(&out.Psd[i].IdlePower)
		r.read(&out.Psd[i].IdleScale)
		r.skip(1)
		r.read(&out.Psd[i].ActivePower)
		r.read(&out.Psd[i].ActiveWorkScale)
		r.skip(9)
	}
}

// DecodeIdentifyNamespace decodes a 4096-byte Identify Namespace buffer.
func DecodeIdentifyNamespace(buf []byte, out *IdentifyNamespace) {
	r := newReader(buf)
	r.read(&out.Nsze)
	r.read(&out.Ncap)
	r.read(&out.Nuse)
	r.read(&out.Nsfeat)
	r.read(&out.Nlbaf)
	r.read(&out.Flbas)
	r.read(&out.Mc)
	r.read(&out.Dpc)
	r.read(&out.Dps)
	r.read(&out.Nmic)
	r.read(&out.Rescap)
	r.read(&out.Fpi)
	r.read(&out.Dlfeat)
	r.read(&out.Nawun)
	r.read(&out.Nawupf)
	r.read(&out.Nacwu)
	r.read(&out.Nabsn)
	r.read(&out.Nabo)
	r.read(&out.Nabspf)
	r.read(&out.Noiob)
	r.readBytes(out.Nvmcap[:])
	r.seek(102)
	r.read(&out.Endgid)
	r.seek(104)
	r.readBytes(out.Nguid[:])
	r.readBytes(out.EUI64[:])
	for i := range out.Lbaf {
		r.read(&out.Lbaf[i].MetadataSize)
		r.read(&out.Lbaf[i].LBADataSize)
		r.read(&out.Lbaf[i].RelativePerf)
	}
}

// littleEndianReader is a tiny helper to decode fixed-layout NVMe
// structures field-by-field, matching the field-at-a-time style
// dswarbrick/smart uses via binary.Read, but letting us jump around
// for fields (CTRATT, SANICAP, ENDGID) the upstream struct treated as
// reserved padding.
type littleEndianReader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *littleEndianReader { return &littleEndianReader{buf: buf} }

func (r *littleEndianReader) seek(off int) { r.off = off }
func (r *littleEndianReader) skip(n int)   { r.off += n }

func (r *littleEndianReader) readBytes(dst []byte) {
	copy(dst, r.buf[r.off:r.off+len(dst)])
	r.off += len(dst)
}

func (r *littleEndianReader) read(v interface{}) {
	switch p := v.(type) {
	case *uint8:
		*p = r.buf[r.off]
		r.off++
	case *uint16:
		*p = byteOrder.Uint16(r.buf[r.off:])
		r.off += 2
	case *uint32:
		*p = byteOrder.Uint32(r.buf[r.off:])
		r.off += 4
	case *uint64:
		*p = byteOrder.Uint64(r.buf[r.off:])
		r.off += 8
	default:
		panic("nvme: unsupported field type in identify decode")
	}
}
