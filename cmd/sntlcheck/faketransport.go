package main

import (
	"encoding/binary"
	"time"

	sntl "github.com/coreos/go-sntl"
	"github.com/coreos/go-sntl/nvme"
)

// fakeTransport is an in-memory sntl.NvmeTransport backed by a byte slice
// standing in for namespace storage — enough to exercise Identify,
// Read/Write, and a couple of log pages without a real controller. It
// plays the role the teacher's tcmufile demo gave a real block file.
type fakeTransport struct {
	storage    []byte
	blockSize  uint32
	maxLBA     uint64
	resetCount int
}

func newFakeTransport() *fakeTransport {
	const blocks = 2048
	return &fakeTransport{
		storage:   make([]byte, blocks*512),
		blockSize: 512,
		maxLBA:    blocks - 1,
	}
}

func (f *fakeTransport) IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir sntl.BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	switch opcode {
	case nvme.AdminIdentify:
		cns := cdw[0] & 0xff
		switch cns {
		case nvme.CNSIdentifyController:
			f.fillIdentifyController(data)
		case nvme.CNSIdentifyNamespace:
			f.fillIdentifyNamespace(data)
		}
		return 0, 0
	case nvme.AdminGetLogPage:
		f.fillLogPage(cdw[0]&0xff, data)
		return 0, 0
	case nvme.AdminGetFeatures:
		return 0, 0
	case nvme.AdminSetFeatures:
		return 0, 0
	default:
		return 0, 0
	}
}

func (f *fakeTransport) IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir sntl.BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	lba := uint64(cdw[0]) | uint64(cdw[1])<<32
	nlb := uint64(cdw[2]&0xffff) + 1
	off := lba * uint64(f.blockSize)
	length := nlb * uint64(f.blockSize)

	switch opcode {
	case nvme.IORead:
		if off+length > uint64(len(f.storage)) {
			return statusLBAOutOfRange(), 0
		}
		copy(data, f.storage[off:off+length])
		return 0, 0
	case nvme.IOWrite:
		if off+length > uint64(len(f.storage)) {
			return statusLBAOutOfRange(), 0
		}
		copy(f.storage[off:off+length], data)
		return 0, 0
	case nvme.IOFlush:
		return 0, 0
	default:
		return 0, 0
	}
}

func statusLBAOutOfRange() uint32 {
	return uint32(nvme.SCTGeneric)<<25 | uint32(nvme.SCLBAOutOfRange)<<17 | (1 << 31)
}

func (f *fakeTransport) Reset(kind nvme.ResetKind) {
	f.resetCount++
}

func (f *fakeTransport) fillIdentifyController(buf []byte) {
	copy(buf[4:24], []byte("SNTLCHECK0000000000"))
	copy(buf[24:64], []byte("sntlcheck synthetic controller         "))
	copy(buf[64:72], []byte("0.0.1   "))
	buf[77] = 21 // Mdts: 2^21 * 4096 bytes
	binary.LittleEndian.PutUint16(buf[78:80], 1) // Cntlid
	buf[328] = 0x07                              // Sanicap: crypto+block+overwrite
}

func (f *fakeTransport) fillIdentifyNamespace(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f.maxLBA+1) // Nsze
	binary.LittleEndian.PutUint64(buf[8:16], f.maxLBA+1)
	buf[25] = 0 // Nlbaf = 0 (one format)
	buf[26] = 0 // Flbas index 0
	// LBA format table starts at byte 128: metadata size (2) + LBADS (1) + RP (1)
	buf[128+2] = 9 // LBADS = 9 -> 512-byte blocks
}

func (f *fakeTransport) fillLogPage(lid byte, buf []byte) {
	switch lid {
	case nvme.LogSMARTHealth:
		binary.LittleEndian.PutUint16(buf[1:3], 300) // 27 C
		buf[5] = 3                                   // percentage used
	case nvme.LogSanitizeStatus:
		binary.LittleEndian.PutUint16(buf[0:2], nvme.SanitizeStatusNeverSanitized)
	case nvme.LogDeviceSelfTest:
		buf[0] = 0 // no self-test running
		for i := range buf[4:] {
			buf[4+i] = 0x0f // unused entries
		}
	}
}
