package sntl

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/go-sntl/nvme"
)

func TestParseRW6ZeroLengthMeans256(t *testing.T) {
	cdb := []byte{0x08, 0x00, 0x00, 0x01, 0x00, 0x00}
	r := parseRW6(cdb)
	assert.Equal(t, uint64(1), r.lba)
	assert.Equal(t, uint32(256), r.length)
}

func TestParseRW10Fields(t *testing.T) {
	cdb := make([]byte, 10)
	cdb[1] = (5 << 5) | 0x10 | 0x08 // protect=5, dpo=1, fua=1
	binary.BigEndian.PutUint32(cdb[2:6], 0x1000)
	cdb[6] = 0x07
	binary.BigEndian.PutUint16(cdb[7:9], 4)
	r := parseRW10(cdb)
	assert.Equal(t, uint8(5), r.protect)
	assert.True(t, r.dpo)
	assert.True(t, r.fua)
	assert.Equal(t, uint64(0x1000), r.lba)
	assert.Equal(t, uint8(7), r.groupNum)
	assert.Equal(t, uint32(4), r.length)
}

func TestParseVerify16BYTCHK(t *testing.T) {
	cdb := make([]byte, 16)
	cdb[1] = 0x02 << 1 // BYTCHK=2
	r := parseVerify16(cdb)
	assert.Equal(t, uint8(2), r.byteCheck)
}

func TestPrinfoMapping(t *testing.T) {
	assert.Equal(t, uint32(nvme.RWPRACT|nvme.RWPRCHKGuard|nvme.RWPRCHKAppTag|nvme.RWPRCHKRefTag), prinfo(0))
	assert.Equal(t, uint32(nvme.RWPRCHKGuard|nvme.RWPRCHKAppTag|nvme.RWPRCHKRefTag), prinfo(1))
	assert.Equal(t, uint32(nvme.RWPRCHKAppTag|nvme.RWPRCHKRefTag), prinfo(2))
	assert.Equal(t, uint32(0), prinfo(3))
	assert.Equal(t, uint32(nvme.RWPRCHKGuard), prinfo(4))
	assert.Equal(t, uint32(nvme.RWPRCHKGuard|nvme.RWPRCHKAppTag|nvme.RWPRCHKRefTag), prinfo(5))
}

func TestRwRangeExceeds(t *testing.T) {
	ctx := &DeviceCtx{}
	ctx.maxLBA = 1023
	assert.False(t, rwRangeExceeds(ctx, rwRequest{lba: 1023, length: 1}))
	assert.True(t, rwRangeExceeds(ctx, rwRequest{lba: 1023, length: 2}))
	assert.False(t, rwRangeExceeds(ctx, rwRequest{lba: 0, length: 0}))
}

// memTransport backs IORead/IOWrite against an in-memory byte slice so
// cmdRead/cmdWrite can be exercised end to end without a real device.
type memTransport struct {
	blocks   uint64
	lbaBytes uint8
	storage  []byte
}

func newMemTransport(blocks uint64, lbaBytes uint8) *memTransport {
	return &memTransport{blocks: blocks, lbaBytes: lbaBytes, storage: make([]byte, blocks<<lbaBytes)}
}

func (m *memTransport) IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	if opcode == nvme.AdminIdentify && cdw[0]&0xff == nvme.CNSIdentifyNamespace {
		binary.LittleEndian.PutUint64(data[0:8], m.blocks)
		data[128+2] = m.lbaBytes
	}
	return 0, 0
}

func (m *memTransport) IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	lba := uint64(cdw[0]) | uint64(cdw[1])<<32
	nlb := uint64(cdw[2]&0xffff) + 1
	blockSize := uint64(1) << m.lbaBytes
	off := lba * blockSize
	length := nlb * blockSize
	switch opcode {
	case nvme.IORead:
		copy(data, m.storage[off:off+length])
	case nvme.IOWrite:
		copy(m.storage[off:off+length], data)
	}
	return 0, 0
}

func (m *memTransport) Reset(kind nvme.ResetKind) {}

func TestCmdReadWriteRoundTrip(t *testing.T) {
	transport := newMemTransport(64, 9) // 64 blocks of 512 bytes
	ctx := &DeviceCtx{Transport: transport, Nsid: 1}

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeCdb := make([]byte, 10)
	writeCdb[0] = 0x2a
	binary.BigEndian.PutUint32(writeCdb[2:6], 3)
	binary.BigEndian.PutUint16(writeCdb[7:9], 1)
	writeIo := &ScsiIo{CDB: writeCdb, Data: payload, Sense: make([]byte, 18)}
	require.NoError(t, cmdWrite10(ctx, writeIo))
	require.Equal(t, byte(0), writeIo.Sense[2]&0x0f)

	readCdb := make([]byte, 10)
	readCdb[0] = 0x28
	binary.BigEndian.PutUint32(readCdb[2:6], 3)
	binary.BigEndian.PutUint16(readCdb[7:9], 1)
	readBuf := make([]byte, 512)
	readIo := &ScsiIo{CDB: readCdb, Data: readBuf, Sense: make([]byte, 18)}
	require.NoError(t, cmdRead10(ctx, readIo))
	assert.Equal(t, payload, readBuf)
}

func TestCmdReadZeroLengthIsNoopSuccess(t *testing.T) {
	transport := newMemTransport(4, 9)
	ctx := &DeviceCtx{Transport: transport, Nsid: 1}

	cdb := make([]byte, 10)
	cdb[0] = 0x28
	binary.BigEndian.PutUint32(cdb[2:6], 1)
	binary.BigEndian.PutUint16(cdb[7:9], 0) // transfer length 0
	io_ := &ScsiIo{CDB: cdb, Data: nil, Sense: make([]byte, 18)}
	require.NoError(t, cmdRead10(ctx, io_))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
}

func TestCmdReadRejectsOversizeTransferLength(t *testing.T) {
	transport := newMemTransport(100, 9)
	ctx := &DeviceCtx{Transport: transport, Nsid: 1}

	cdb := make([]byte, 16)
	cdb[0] = 0x88
	binary.BigEndian.PutUint32(cdb[10:14], maxRWTransferBlocks+1)
	io_ := &ScsiIo{CDB: cdb, Data: make([]byte, 512), Sense: make([]byte, 18)}
	require.NoError(t, cmdRead16(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
}

func TestCmdReadRejectsOutOfRangeLBA(t *testing.T) {
	transport := newMemTransport(4, 9)
	ctx := &DeviceCtx{Transport: transport, Nsid: 1}

	cdb := make([]byte, 10)
	cdb[0] = 0x28
	binary.BigEndian.PutUint32(cdb[2:6], 100)
	binary.BigEndian.PutUint16(cdb[7:9], 1)
	io_ := &ScsiIo{CDB: cdb, Data: make([]byte, 512), Sense: make([]byte, 18)}
	require.NoError(t, cmdRead10(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f) // ILLEGAL REQUEST
}
