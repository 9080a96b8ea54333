package sntl

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/go-sntl/nvme"
)

// unmapTransport answers Identify with Dataset Management advertised in
// ONCS and a fixed namespace size, so cmdUnmap-level tests can exercise
// the range validation without a full device context.
type unmapTransport struct {
	blocks   uint64
	lbaBytes uint8
	issued   [][]byte
}

func (u *unmapTransport) IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	if opcode == nvme.AdminIdentify {
		switch cdw[0] & 0xff {
		case nvme.CNSIdentifyController:
			binary.LittleEndian.PutUint16(data[520:522], nvme.OncsDatasetMgmt)
		case nvme.CNSIdentifyNamespace:
			binary.LittleEndian.PutUint64(data[0:8], u.blocks)
			data[128+2] = u.lbaBytes
		}
	}
	return 0, 0
}

func (u *unmapTransport) IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	if opcode == nvme.IODatasetMgmt {
		buf := make([]byte, len(data))
		copy(buf, data)
		u.issued = append(u.issued, buf)
	}
	return 0, 0
}

func (u *unmapTransport) Reset(kind nvme.ResetKind) {}

func newUnmapCtx(blocks uint64) (*DeviceCtx, *unmapTransport) {
	transport := &unmapTransport{blocks: blocks, lbaBytes: 9}
	return &DeviceCtx{Transport: transport, Nsid: 1}, transport
}

func buildUnmapParameterList(ranges []unmapRange) []byte {
	body := make([]byte, 8+len(ranges)*16)
	binary.BigEndian.PutUint16(body[0:2], uint16(len(body)-2))
	binary.BigEndian.PutUint16(body[2:4], uint16(len(ranges)*16))
	for i, r := range ranges {
		off := 8 + i*16
		binary.BigEndian.PutUint64(body[off:off+8], r.lba)
		binary.BigEndian.PutUint32(body[off+8:off+12], uint32(r.length))
	}
	return body
}

func TestParseUnmapParameterList(t *testing.T) {
	body := buildUnmapParameterList([]unmapRange{{lba: 10, length: 5}, {lba: 100, length: 1}})
	ranges, ok := parseUnmapParameterList(body)
	require.True(t, ok)
	require.Len(t, ranges, 2)
	assert.Equal(t, unmapRange{lba: 10, length: 5}, ranges[0])
	assert.Equal(t, unmapRange{lba: 100, length: 1}, ranges[1])
}

func TestParseUnmapParameterListTooShort(t *testing.T) {
	_, ok := parseUnmapParameterList([]byte{0, 1, 2})
	assert.True(t, ok) // short header is not a "too many ranges" rejection
}

func TestParseUnmapParameterListTooManyRanges(t *testing.T) {
	ranges := make([]unmapRange, maxDSMRanges+1)
	for i := range ranges {
		ranges[i] = unmapRange{lba: uint64(i), length: 1}
	}
	body := buildUnmapParameterList(ranges)
	_, ok := parseUnmapParameterList(body)
	assert.False(t, ok)
}

func TestCoalesceUnmapRangesMergesAdjacent(t *testing.T) {
	in := []unmapRange{
		{lba: 100, length: 10}, // [100,110)
		{lba: 0, length: 10},   // [0,10)
		{lba: 10, length: 5},   // [10,15) -- adjacent to previous after sort
	}
	out := coalesceUnmapRanges(in)
	require.Len(t, out, 2)
	assert.Equal(t, unmapRange{lba: 0, length: 15}, out[0])
	assert.Equal(t, unmapRange{lba: 100, length: 10}, out[1])
}

func TestCoalesceUnmapRangesMergeDoesNotTruncate(t *testing.T) {
	in := []unmapRange{
		{lba: 0, length: 0xfffffff0},
		{lba: 0xfffffff0, length: 0x20}, // merged end exceeds 2^32-1
	}
	out := coalesceUnmapRanges(in)
	// total span is 0x100000010 blocks, must split into >1 NVMe range
	// since a single DSM range tops out at 0xffffffff blocks.
	var total uint64
	for _, r := range out {
		assert.LessOrEqual(t, r.length, uint64(0xffffffff))
		total += r.length
	}
	assert.Equal(t, uint64(0x100000010), total)
	assert.Greater(t, len(out), 1)
}

func TestCoalesceUnmapRangesDropsZeroLength(t *testing.T) {
	in := []unmapRange{{lba: 5, length: 0}, {lba: 10, length: 3}}
	out := coalesceUnmapRanges(in)
	require.Len(t, out, 1)
	assert.Equal(t, unmapRange{lba: 10, length: 3}, out[0])
}

func TestCoalesceUnmapRangesDoesNotTruncateAt255(t *testing.T) {
	// coalesceUnmapRanges itself never drops ranges; the >255 ceiling is
	// enforced by cmdUnmap, which rejects instead of truncating.
	in := make([]unmapRange, 300)
	for i := range in {
		in[i] = unmapRange{lba: uint64(i * 100), length: 1}
	}
	out := coalesceUnmapRanges(in)
	assert.Len(t, out, 300)
}

func TestCmdUnmapRejectsLBAOutOfRange(t *testing.T) {
	ctx, _ := newUnmapCtx(0x10000) // MaxLBA = 0xffff
	body := buildUnmapParameterList([]unmapRange{{lba: 0x10000, length: 1}})
	io_ := &ScsiIo{Data: body, Sense: make([]byte, 18)}
	require.NoError(t, cmdUnmap(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)                         // ILLEGAL REQUEST
	assert.Equal(t, byte(0x21), io_.Sense[12])                            // ASC
	fieldPointer := binary.BigEndian.Uint16(io_.Sense[16:18])
	assert.Equal(t, uint16(8), fieldPointer) // descriptor's LBA field, absolute offset 8
}

func TestCmdUnmapRejectsSpanOverMaxLBA(t *testing.T) {
	ctx, _ := newUnmapCtx(0x10000) // MaxLBA = 0xffff
	body := buildUnmapParameterList([]unmapRange{{lba: 0xfff0, length: 0x20}})
	io_ := &ScsiIo{Data: body, Sense: make([]byte, 18)}
	require.NoError(t, cmdUnmap(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
	assert.Equal(t, byte(0x21), io_.Sense[12])
}

func TestCmdUnmapRejectsTooManyRangesAfterCoalescing(t *testing.T) {
	// parseUnmapParameterList admits up to maxDSMRanges (256) descriptors;
	// when none of them merge, coalescing still leaves 256 > the 255 NVMe
	// DSM ceiling, which cmdUnmap must reject rather than truncate.
	ctx, _ := newUnmapCtx(1 << 40)
	ranges := make([]unmapRange, maxDSMRanges)
	for i := range ranges {
		ranges[i] = unmapRange{lba: uint64(i * 100), length: 1}
	}
	body := buildUnmapParameterList(ranges)
	io_ := &ScsiIo{Data: body, Sense: make([]byte, 18)}
	require.NoError(t, cmdUnmap(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
	assert.Equal(t, byte(0x26), io_.Sense[12]) // ASC 26h: invalid field in parameter list
}

func TestCmdUnmapIssuesDatasetManagement(t *testing.T) {
	ctx, transport := newUnmapCtx(1024)
	body := buildUnmapParameterList([]unmapRange{{lba: 10, length: 5}})
	io_ := &ScsiIo{Data: body, Sense: make([]byte, 18)}
	require.NoError(t, cmdUnmap(ctx, io_))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
	require.Len(t, transport.issued, 1)
}
