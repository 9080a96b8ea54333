package sntl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/go-sntl/nvme"
)

// fwTransport accepts any Firmware Image Download / Commit and records
// whether one was issued, so downloadFirmware's granularity gate can be
// tested without going through a full identify cycle.
type fwTransport struct {
	downloads int
	commits   int
}

func (f *fwTransport) IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	switch opcode {
	case nvme.AdminFirmwareImageDownload:
		f.downloads++
	case nvme.AdminFirmwareCommit:
		f.commits++
	}
	return 0, 0
}

func (f *fwTransport) IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	return 0, 0
}

func (f *fwTransport) Reset(kind nvme.ResetKind) {}

func TestFwugNoRestrictionValues(t *testing.T) {
	ctx := &DeviceCtx{}
	ctx.Controller.Fwug = 0x00
	assert.Equal(t, uint32(0), fwug(ctx))
	ctx.Controller.Fwug = 0xff
	assert.Equal(t, uint32(0), fwug(ctx))
}

func TestFwugConvertsToBytes(t *testing.T) {
	ctx := &DeviceCtx{}
	ctx.Controller.Fwug = 2
	assert.Equal(t, uint32(8192), fwug(ctx))
}

func TestDownloadFirmwareRejectsMisalignedOffset(t *testing.T) {
	transport := &fwTransport{}
	ctx := &DeviceCtx{Transport: transport}
	ctx.Controller.Fwug = 1 // 4096-byte granularity
	ctx.identified = true

	io_ := &ScsiIo{Data: make([]byte, 4096), Sense: make([]byte, 18), LastSegment: true}
	require.NoError(t, downloadFirmware(ctx, io_, 100, true))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f) // ILLEGAL REQUEST
	assert.Equal(t, byte(0x24), io_.Sense[12])     // INVALID FIELD IN CDB
	assert.Equal(t, 0, transport.downloads)
}

func TestDownloadFirmwareRejectsMisalignedLength(t *testing.T) {
	transport := &fwTransport{}
	ctx := &DeviceCtx{Transport: transport}
	ctx.Controller.Fwug = 1 // 4096-byte granularity
	ctx.identified = true

	io_ := &ScsiIo{Data: make([]byte, 4097), Sense: make([]byte, 18), LastSegment: true}
	require.NoError(t, downloadFirmware(ctx, io_, 0, true))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
	assert.Equal(t, byte(0x24), io_.Sense[12])
	assert.Equal(t, 0, transport.downloads)
}

func TestDownloadFirmwareAcceptsAlignedOffsetAndLength(t *testing.T) {
	transport := &fwTransport{}
	ctx := &DeviceCtx{Transport: transport}
	ctx.Controller.Fwug = 1 // 4096-byte granularity
	ctx.identified = true

	io_ := &ScsiIo{Data: make([]byte, 8192), Sense: make([]byte, 18), LastSegment: true}
	require.NoError(t, downloadFirmware(ctx, io_, 4096, true))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
	assert.Equal(t, 1, transport.downloads)
	assert.Equal(t, 1, transport.commits)
}

func TestDownloadFirmwareUnrestrictedGranularitySkipsCheck(t *testing.T) {
	transport := &fwTransport{}
	ctx := &DeviceCtx{Transport: transport}
	ctx.Controller.Fwug = 0x00
	ctx.identified = true

	io_ := &ScsiIo{Data: make([]byte, 17), Sense: make([]byte, 18), LastSegment: true}
	require.NoError(t, downloadFirmware(ctx, io_, 3, true))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
	assert.Equal(t, 1, transport.downloads)
}

func TestDownloadFirmwareRejectsShortBufferEvenWhenUnrestricted(t *testing.T) {
	// A sub-DWORD data buffer would otherwise underflow NUMD's zero-based
	// DWORD count (len/4 - 1) into a huge bogus transfer size.
	transport := &fwTransport{}
	ctx := &DeviceCtx{Transport: transport}
	ctx.Controller.Fwug = 0x00
	ctx.identified = true

	io_ := &ScsiIo{Data: make([]byte, 2), Sense: make([]byte, 18), LastSegment: true}
	require.NoError(t, downloadFirmware(ctx, io_, 0, true))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
	assert.Equal(t, 0, transport.downloads)
}

func TestCmdWriteBufferModeDispatch(t *testing.T) {
	transport := &fwTransport{}
	ctx := &DeviceCtx{Transport: transport}
	ctx.identified = true

	// 0Dh and 0Eh are download-only.
	for _, mode := range []byte{0x0d, 0x0e} {
		transport.downloads, transport.commits = 0, 0
		cdb := []byte{0x3b, mode, 0, 0, 0, 0, 0, 0, 0, 0}
		io_ := &ScsiIo{CDB: cdb, Data: make([]byte, 16), Sense: make([]byte, 18)}
		require.NoError(t, cmdWriteBuffer(ctx, io_))
		assert.Equal(t, 1, transport.downloads, "mode 0x%02x", mode)
		assert.Equal(t, 0, transport.commits, "mode 0x%02x", mode)
	}

	// 0Fh commits the previously-downloaded image.
	transport.downloads, transport.commits = 0, 0
	cdb := []byte{0x3b, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0}
	io_ := &ScsiIo{CDB: cdb, Sense: make([]byte, 18)}
	require.NoError(t, cmdWriteBuffer(ctx, io_))
	assert.Equal(t, 0, transport.downloads)
	assert.Equal(t, 1, transport.commits)
}
