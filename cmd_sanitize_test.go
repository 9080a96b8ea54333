package sntl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreos/go-sntl/nvme"
)

// sanitizeTransport answers Sanitize/GetLogPage calls directly, recording
// the last SANACT issued so cmdSanitize's capability gating can be tested
// without a full identify cycle.
type sanitizeTransport struct {
	lastSanact   uint32
	sanitizeCall int
	logStatus    uint16 // low 3 bits of Sanitize Status log's SSTAT
}

func (s *sanitizeTransport) IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	switch opcode {
	case nvme.AdminSanitize:
		s.sanitizeCall++
		s.lastSanact = cdw[0]
	case nvme.AdminGetLogPage:
		data[0] = byte(s.logStatus)
		data[1] = byte(s.logStatus >> 8)
	}
	return 0, 0
}

func (s *sanitizeTransport) IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	return 0, 0
}

func (s *sanitizeTransport) Reset(kind nvme.ResetKind) {}

func newSanitizeCtx(sanicap uint32) (*DeviceCtx, *sanitizeTransport) {
	transport := &sanitizeTransport{logStatus: nvme.SanitizeStatusCompleted}
	ctx := &DeviceCtx{Transport: transport, identified: true}
	ctx.Controller.Sanicap = sanicap
	return ctx, transport
}

func TestCmdSanitizeRejectsUnsupportedOverwrite(t *testing.T) {
	ctx, transport := newSanitizeCtx(0) // no SANICAP bits set
	io_ := &ScsiIo{CDB: []byte{0x48, 0x81, 0, 0, 0, 0}, Sense: make([]byte, 18)}
	require.NoError(t, cmdSanitize(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f) // ILLEGAL REQUEST
	assert.Equal(t, 0, transport.sanitizeCall)
}

func TestCmdSanitizeRejectsUnsupportedBlockErase(t *testing.T) {
	ctx, transport := newSanitizeCtx(nvme.SanicapOverwrite) // only overwrite supported
	io_ := &ScsiIo{CDB: []byte{0x48, 0x82, 0, 0, 0, 0}, Sense: make([]byte, 18)}
	require.NoError(t, cmdSanitize(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
	assert.Equal(t, 0, transport.sanitizeCall)
}

func TestCmdSanitizeRejectsUnsupportedCryptoErase(t *testing.T) {
	ctx, transport := newSanitizeCtx(nvme.SanicapOverwrite | nvme.SanicapBlockErase)
	io_ := &ScsiIo{CDB: []byte{0x48, 0x83, 0, 0, 0, 0}, Sense: make([]byte, 18)}
	require.NoError(t, cmdSanitize(ctx, io_))
	assert.Equal(t, byte(0x05), io_.Sense[2]&0x0f)
	assert.Equal(t, 0, transport.sanitizeCall)
}

func TestCmdSanitizeIssuesOverwriteWhenSupportedImmediate(t *testing.T) {
	ctx, transport := newSanitizeCtx(nvme.SanicapOverwrite)
	io_ := &ScsiIo{CDB: []byte{0x48, 0x81 | 0x80, 0, 0, 0, 0}, Sense: make([]byte, 18)} // IMMED=1
	require.NoError(t, cmdSanitize(ctx, io_))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
	assert.Equal(t, 1, transport.sanitizeCall)
	assert.Equal(t, uint32(3), transport.lastSanact)
}

func TestCmdSanitizeExitFailureModeNeverGated(t *testing.T) {
	ctx, transport := newSanitizeCtx(0) // no SANICAP bits at all
	io_ := &ScsiIo{CDB: []byte{0x48, 0x1f | 0x80, 0, 0, 0, 0}, Sense: make([]byte, 18)}
	require.NoError(t, cmdSanitize(ctx, io_))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
	assert.Equal(t, 1, transport.sanitizeCall)
}

func TestCmdSanitizeBlocksUntilCompleteWhenNotImmediate(t *testing.T) {
	ctx, transport := newSanitizeCtx(nvme.SanicapBlockErase)
	transport.logStatus = nvme.SanitizeStatusCompleted // resolves on the first poll
	io_ := &ScsiIo{CDB: []byte{0x48, 0x02, 0, 0, 0, 0}, Sense: make([]byte, 18)} // IMMED=0
	require.NoError(t, cmdSanitize(ctx, io_))
	assert.Equal(t, byte(0), io_.Sense[2]&0x0f)
}
