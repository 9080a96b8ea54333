package nvme

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIdentifyNamespaceBlockSizeAndMaxLBA(t *testing.T) {
	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint64(buf[0:8], 2048) // Nsze
	buf[25] = 0                                   // Nlbaf
	buf[26] = 0                                   // Flbas, format index 0
	buf[128+2] = 9                                // Lbaf[0].LBADataSize -> 512-byte blocks

	var ns IdentifyNamespace
	DecodeIdentifyNamespace(buf, &ns)

	require.Equal(t, uint64(2048), ns.Nsze)
	assert.Equal(t, uint32(512), ns.BlockSize())
	assert.Equal(t, uint64(2047), ns.MaxLBA())
}

func TestDecodeIdentifyNamespaceZeroNszeHasNoMaxLBA(t *testing.T) {
	var ns IdentifyNamespace
	DecodeIdentifyNamespace(make([]byte, 4096), &ns)
	assert.Equal(t, uint64(0), ns.MaxLBA())
}

func TestDecodeIdentifyNamespaceIdentifiers(t *testing.T) {
	buf := make([]byte, 4096)
	nguid := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	copy(buf[104:120], nguid)
	eui64 := []byte{0xa, 0xb, 0xc, 0xd, 0xe, 0xf, 0x10, 0x11}
	copy(buf[120:128], eui64)

	var ns IdentifyNamespace
	DecodeIdentifyNamespace(buf, &ns)

	assert.Equal(t, nguid, ns.Nguid[:])
	assert.Equal(t, eui64, ns.EUI64[:])
}

func TestDecodeIdentifyControllerCoreFields(t *testing.T) {
	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint16(buf[0:2], 0x1234) // VendorID
	copy(buf[4:24], []byte("SERIALNUMBER0000001 "))
	buf[77] = 20 // Mdts
	buf[319] = 2 // Fwug
	binary.LittleEndian.PutUint32(buf[328:332], 0x07) // Sanicap
	binary.LittleEndian.PutUint16(buf[520:522], 0x0012) // Oncs (after Sqes/Cqes/skip2/Nn at offset 512)

	var ctrl IdentifyController
	DecodeIdentifyController(buf, &ctrl)

	assert.Equal(t, uint16(0x1234), ctrl.VendorID)
	assert.Equal(t, uint8(20), ctrl.Mdts)
	assert.Equal(t, uint8(2), ctrl.Fwug)
	assert.Equal(t, uint32(0x07), ctrl.Sanicap)
	assert.Equal(t, uint16(0x0012), ctrl.Oncs)
}
