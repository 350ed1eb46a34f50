// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ecam

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want [2]byte
	}{
		{"check string", []byte("123456789"), [2]byte{0xE5, 0xCC}},
		{"empty keeps init", nil, [2]byte{0x1D, 0x0F}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC16(tt.in))
		})
	}
}

func TestAppendAndCheckCRC(t *testing.T) {
	frame := []byte{0x0D, 0x0D, 0x83, 0xF0, 0x10, 0x02, 0x0F, 0x00, 0xFA, 0x1B, 0x01}
	full := AppendCRC(frame)
	assert.Equal(t, "0d0d83f010020f00fa1b016635", hex.EncodeToString(full))
	assert.True(t, CheckCRC(full))

	full[len(full)-1] ^= 0xFF
	assert.False(t, CheckCRC(full))
	assert.False(t, CheckCRC([]byte{0x01}))
	assert.Len(t, frame, 11, "input must not be mutated")
}

func TestB64ToCommandHex(t *testing.T) {
	// device answer frame: length byte 0x07 counts everything after the marker
	frame, _ := hex.DecodeString("d00783f0010155aa")
	withTS := append(append([]byte{}, frame...), 0x65, 0x00, 0x00, 0x01)
	b64 := base64.StdEncoding.EncodeToString(withTS)

	got, err := B64ToCommandHex(b64)
	require.NoError(t, err)
	assert.Equal(t, "d00783f0010155aa", got)

	unpadded := base64.RawStdEncoding.EncodeToString(frame)
	got, err = B64ToCommandHex(" " + unpadded[:4] + "\n" + unpadded[4:])
	require.NoError(t, err)
	assert.Equal(t, "d00783f0010155aa", got)

	_, err = B64ToCommandHex(base64.StdEncoding.EncodeToString([]byte{0x0D}))
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = B64ToCommandHex(base64.StdEncoding.EncodeToString([]byte{0x0D, 0x20, 0x00}))
	assert.ErrorIs(t, err, ErrBadLength)

	_, err = B64ToCommandHex("!!!")
	assert.Error(t, err)
}

func TestBit(t *testing.T) {
	set, err := Bit(0b1000_0001, 0)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = Bit(0b1000_0001, 7)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = Bit(0b1000_0001, 3)
	require.NoError(t, err)
	assert.False(t, set)

	_, err = Bit(0, 8)
	assert.ErrorIs(t, err, ErrBitIndex)
	_, err = Bit(0, -1)
	assert.ErrorIs(t, err, ErrBitIndex)
}

func TestByteAt(t *testing.T) {
	b, ok := ByteAt([]byte{1, 2, 3}, 2)
	assert.True(t, ok)
	assert.Equal(t, byte(3), b)

	_, ok = ByteAt([]byte{1}, 1)
	assert.False(t, ok)
	_, ok = ByteAt(nil, -1)
	assert.False(t, ok)
}
