// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package command

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam"
	"github.com/ManuGH/cremalink/internal/ecam/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrew_FrameLayout(t *testing.T) {
	frame, err := Brew(0x01, tlv.Params{0x01: 36, 0x1B: 4, 0x02: 5}, TriggerStart)
	require.NoError(t, err)

	assert.Equal(t, Marker, frame[0])
	assert.Equal(t, byte(len(frame)), frame[1])
	assert.Equal(t, OpcodeHi, frame[2])
	assert.Equal(t, OpcodeLo, frame[3])
	assert.Equal(t, byte(0x01), frame[4])
	assert.Equal(t, TriggerStart, frame[5])
	assert.True(t, ecam.CheckCRC(frame))
	assert.Equal(t, "0d0f83f001010100241b040205a6cd", hex.EncodeToString(frame))
}

func TestBrew_EmptyParams(t *testing.T) {
	frame, err := Brew(0x01, nil, TriggerStart)
	require.NoError(t, err)
	assert.Len(t, frame, 8)
	assert.Equal(t, "0d0883f00101fbf6", hex.EncodeToString(frame))
}

func TestBrew_TooLong(t *testing.T) {
	p := tlv.Params{}
	for tag := 0x40; tag < 0xC0; tag++ {
		p[byte(tag)] = 1
	}
	_, err := Brew(0x01, p, TriggerStart)
	assert.ErrorIs(t, err, ErrFrameTooLong)
}

func TestStop(t *testing.T) {
	assert.Equal(t, "0d0d83f010020f00fa1b016635", StopHex(DefaultStopBeverage))

	frame := Stop(0x01)
	assert.Equal(t, byte(0x01), frame[4])
	assert.Equal(t, TriggerStop, frame[5])
	assert.True(t, ecam.CheckCRC(frame))
}

func TestParse_RoundTrip(t *testing.T) {
	params := tlv.Params{0x01: 200, 0x09: 150, 0x0F: 100, 0x1B: 3, 0x02: 5}
	s, err := BrewHex(0x06, params, TriggerStart)
	require.NoError(t, err)

	d, err := ParseHex(s)
	require.NoError(t, err)
	assert.Equal(t, byte(0x06), d.Beverage)
	assert.Equal(t, TriggerStart, d.Trigger)
	assert.Equal(t, params, d.Params)
	assert.True(t, d.CRCOK)

	rebuilt, err := BrewHex(d.Beverage, d.Params, d.Trigger)
	require.NoError(t, err)
	assert.Equal(t, s, rebuilt)
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte{0x0D, 0x02})
	assert.ErrorIs(t, err, ecam.ErrShortFrame)

	_, err = ParseHex("d00883f00101fbf6")
	assert.Error(t, err)

	_, err = ParseHex("zz")
	assert.Error(t, err)
}

func TestToDatapoint(t *testing.T) {
	frame := Stop(DefaultStopBeverage)
	now := time.Unix(0x65000001, 0)

	dp := ToDatapoint(frame, now)
	raw, err := ecam.DecodeB64(dp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x65, 0x00, 0x00, 0x01}, raw[len(raw)-4:])
	assert.Equal(t, frame, raw[:len(raw)-4])

	viaHex, err := HexToDatapoint(hex.EncodeToString(frame), now)
	require.NoError(t, err)
	assert.Equal(t, dp, viaHex)

	_, err = HexToDatapoint("0d", now)
	assert.ErrorIs(t, err, ecam.ErrShortFrame)
}

func TestFromDatapoint_RoundTrip(t *testing.T) {
	now := time.Unix(0x65000001, 0)
	brew, err := Brew(0x01, tlv.Params{0x01: 36, 0x1B: 4, 0x02: 5}, TriggerStart)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame []byte
		want  string
	}{
		{"stop", Stop(DefaultStopBeverage), "0d0d83f010020f00fa1b016635"},
		{"brew", brew, "0d0f83f001010100241b040205a6cd"},
		{"brew without params", mustBrew(t, 0x01, nil), "0d0883f00101fbf6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, ts, err := FromDatapoint(ToDatapoint(tt.frame, now))
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(frame))
			assert.True(t, ts.Equal(now))
		})
	}
}

func TestFromDatapoint_Rejects(t *testing.T) {
	now := time.Unix(0x65000001, 0)

	_, _, err := FromDatapoint("!!!")
	assert.ErrorIs(t, err, ErrBadDatapoint)

	_, _, err = FromDatapoint(ToDatapoint([]byte{0x0D, 0x04}, now))
	assert.ErrorIs(t, err, ecam.ErrShortFrame)

	corrupt := Stop(DefaultStopBeverage)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, _, err = FromDatapoint(ToDatapoint(corrupt, now))
	assert.ErrorIs(t, err, ErrBadDatapoint)

	device, _ := hex.DecodeString("0d0c83f010020f00fa1b016635")
	_, _, err = FromDatapoint(ToDatapoint(device, now))
	assert.ErrorIs(t, err, ErrBadDatapoint)
}

func mustBrew(t *testing.T, bev byte, params tlv.Params) []byte {
	t.Helper()
	frame, err := Brew(bev, params, TriggerStart)
	require.NoError(t, err)
	return frame
}
