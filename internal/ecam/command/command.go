// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package command builds ECAM brew and stop frames:
//
//	0D <len> 83 F0 <bev> <trigger> <tlv...> <crc16>
//
// where len is the total frame length including the checksum.
package command

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam"
	"github.com/ManuGH/cremalink/internal/ecam/tlv"
)

const (
	Marker   byte = 0x0D
	OpcodeHi byte = 0x83
	OpcodeLo byte = 0xF0

	TriggerStart byte = 0x01
	TriggerStop  byte = 0x02

	// DefaultStopBeverage is the beverage id used by the universal stop frame.
	DefaultStopBeverage byte = 0x10

	headerLen = 6
	maxFrame  = 0xFF
)

var (
	// ErrFrameTooLong is returned when the parameters do not fit the length byte.
	ErrFrameTooLong = errors.New("command: frame exceeds 255 bytes")
	// ErrBadDatapoint is returned when a datapoint does not carry a valid brew frame.
	ErrBadDatapoint = errors.New("command: invalid datapoint")
)

// Brew builds a brew frame for beverage bev.
func Brew(bev byte, params tlv.Params, trigger byte) ([]byte, error) {
	body := tlv.Encode(params)
	total := headerLen + len(body) + 2
	if total > maxFrame {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLong, total)
	}
	frame := make([]byte, 0, total)
	frame = append(frame, Marker, byte(total), OpcodeHi, OpcodeLo, bev, trigger)
	frame = append(frame, body...)
	return ecam.AppendCRC(frame), nil
}

// BrewHex is Brew rendered as lowercase hex.
func BrewHex(bev byte, params tlv.Params, trigger byte) (string, error) {
	frame, err := Brew(bev, params, trigger)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(frame), nil
}

// StopParams are the parameters the machine expects on a stop frame.
func StopParams() tlv.Params {
	return tlv.Params{tlv.TagWaterML: 250, tlv.TagTaste: 1}
}

// Stop builds the stop frame for bev.
func Stop(bev byte) []byte {
	frame, _ := Brew(bev, StopParams(), TriggerStop) // fixed params always fit
	return frame
}

// StopHex is Stop rendered as lowercase hex.
func StopHex(bev byte) string {
	return hex.EncodeToString(Stop(bev))
}

// Decoded is a brew frame taken apart.
type Decoded struct {
	Beverage byte
	Trigger  byte
	Params   tlv.Params
	CRCOK    bool
}

// Parse splits a brew frame produced by Brew (or stored in a device map).
func Parse(frame []byte) (Decoded, error) {
	if len(frame) < headerLen+2 {
		return Decoded{}, ecam.ErrShortFrame
	}
	if frame[0] != Marker || frame[2] != OpcodeHi || frame[3] != OpcodeLo {
		return Decoded{}, fmt.Errorf("command: not a brew frame (% x)", frame[:4])
	}
	return Decoded{
		Beverage: frame[4],
		Trigger:  frame[5],
		Params:   tlv.Parse(frame[headerLen : len(frame)-2]),
		CRCOK:    ecam.CheckCRC(frame),
	}, nil
}

// ParseHex decodes a hex frame and parses it.
func ParseHex(s string) (Decoded, error) {
	frame, err := hex.DecodeString(s)
	if err != nil {
		return Decoded{}, fmt.Errorf("command: decode hex: %w", err)
	}
	return Parse(frame)
}

// ToDatapoint wraps a frame for the data_request property: base64 of the
// frame followed by a 4-byte big-endian unix timestamp.
func ToDatapoint(frame []byte, now time.Time) string {
	buf := make([]byte, len(frame)+4)
	copy(buf, frame)
	binary.BigEndian.PutUint32(buf[len(frame):], uint32(now.Unix()))
	return base64.StdEncoding.EncodeToString(buf)
}

// FromDatapoint reverses ToDatapoint: it drops the trailing timestamp and
// returns the frame and the time it was stamped with. The frame's length
// byte and checksum must match.
func FromDatapoint(dp string) ([]byte, time.Time, error) {
	raw, err := ecam.DecodeB64(dp)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: decode base64: %w", ErrBadDatapoint, err)
	}
	if len(raw) < headerLen+2+4 {
		return nil, time.Time{}, ecam.ErrShortFrame
	}
	frame := raw[:len(raw)-4]
	if frame[0] != Marker || int(frame[1]) != len(frame) {
		return nil, time.Time{}, fmt.Errorf("%w: length byte %d for %d-byte frame", ErrBadDatapoint, frame[1], len(frame))
	}
	if !ecam.CheckCRC(frame) {
		return nil, time.Time{}, fmt.Errorf("%w: checksum mismatch", ErrBadDatapoint)
	}
	ts := time.Unix(int64(binary.BigEndian.Uint32(raw[len(frame):])), 0)
	return frame, ts, nil
}

// HexToDatapoint is ToDatapoint for a hex frame.
func HexToDatapoint(frameHex string, now time.Time) (string, error) {
	frame, err := hex.DecodeString(frameHex)
	if err != nil {
		return "", fmt.Errorf("command: decode hex: %w", err)
	}
	if len(frame) < 2 {
		return "", ecam.ErrShortFrame
	}
	return ToDatapoint(frame, now), nil
}
