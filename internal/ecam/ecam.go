// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ecam holds the low-level helpers shared by the ECAM frame codecs:
// the CRC-16 checksum, base64 frame unwrapping and bit access.
package ecam

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	crcPoly = 0x1021
	crcInit = 0x1D0F
)

var (
	// ErrShortFrame is returned when a frame is too short to carry its header.
	ErrShortFrame = errors.New("ecam: short frame")
	// ErrBadLength is returned when a frame's length byte overruns the buffer.
	ErrBadLength = errors.New("ecam: length byte exceeds frame")
	// ErrBitIndex is returned for bit indexes outside 0..7.
	ErrBitIndex = errors.New("ecam: bit index must be between 0 and 7")
)

// CRC16 computes the CRC-16/CCITT checksum used by ECAM frames
// (poly 0x1021, init 0x1D0F) and returns it big-endian.
func CRC16(data []byte) [2]byte {
	crc := uint16(crcInit)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return [2]byte{byte(crc >> 8), byte(crc)}
}

// AppendCRC returns frame with its checksum appended.
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	out := make([]byte, 0, len(frame)+2)
	out = append(out, frame...)
	return append(out, crc[0], crc[1])
}

// CheckCRC reports whether the last two bytes of frame are the checksum of the rest.
func CheckCRC(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	crc := CRC16(frame[:len(frame)-2])
	return crc[0] == frame[len(frame)-2] && crc[1] == frame[len(frame)-1]
}

// DecodeB64 decodes standard base64, tolerating embedded whitespace and missing padding.
func DecodeB64(s string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(s), "")
	if rem := len(cleaned) % 4; rem != 0 {
		cleaned += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(cleaned)
}

// B64ToCommandHex unwraps a device-sent datapoint into the hex of the frame it
// carries. Device frames count their length byte as total minus one, so the
// frame is raw[:raw[1]+1] and anything after it is dropped.
func B64ToCommandHex(b64 string) (string, error) {
	raw, err := DecodeB64(b64)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) < 2 {
		return "", ErrShortFrame
	}
	end := int(raw[1]) + 1
	if end > len(raw) {
		return "", fmt.Errorf("%w: need %d bytes, have %d", ErrBadLength, end, len(raw))
	}
	return hex.EncodeToString(raw[:end]), nil
}

// Bit reports whether bit idx of b is set.
func Bit(b byte, idx int) (bool, error) {
	if idx < 0 || idx > 7 {
		return false, ErrBitIndex
	}
	return b&(1<<uint(idx)) != 0, nil
}

// ByteAt returns data[idx] when idx is in range.
func ByteAt(data []byte, idx int) (byte, bool) {
	if idx < 0 || idx >= len(data) {
		return 0, false
	}
	return data[idx], true
}
