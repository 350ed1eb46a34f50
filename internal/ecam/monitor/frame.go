// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package monitor decodes the ECAM status ("monitor") frame that the machine
// publishes on its monitor property, and evaluates model-specific profiles
// (flags, enums, predicates) against it.
package monitor

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ManuGH/cremalink/internal/ecam"
)

// contentLen is the size of the V2 monitor content block.
const contentLen = 13

var (
	// ErrTooShort is returned for input shorter than the frame header.
	ErrTooShort = errors.New("raw data is too short to contain a monitor frame")
	// ErrLength is returned when the length byte does not fit the input.
	ErrLength = errors.New("length byte inconsistent with payload")
	// ErrCRC is returned when the frame checksum does not match.
	ErrCRC = errors.New("CRC check failed")
	// ErrPayloadShort is returned when the frame has no request header.
	ErrPayloadShort = errors.New("monitor payload too short")
	// ErrContentLength is returned when the contents are not 13 bytes.
	ErrContentLength = errors.New("monitor contents expected to be 13 bytes for V2 frames")
)

// Frame is a decoded V2 monitor frame.
type Frame struct {
	Direction      byte
	RequestID      byte
	AnswerRequired byte
	Accessory      byte
	Switches       []byte
	Alarms         []byte
	Status         byte
	Action         byte
	Progress       byte
	Timestamp      []byte
	Extra          []byte
	Raw            []byte
	RawB64         string
}

// DecodeB64 decodes a base64 monitor value.
func DecodeB64(rawB64 string) (*Frame, error) {
	raw, err := ecam.DecodeB64(rawB64)
	if err != nil {
		return nil, fmt.Errorf("decode monitor base64: %w", err)
	}
	f, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	f.RawB64 = rawB64
	return f, nil
}

// Decode parses raw frame bytes:
//
//	dir len req ans <13 content bytes> crc16 [timestamp(4)] [extra...]
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < 4 {
		return nil, ErrTooShort
	}
	length := int(raw[1])
	if length < 4 || len(raw) < length+1 {
		return nil, ErrLength
	}
	data := raw[2 : length-1]
	if !ecam.CheckCRC(raw[:length+1]) {
		return nil, ErrCRC
	}
	tsEnd := min(length+5, len(raw))
	timestamp := raw[length+1 : tsEnd]
	extra := raw[tsEnd:]

	if len(data) < 2 {
		return nil, ErrPayloadShort
	}
	contents := data[2:]
	if len(contents) != contentLen {
		return nil, fmt.Errorf("%w (got %d)", ErrContentLength, len(contents))
	}

	alarms := make([]byte, 0, 4)
	alarms = append(alarms, contents[3:5]...)
	alarms = append(alarms, contents[8:10]...)

	return &Frame{
		Direction:      raw[0],
		RequestID:      data[0],
		AnswerRequired: data[1],
		Accessory:      contents[0],
		Switches:       append([]byte(nil), contents[1:3]...),
		Alarms:         alarms,
		Status:         contents[5],
		Action:         contents[6],
		Progress:       contents[7],
		Timestamp:      append([]byte(nil), timestamp...),
		Extra:          append([]byte(nil), extra...),
		Raw:            raw,
	}, nil
}

// Fields flattens the frame into the parsed-field map exposed by snapshots.
func (f *Frame) Fields() map[string]any {
	return map[string]any{
		"direction":       int(f.Direction),
		"request_id":      int(f.RequestID),
		"answer_required": int(f.AnswerRequired),
		"accessory":       int(f.Accessory),
		"switches":        ints(f.Switches),
		"alarms":          ints(f.Alarms),
		"status":          int(f.Status),
		"action":          int(f.Action),
		"progress":        int(f.Progress),
		"timestamp":       hex.EncodeToString(f.Timestamp),
		"extra":           hex.EncodeToString(f.Extra),
	}
}

func ints(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
