// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lancrypto implements the session crypto of the Ayla LAN protocol:
// key derivation from the LAN key and the exchanged randoms, AES-CBC with
// zero padding and IV chaining, and HMAC-SHA256 signing.
package lancrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const ivLen = aes.BlockSize

var (
	// ErrEmptyKey is returned when no LAN key is configured.
	ErrEmptyKey = errors.New("lancrypto: empty LAN key")
	// ErrCiphertext is returned for ciphertext that is not block aligned.
	ErrCiphertext = errors.New("lancrypto: ciphertext is not a whole number of blocks")
	// ErrInvalidIV is returned for an IV that is not one AES block.
	ErrInvalidIV = errors.New("lancrypto: IV must be 16 bytes")
	// ErrInvalidPayload is returned when an enc or sign field is not base64.
	ErrInvalidPayload = errors.New("lancrypto: payload is not valid base64")
)

// Keys is the key material of one session.
type Keys struct {
	AppSignKey   []byte
	AppCryptoKey []byte
	AppIVSeed    []byte
	DevCryptoKey []byte
	DevIVSeed    []byte
}

// HMAC returns HMAC-SHA256(key, data).
func HMAC(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func derive(key []byte, parts ...string) []byte {
	var c []byte
	for _, p := range parts {
		c = append(c, p...)
	}
	inner := HMAC(key, c)
	return HMAC(key, append(inner, c...))
}

// DeriveKeys computes the session keys. random1/time1 come from the device,
// random2/time2 from the server.
func DeriveKeys(lanKey, random1, random2, time1, time2 string) (Keys, error) {
	if lanKey == "" {
		return Keys{}, ErrEmptyKey
	}
	k := []byte(lanKey)
	return Keys{
		AppSignKey:   derive(k, random1, random2, time1, time2, "0"),
		AppCryptoKey: derive(k, random1, random2, time1, time2, "1"),
		AppIVSeed:    derive(k, random1, random2, time1, time2, "2")[:ivLen],
		DevCryptoKey: derive(k, random2, random1, time2, time1, "1"),
		DevIVSeed:    derive(k, random2, random1, time2, time1, "2")[:ivLen],
	}, nil
}

// PadZero appends NUL bytes up to the next block boundary. A block-aligned
// input still gains a full block.
func PadZero(data []byte) []byte {
	n := ivLen - len(data)%ivLen
	return append(append([]byte(nil), data...), make([]byte, n)...)
}

// UnpadZero cuts at the first NUL byte.
func UnpadZero(data []byte) []byte {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return data[:i]
	}
	return data
}

// Encrypt encrypts plaintext and returns the base64 ciphertext together with
// the IV for the next message (the last ciphertext block).
func Encrypt(plaintext string, key, iv []byte) (string, []byte, error) {
	if len(iv) != ivLen {
		return "", nil, ErrInvalidIV
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", nil, fmt.Errorf("lancrypto: %w", err)
	}
	raw := PadZero([]byte(plaintext))
	out := make([]byte, len(raw))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, raw)
	return base64.StdEncoding.EncodeToString(out), nextIV(out), nil
}

// Decrypt reverses Encrypt and returns the unpadded plaintext and the next IV.
func Decrypt(enc string, key, iv []byte) ([]byte, []byte, error) {
	if len(iv) != ivLen {
		return nil, nil, ErrInvalidIV
	}
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) == 0 || len(data)%ivLen != 0 {
		return nil, nil, ErrCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("lancrypto: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return UnpadZero(out), nextIV(data), nil
}

// RotateIV returns the last ciphertext block of a base64 message.
func RotateIV(enc string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) < ivLen {
		return nil, ErrCiphertext
	}
	return nextIV(data), nil
}

func nextIV(ct []byte) []byte {
	return append([]byte(nil), ct[len(ct)-ivLen:]...)
}

// Sign returns base64(HMAC-SHA256(key, payload)).
func Sign(payload string, key []byte) string {
	return base64.StdEncoding.EncodeToString(HMAC(key, []byte(payload)))
}

// Verify checks a signature produced by Sign.
func Verify(payload, sig string, key []byte) bool {
	want, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(want, HMAC(key, []byte(payload)))
}

// Envelope is the signed body of a LAN command poll.
type Envelope struct {
	SeqNo string `json:"seq_no"`
	Data  any    `json:"data"`
}

// EmptyPayload is the envelope sent when no command is queued.
func EmptyPayload(seq int) string {
	return `{"seq_no":"` + strconv.Itoa(seq) + `","data":{}}`
}

// WrapPayload embeds a queued command document into an envelope.
func WrapPayload(seq int, data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return EmptyPayload(seq), nil
	}
	out, err := json.Marshal(Envelope{SeqNo: strconv.Itoa(seq), Data: data})
	if err != nil {
		return "", fmt.Errorf("lancrypto: wrap payload: %w", err)
	}
	return string(out), nil
}
