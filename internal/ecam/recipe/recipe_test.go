// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recipe

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/ManuGH/cremalink/internal/ecam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameB64(body ...byte) string {
	frame := append([]byte{0xD0, byte(2 + len(body) + 2)}, body...)
	return base64.StdEncoding.EncodeToString(ecam.AppendCRC(frame))
}

func profileRecipe(profile, bev byte, params ...byte) string {
	return frameB64(append([]byte{0xA6, 0xF0, profile, bev}, params...)...)
}

func defaultRecipe(bev byte) string {
	return frameB64(0xB0, 0xF0, bev, 0x01, 0x00)
}

func TestDecodeB64_Profile(t *testing.T) {
	snap, ok := DecodeB64(profileRecipe(1, 0x01, 0x01, 0x00, 0x24, 0x1B, 0x04, 0x02, 0x05))
	require.True(t, ok)
	assert.Equal(t, FormatProfile, snap.Format)
	assert.Equal(t, 1, snap.Beverage)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, 1, *snap.Profile)
	assert.Equal(t, 36, snap.Params[0x01])
	assert.Equal(t, 4, snap.Params[0x1B])
	assert.Equal(t, 5, snap.Params[0x02])
	assert.Equal(t, 36, snap.NamedParams["coffee_ml"])
	assert.True(t, snap.CRCOK)
}

func TestDecodeB64_Default(t *testing.T) {
	snap, ok := DecodeB64(defaultRecipe(0x01))
	require.True(t, ok)
	assert.Equal(t, FormatDefault, snap.Format)
	assert.Equal(t, 1, snap.Beverage)
	assert.Nil(t, snap.Profile)
	assert.True(t, snap.CRCOK)
}

func TestDecodeB64_Rejects(t *testing.T) {
	for name, in := range map[string]string{
		"invalid base64": "not-valid-base64!!!",
		"too short":      base64.StdEncoding.EncodeToString([]byte{0xD0, 0x01}),
		"wrong marker":   base64.StdEncoding.EncodeToString([]byte{0x0D, 0x06, 0xA6, 0xF0, 0x01, 0x01, 0x00, 0x00}),
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := DecodeB64(in)
			assert.False(t, ok)
		})
	}
}

func TestDecodeB64_Unknown(t *testing.T) {
	snap, ok := DecodeB64(frameB64(0xFF, 0xFF, 0x01))
	require.True(t, ok)
	assert.Equal(t, FormatUnknown, snap.Format)
	assert.Equal(t, 0, snap.Beverage)
	assert.False(t, snap.CRCOK)
}

func TestDecodeB64_CorruptedCRC(t *testing.T) {
	raw, _ := base64.StdEncoding.DecodeString(profileRecipe(1, 0x01, 0x01, 0x00, 0x24))
	raw[len(raw)-1] ^= 0xFF
	snap, ok := DecodeB64(base64.StdEncoding.EncodeToString(raw))
	require.True(t, ok)
	assert.False(t, snap.CRCOK)
	assert.Equal(t, 36, snap.Params[0x01])
}

func TestDecodeContainer(t *testing.T) {
	doc, _ := json.Marshal(map[string]string{"rec2": defaultRecipe(0x02), "rec1": defaultRecipe(0x01)})
	got := DecodeContainer(string(doc))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Beverage)
	assert.Equal(t, 2, got[1].Beverage)

	assert.Empty(t, DecodeContainer("not json at all"))
	assert.Empty(t, DecodeContainer("[1,2,3]"))

	mixed, _ := json.Marshal(map[string]any{"good": defaultRecipe(0x01), "bad": "not-base64!!!", "num": 42})
	assert.Len(t, DecodeContainer(string(mixed)), 1)
}
