// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/ManuGH/cremalink/internal/ecam/command"
)

// DataRequestProperty is the property command frames are written to.
const DataRequestProperty = "data_request"

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type setPropertyBody struct {
	Properties []setPropertyEntry `json:"properties"`
}

type setPropertyEntry struct {
	Property setProperty `json:"property"`
}

type setProperty struct {
	BaseType string `json:"base_type"`
	DSN      string `json:"dsn"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

type getPropertyBody struct {
	Cmds []getPropertyEntry `json:"cmds"`
}

type getPropertyEntry struct {
	Cmd getPropertyCmd `json:"cmd"`
}

type getPropertyCmd struct {
	CmdID    int    `json:"cmd_id"`
	Method   string `json:"method"`
	Resource string `json:"resource"`
	URI      string `json:"uri"`
	Data     string `json:"data"`
}

func setPropertyDoc(dsn, frameHex string, now time.Time) (json.RawMessage, error) {
	value, err := command.HexToDatapoint(frameHex, now)
	if err != nil {
		return nil, err
	}
	return json.Marshal(setPropertyBody{Properties: []setPropertyEntry{{
		Property: setProperty{BaseType: "string", DSN: dsn, Name: DataRequestProperty, Value: value},
	}}})
}

func getPropertyDoc(cmdID int, property string) (json.RawMessage, error) {
	return json.Marshal(getPropertyBody{Cmds: []getPropertyEntry{{
		Cmd: getPropertyCmd{
			CmdID:    cmdID,
			Method:   "GET",
			Resource: "property.json?name=" + property,
			URI:      "/local_lan/property/datapoint.json",
			Data:     "",
		},
	}}})
}

// randomAlphanumeric returns n characters from crypto/rand.
func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphanumerics)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphanumerics[idx.Int64()]
	}
	return string(out), nil
}

var processStart = time.Now()

// monotonicMillis is milliseconds on the monotonic clock since process start.
func monotonicMillis() string {
	return strconv.FormatInt(time.Since(processStart).Milliseconds(), 10)
}

// stringify renders key exchange fields, which the machine may send as
// strings or numbers.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}
