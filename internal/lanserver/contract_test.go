// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lanserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/store"
)

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		doc, err := openapi3.NewLoader().LoadFromData(OpenAPISpec)
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

// contractCall runs one request against handler and validates both sides
// against the embedded document.
func contractCall(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	newReq := func() *http.Request {
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req
	}

	doc := loadOpenAPIDoc(t)
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err, "openapi router init")

	req := newReq()
	route, pathParams, err := router.FindRoute(req)
	require.NoError(t, err, "openapi route lookup %s %s", method, path)

	reqInput := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
	}
	if body != nil {
		require.NoError(t, openapi3filter.ValidateRequest(context.Background(), reqInput), "openapi request validation")
		reqInput.Request = newReq()
		req = reqInput.Request
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respInput := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: reqInput,
		Status:                 rr.Code,
		Header:                 rr.Header(),
		Options:                &openapi3filter.Options{IncludeResponseStatus: true},
	}
	respInput.SetBodyBytes(rr.Body.Bytes())
	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), respInput),
		"openapi response validation %s %s -> %d: %s", method, path, rr.Code, rr.Body.String())
	return rr
}

func TestContract_ControlAPI(t *testing.T) {
	srv, err := New(testConfig(), Deps{Store: store.NewMemoryStore(), Maps: devicemap.NewRegistry("")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	h := srv.Handler()

	rr := contractCall(t, h, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/get_monitor", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/get_properties", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodPost, "/command", map[string]any{"command": stopHex})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = contractCall(t, h, http.MethodPost, "/configure", map[string]any{
		"dsn": testDSN, "device_ip": "192.168.1.50", "lan_key": testLANKey, "device_scheme": "http",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = contractCall(t, h, http.MethodPost, "/command", map[string]any{"command": stopHex})
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/refresh_monitor", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/properties/d302_monitor", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	srv.State().SeedMonitor("0BIFAAEEAAACBwEqAIAAAADs2mUAAAGr", time.Unix(1700000000, 0))
	rr = contractCall(t, h, http.MethodGet, "/get_monitor", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/logs", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = contractCall(t, h, http.MethodGet, "/maps", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/maps/ECAM450", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = contractCall(t, h, http.MethodGet, "/maps/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = contractCall(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestContract_ConfigureRejected(t *testing.T) {
	srv, err := New(testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	rr := contractCall(t, srv.Handler(), http.MethodPost, "/configure", map[string]any{
		"dsn": testDSN, "device_ip": "https://192.168.1.50/local_reg.json", "lan_key": testLANKey,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestOpenAPIServed(t *testing.T) {
	srv, err := New(testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, OpenAPISpec, body)
}
