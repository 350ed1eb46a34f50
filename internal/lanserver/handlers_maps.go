// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"errors"
	"net/http"

	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/go-chi/chi/v5"
)

// MapCatalog is the device-map registry as seen by the control API.
type MapCatalog interface {
	Available() []string
	Load(modelID string) (*devicemap.Map, error)
}

type mapResponse struct {
	Model           string            `json:"model"`
	Source          string            `json:"source"`
	DeviceType      string            `json:"device_type,omitempty"`
	MonitorProperty string            `json:"monitor_property"`
	Commands        []string          `json:"commands"`
	PropertyMap     map[string]string `json:"property_map"`
}

func (s *Server) handleListMaps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":     s.maps.Available(),
		"oem_models": devicemap.OEMModels(),
	})
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	m, err := s.maps.Load(chi.URLParam(r, "model"))
	switch {
	case errors.Is(err, devicemap.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mapResponse{
		Model:           m.Model,
		Source:          m.Source,
		DeviceType:      m.DeviceType,
		MonitorProperty: m.MonitorProperty(),
		Commands:        m.CommandNames(),
		PropertyMap:     m.PropertyMap,
	})
}
