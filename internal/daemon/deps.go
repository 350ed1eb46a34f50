// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Job is a background loop owned by the manager. Run blocks until ctx ends;
// returning nil on cancellation is expected.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler serves both the machine callbacks and the control API.
	APIHandler http.Handler

	// MetricsHandler is served on MetricsAddr when both are set.
	MetricsHandler http.Handler
	MetricsAddr    string

	// Jobs run alongside the servers and stop before shutdown hooks run.
	Jobs []Job
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
