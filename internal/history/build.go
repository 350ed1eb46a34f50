// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"

	"github.com/ManuGH/cremalink/internal/config"
)

// FromConfig opens every configured sink. With nothing configured it
// returns Nop.
func FromConfig(ctx context.Context, cfg config.HistoryConfig) (Sink, error) {
	fan := NewFanout()
	if cfg.SQLitePath != "" {
		store, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		fan.Add("sqlite", store)
	}
	if cfg.InfluxURL != "" {
		fan.Add("influx", NewInfluxWriter(InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}))
	}
	if fan.Len() == 0 {
		return Nop(), nil
	}
	return fan, nil
}
