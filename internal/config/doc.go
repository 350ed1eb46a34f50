// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads cremalink settings with precedence
// ENV > config file (strict YAML) > defaults. A .env file is read first and
// never overrides variables already present in the environment.
//
// The LAN server settings keep their historical unprefixed variable names
// (SERVER_IP, NUDGER_POLL_INTERVAL, ...); everything else uses CREMALINK_*.
package config
