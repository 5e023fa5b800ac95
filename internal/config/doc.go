// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration.
//
// Precedence is defaults, then the YAML file, then CUEPOINT_* environment
// variables. The merged result is validated before use. Holder keeps the
// current value and reloads it when the file changes.
package config
