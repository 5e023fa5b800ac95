// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store composes a ports.Store backend with retry and metrics
// decorators. Backends live in memstore and sqlitestore.
package store
