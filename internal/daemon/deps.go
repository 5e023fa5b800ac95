// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	Logger zerolog.Logger

	// Server is the admin listener configuration.
	Server config.ServerConfig

	// Handler serves the admin API.
	Handler http.Handler
}

// Validate checks that the dependencies are usable.
func (d *Deps) Validate() error {
	if d.Handler == nil {
		return ErrMissingHandler
	}
	return nil
}
