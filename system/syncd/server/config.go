package server

import (
	"log/slog"
)

// Spec holds the runtime specification for the syncd server.
// Config contains the serializable settings loaded from a file.
type Spec struct {
	Config *Config
	Log    *slog.Logger
}
