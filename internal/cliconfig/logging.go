package cliconfig

import (
	"io"

	"github.com/bft-labs/possync/pkg/log"
)

// Logger builds the CLI logger selected by cfg, writing to out.
func Logger(cfg Config, out io.Writer) (log.Logger, error) {
	return log.New(log.Options{
		Backend: cfg.LogBackend,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Out:     out,
	})
}
