package cli

import (
	"fmt"

	"github.com/ppiankov/patchpilot/internal/config"
	"github.com/ppiankov/patchpilot/internal/store"
)

// openStore loads settings from --config and opens the configured store.
func openStore() (store.Store, error) {
	cfg, err := config.LoadSettings(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
