package main

import (
	"fmt"

	"github.com/alfredjeanlab/paywatch/internal/config"
	"github.com/alfredjeanlab/paywatch/internal/store"
	"github.com/alfredjeanlab/paywatch/internal/store/postgres"
	"github.com/alfredjeanlab/paywatch/internal/store/sqlite"
)

// openStore opens the store backend selected by cfg.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
