package commands

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"rmi/config"
)

// RunInit writes a default configuration, refusing to overwrite an existing file.
func RunInit(ctx context.Context, cfg *config.Config) error {
	if _, err := os.Stat(cfg.File()); err == nil {
		return fmt.Errorf("config %s already exists", cfg.File())
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	log.Infof("Wrote default config to %s", cfg.File())
	return nil
}
