package mcpserver

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config configures the MCP server from the environment.
type Config struct {
	// WorkbookPath is the JSON document to load on start and save on
	// mutation. Empty means an in-memory workbook.
	WorkbookPath string `env:"UNICEL_WORKBOOK"`
	// WorkbookName names a fresh workbook when no path is given.
	WorkbookName string `env:"UNICEL_WORKBOOK_NAME" envDefault:"workbook"`
	// Autosave writes the document back after every mutating tool call.
	Autosave bool `env:"UNICEL_AUTOSAVE" envDefault:"true"`
}

// ParseEnv reads the configuration from environment variables.
func ParseEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
