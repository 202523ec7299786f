// Package config holds the settings a tokad process needs to start a
// kernel node, with cobra flag binders shared across every subcommand
// rather than a single command's local variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrappyAI/toka/pkg/log"
)

// Default values for the flags every tokad subcommand shares.
const (
	DefaultBindAddr         = "127.0.0.1:7946"
	DefaultDataDir          = "./tokad-data"
	DefaultNodeID           = "node-1"
	DefaultSecretRotationTTL = 24 * time.Hour
)

// Config is the set of values a tokad process needs to stand up a kernel
// node: Raft identity/address, storage location, and logging.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	LogLevel  log.Level
	LogJSON   bool
}

// BindPersistentFlags registers the global flags every tokad subcommand
// shares.
func BindPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", string(log.InfoLevel), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
}

// BindNodeFlags registers the node-identity/storage flags shared by
// cluster subcommands.
func BindNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("node-id", DefaultNodeID, "Unique node ID")
	cmd.Flags().String("bind-addr", DefaultBindAddr, "Address for Raft communication")
	cmd.Flags().String("data-dir", DefaultDataDir, "Data directory for cluster state")
}

// FromFlags reads a Config out of cmd's persistent and local flags.
func FromFlags(cmd *cobra.Command) (Config, error) {
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return Config{}, fmt.Errorf("config: read log-level: %w", err)
	}
	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return Config{}, fmt.Errorf("config: read log-json: %w", err)
	}

	cfg := Config{
		LogLevel: log.Level(logLevel),
		LogJSON:  logJSON,
	}

	if f := cmd.Flags().Lookup("node-id"); f != nil {
		cfg.NodeID, _ = cmd.Flags().GetString("node-id")
	}
	if f := cmd.Flags().Lookup("bind-addr"); f != nil {
		cfg.BindAddr, _ = cmd.Flags().GetString("bind-addr")
	}
	if f := cmd.Flags().Lookup("data-dir"); f != nil {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}

	return cfg, nil
}

// InitLogging initializes the package-level logger from cfg.
func InitLogging(cfg Config) {
	log.Init(log.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.LogJSON,
	})
}
