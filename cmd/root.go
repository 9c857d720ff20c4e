package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/killallgit/dataset-importer/pkg/config"
	"github.com/killallgit/dataset-importer/pkg/logging"
)

var (
	configPath string
	appConfig  *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dataset-importer",
	Short: "YOLO dataset importer",
	Long: `YOLO Dataset Importer - ingests YOLO object-detection datasets from object storage

Clients upload a dataset archive straight to object storage with short-lived
credentials. The importer extracts it, parses data.yaml and the label files,
validates and normalizes every annotation, and records the dataset so that
viewers can browse annotated images through signed URLs.

Features:
  • Upload handoff with STS credentials or signed upload links
  • Zip and tar archive ingestion with per-line diagnostics
  • Background worker pool with crash recovery
  • Capped image listings with time-limited signed URLs`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig reads the configuration on first use. Commands that need no
// configuration, like version, never call it.
func loadConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}

	if err := config.Load(configPath); err != nil {
		return nil, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

// setupLogging loads the configuration and routes the standard logger
func setupLogging() (*config.Config, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Printf("[DEBUG] Configuration loaded from %s (environment %s)", configPath, cfg.Environment)
	return cfg, closeLog, nil
}
