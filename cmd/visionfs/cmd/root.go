/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/visionfs/pkg/config"
	"github.com/ssargent/visionfs/pkg/di"
)

var container *di.Container

// SetContainer injects the dependency container used by every command
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "visionfs",
	Short: "visionfs - typed access to Vision indexed files",
	Long: `visionfs reads and writes Vision indexed files through their XFD
record definitions. Records are decoded into typed fields and can be
browsed by any key from the command line, an interactive shell or a
REST API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return errors.New("dependency container not initialized")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		container.SetConfig(cfg)
		container.SetLogger(di.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return container.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		if container != nil {
			_ = container.Close()
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Directory for new data files")
	rootCmd.PersistentFlags().String("file-prefix", "", "Search path for data files, separated by the OS list separator")
	rootCmd.PersistentFlags().String("xfd-dir", "", "Directory holding .xfd definitions")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return path
}

// loadConfig reads the config file when there is one, then applies the
// environment and finally any flag given on the command line
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := configPath(cmd); config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
		if !flags.Changed("file-prefix") {
			cfg.FilePrefix = cfg.DataDir
		}
	}
	if flags.Changed("file-prefix") {
		cfg.FilePrefix, _ = flags.GetString("file-prefix")
	}
	if flags.Changed("xfd-dir") {
		cfg.XfdDirectory, _ = flags.GetString("xfd-dir")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
