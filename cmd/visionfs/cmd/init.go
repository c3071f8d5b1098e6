/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/visionfs/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a visionfs configuration file",
	Long: `Create a configuration file with a generated API key. The file is
written to --config, or to the OS-specific default location.

Examples:
  visionfs init
  visionfs init --data-dir ./data --xfd-dir ./xfd
  visionfs init --config ./visionfs.yaml --force --print-key`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		printKey, _ := cmd.Flags().GetBool("print-key")

		path := configPath(cmd)
		cfg, err := initializeConfig(path, container.GetConfig(), force)
		if err != nil {
			return err
		}

		cmd.Printf("✅ Configuration created at %s\n", path)
		cmd.Printf("📁 Data directory: %s\n", cfg.DataDir)
		if printKey {
			cmd.Printf("\n🔑 API Key: %s\n", cfg.Server.APIKey)
			cmd.Printf("⚠️  Store this key securely! It is also saved in %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key to console")
}

// initializeConfig bootstraps a config file at path. Directories and
// logging from base carry over; the API key is always freshly generated.
func initializeConfig(path string, base *config.Config, force bool) (*config.Config, error) {
	if config.ConfigExists(path) && !force {
		return nil, errors.Newf("config file already exists: %s (use --force to overwrite)", path)
	}

	cfg, err := config.BootstrapConfig(path, base.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to bootstrap config")
	}
	cfg.FilePrefix = base.FilePrefix
	cfg.XfdDirectory = base.XfdDirectory
	cfg.LicenseFilePath = base.LicenseFilePath
	cfg.Logging = base.Logging
	if err := config.SaveConfig(cfg, path); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %s", cfg.DataDir)
	}
	return cfg, nil
}
