/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/visionfs/pkg/api"
	"github.com/ssargent/visionfs/pkg/config"
)

// autoAPIKey asks serve to generate a key for this run only
const autoAPIKey = "auto"

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the visionfs REST API server. Files are browsed read-only
under /api/v1 and Prometheus metrics are served on /metrics.

An API key of "auto" generates a key for this run and logs it. Pass
--api-key="" to disable authentication.

Examples:
  visionfs serve
  visionfs serve --port 9000 --bind 0.0.0.0 --api-key mysecretkey`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := container.GetConfig()
		serverConfig, err := serverConfigFor(cmd, cfg)
		if err != nil {
			return err
		}

		fs, err := container.FileSystem()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("🚀 Starting visionfs server on %s:%d\n", serverConfig.Bind, serverConfig.Port)
		cmd.Printf("📁 XFD directory: %s\n", cfg.XfdDirectory)

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(ctx, fs, serverConfig)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
	serveCmd.Flags().String("api-key", "", "API key for authentication (overrides the config)")
}

// serverConfigFor merges the config file with serve's flags
func serverConfigFor(cmd *cobra.Command, cfg *config.Config) (api.ServerConfig, error) {
	sc := api.ServerConfig{Port: cfg.Server.Port, Bind: cfg.Server.Bind, APIKey: cfg.Server.APIKey}

	flags := cmd.Flags()
	if flags.Changed("port") {
		sc.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("bind") {
		sc.Bind, _ = flags.GetString("bind")
	}
	if flags.Changed("api-key") {
		sc.APIKey, _ = flags.GetString("api-key")
	}

	if sc.APIKey == autoAPIKey {
		key, err := config.GenerateSecureKey(32)
		if err != nil {
			return sc, err
		}
		sc.APIKey = key
		container.GetLogger().Info("generated API key for this run", "api_key", key)
	}
	if sc.APIKey == "" {
		container.GetLogger().Warn("API key authentication disabled")
	}
	return sc, nil
}
