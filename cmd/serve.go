package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"secondhand-aggregator/server"
	"secondhand-aggregator/utils"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API",
	Long:  `Serve GET /api/search and the cache, sources, health and metrics routes.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.ListenAddr, _ = cmd.Flags().GetString("listen")
		}
		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp(ctx, cfg)
		defer a.Close()
		a.cache.StartSweeper(ctx, cfg.CacheSweepInterval)

		options := []server.Option{
			server.WithMetrics(a.metrics),
			server.WithAllowedOrigins(cfg.CORSOrigins),
		}
		if a.mirror != nil {
			options = append(options, server.WithMirror(a.mirror))
		}

		utils.Section("Secondhand aggregator")
		utils.Info("Sources %v | cache TTL %v | listen %s", a.registry.IDs(), cfg.CacheTTL, cfg.ListenAddr)
		return server.New(a.orchestrator(true), options...).Run(ctx, cfg.ListenAddr)
	},
}

func init() {
	serveCMD.Flags().String("listen", ":3000", "address to listen on, overrides LISTEN_ADDR")
	rootCMD.AddCommand(serveCMD)
}
