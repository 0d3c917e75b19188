package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"secondhand-aggregator/config"
	"secondhand-aggregator/utils"
)

var rootCMD = &cobra.Command{
	Use:           "secondhand",
	Short:         "secondhand listing aggregator",
	Long:          `Searches ss.com, andelemandele.lv and osta.ee at once and returns one price-sorted, paginated list.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCMD.PersistentFlags().String("log-level", "", "`debug/info/warn/error`, overrides LOG_LEVEL")
	rootCMD.PersistentFlags().Bool("headless", true, "run Chrome headless, overrides HEADLESS")
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("headless") {
		if cfg.Headless, err = flags.GetBool("headless"); err != nil {
			return nil, err
		}
	}

	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCMD.Execute()
	if err != nil {
		utils.Error("%v", err)
	}
	utils.Sync()
	if err != nil {
		os.Exit(1)
	}
}
