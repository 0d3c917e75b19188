package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"secondhand-aggregator/storage"
	"secondhand-aggregator/utils"
)

var pruneCMD = &cobra.Command{
	Use:   "prune",
	Short: "delete archived listings not seen recently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		age, err := cmd.Flags().GetDuration("older-than")
		if err != nil {
			return err
		}
		dsn := cfg.DSN()
		if dsn == "" {
			return errors.New("no database configured, set DATABASE_URL or DB_HOST")
		}

		ctx := context.Background()
		w, err := storage.NewPostgresWriter(ctx, dsn)
		if err != nil {
			return err
		}
		defer w.Close()

		n, err := w.PruneOlderThan(ctx, age)
		if err != nil {
			return err
		}
		utils.Success("Pruned %d listings last seen over %v ago", n, age)
		return nil
	},
}

func init() {
	pruneCMD.Flags().Duration("older-than", 30*24*time.Hour, "remove listings last seen before this age")
	rootCMD.AddCommand(pruneCMD)
}
