package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"secondhand-aggregator/models"
	"secondhand-aggregator/services"
	"secondhand-aggregator/storage"
	"secondhand-aggregator/utils"
)

var searchCMD = &cobra.Command{
	Use:   "search QUERY",
	Short: "run one search and print a market report",
	Long:  `Run one orchestrated search from the terminal, print a price summary and optionally export the page to CSV.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		req, err := searchRequestFromFlags(cmd, strings.Join(args, " "))
		if err != nil {
			return err
		}

		ctx := context.Background()
		a := newApp(ctx, cfg)
		defer a.Close()

		resp, err := a.orchestrator(false).Search(ctx, req)
		if err != nil {
			return err
		}
		for _, e := range resp.Errors {
			utils.Warn("[%s] %s", e.Source, e.Message)
		}
		if services.AllSourcesFailed(resp) {
			return errors.New("all sources failed")
		}

		utils.Info("%d results, page %d/%d, %dms", resp.TotalResults, resp.CurrentPage, resp.TotalPages, resp.TookMs)
		services.PrintReport(os.Stdout, services.GenerateReport(resp.Items))

		if path, _ := cmd.Flags().GetString("csv"); path != "" {
			if err := storage.NewCSVWriter(path).Write(resp.Items); err != nil {
				return err
			}
		}
		if a.archive != nil {
			n, err := a.archive.WriteBatch(ctx, resp.Items)
			if err != nil {
				return err
			}
			utils.Success("Archived %d listings", n)
		}
		return nil
	},
}

func searchRequestFromFlags(cmd *cobra.Command, query string) (models.SearchRequest, error) {
	flags := cmd.Flags()
	req := models.SearchRequest{Query: query}

	var err error
	if req.Sources, err = flags.GetStringSlice("sources"); err != nil {
		return req, err
	}
	if req.Page, err = flags.GetInt("page"); err != nil {
		return req, err
	}
	if req.PerPage, err = flags.GetInt("per-page"); err != nil {
		return req, err
	}
	if req.MaxResults, err = flags.GetInt("max-results"); err != nil {
		return req, err
	}
	sortBy, err := flags.GetString("sort")
	if err != nil {
		return req, err
	}
	req.SortBy = models.SortOrder(sortBy)

	if flags.Changed("min-price") {
		v, err := flags.GetFloat64("min-price")
		if err != nil {
			return req, err
		}
		req.MinPrice = &v
	}
	if flags.Changed("max-price") {
		v, err := flags.GetFloat64("max-price")
		if err != nil {
			return req, err
		}
		req.MaxPrice = &v
	}
	return req, nil
}

func init() {
	searchCMD.Flags().StringSlice("sources", nil, "comma separated source ids, default all")
	searchCMD.Flags().Int("page", 1, "result page")
	searchCMD.Flags().Int("per-page", 0, "results per page, default PER_PAGE")
	searchCMD.Flags().Int("max-results", 0, "scan budget per source, default MAX_RESULTS")
	searchCMD.Flags().Float64("min-price", 0, "lowest price to keep")
	searchCMD.Flags().Float64("max-price", 0, "highest price to keep")
	searchCMD.Flags().String("sort", string(models.SortPriceLow), "`price-low` or `price-high`")
	searchCMD.Flags().String("csv", "", "write the page to this CSV file")
	rootCMD.AddCommand(searchCMD)
}
