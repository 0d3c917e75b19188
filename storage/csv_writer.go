package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"secondhand-aggregator/models"
	"secondhand-aggregator/utils"
)

// CSVWriter exports one page of search results for the CLI.
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

var csvHeader = []string{"source", "title", "price", "price_text", "condition", "location", "posted_at", "url", "image_url", "description_preview"}

// Write saves listings to the CSV file, creating its directory if needed.
func (w *CSVWriter) Write(listings []models.Listing) error {
	if len(listings) == 0 {
		utils.Warn("No listings to write")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	for _, l := range listings {
		price := ""
		if l.PriceValue != nil {
			price = strconv.FormatFloat(*l.PriceValue, 'f', 2, 64)
		}
		if err := writer.Write([]string{
			l.SourceID,
			l.Title,
			price,
			l.PriceText,
			l.ConditionText,
			l.LocationText,
			l.PostedAtText,
			l.URL,
			l.ImageURL,
			l.DescriptionPreview,
		}); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	utils.Success("Saved %d listings → %s", len(listings), w.path)
	return nil
}
