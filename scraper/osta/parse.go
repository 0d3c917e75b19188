package osta

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
)

// Osta has reshuffled its markup more than once; the first selector that
// matches anything is taken as the listing container.
var listingSelectors = []string{
	".listing-item",
	".search-result-item",
	".ad-item",
	"article.listing",
	`[data-testid="listing"]`,
}

func parseSearchPage(html, base string) (scraper.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scraper.PageResult{}, fmt.Errorf("parse search page: %w", err)
	}

	var items *goquery.Selection
	for _, s := range listingSelectors {
		if found := doc.Find(s); found.Length() > 0 {
			items = found
			break
		}
	}

	var res scraper.PageResult
	if items == nil {
		return res, nil
	}

	items.Each(func(_ int, item *goquery.Selection) {
		href := scraper.First(item, 0,
			scraper.Attr(`a[href*="/item/"]`, "href"),
			scraper.Attr(`a[href*="/listing/"]`, "href"),
			scraper.Attr("a.listing-link", "href"),
			scraper.Attr("a", "href"),
		)
		if href == "" {
			return
		}

		priceText := scraper.First(item, 60,
			scraper.Text(".price"),
			scraper.Text(`[class*="price"]`),
			scraper.Text(`[data-testid="price"]`),
			scraper.Text(".listing-price"),
		)
		if priceText == "" {
			return
		}

		img := scraper.First(item, 0, scraper.Attr("img", "src"), scraper.Attr("img", "data-src"))

		res.Stubs = append(res.Stubs, models.ListingStub{
			URL:        scraper.Absolute(base, href, true),
			PriceText:  priceText,
			PriceValue: scraper.ParsePrice(priceText),
			ImageURL:   scraper.Absolute(base, img, false),
			SourceID:   SourceID,
			Title: scraper.First(item, 200,
				scraper.Text(".title"),
				scraper.Text(`[class*="title"]`),
				scraper.Attr("img", "alt"),
			),
		})
	})
	return res, nil
}

// labeled looks a field up in the attribute layouts Osta uses.
func labeled(labels ...string) scraper.Candidate {
	return func(doc *goquery.Selection) string {
		return scraper.First(doc, 200,
			scraper.Labeled("dt", "dd", labels...),
			scraper.Labeled("th", "td", labels...),
			scraper.Labeled(".attribute-label", ".attribute-value", labels...),
		)
	}
}

func parseDetailPage(html, pageURL string) (*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}
	sel := doc.Selection

	if sel.Find(".error-page, .not-found, .item-closed").Length() > 0 {
		return nil, scraper.ErrListingGone
	}

	title := scraper.CleanTitle(scraper.First(sel, 300,
		scraper.Text("h1"),
		scraper.Meta("og:title"),
		scraper.Text("title"),
	), 150)
	if t := strings.ToLower(title); title == "" || strings.Contains(t, "just a moment") || strings.Contains(t, "not found") {
		return nil, fmt.Errorf("%w: suspicious title %q", scraper.ErrListingGone, title)
	}

	description := scraper.First(sel, 0,
		scraper.Text(".item-description"),
		scraper.Text(".description"),
		scraper.Text(`[data-testid="description"]`),
		scraper.Meta("og:description"),
	)

	images := scraper.Images(sel, pageURL, ".gallery img, .item-gallery img, .images img", 5)
	if og := scraper.Meta("og:image")(sel); len(images) == 0 && og != "" {
		images = []string{scraper.Absolute(pageURL, og, false)}
	}

	raw := &models.RawListing{
		URL:   pageURL,
		Title: title,
		PriceText: scraper.First(sel, 60,
			scraper.Text(".item-price"),
			scraper.Text(".price"),
			scraper.Text(`[data-testid="price"]`),
			labeled("Hind", "Price", "Цена"),
		),
		Currency:           "EUR",
		Description:        description,
		DescriptionPreview: scraper.DescriptionPreview(description),
		Images:             images,
		ConditionText:      scraper.MapCondition(labeled("Seisukord", "Seisund", "Condition", "Состояние")(sel)),
		LocationText:       labeled("Asukoht", "Location", "Местоположение")(sel),
		PostedAtText:       labeled("Lisatud", "Added", "Добавлено")(sel),
	}
	if len(images) > 0 {
		raw.ImageURL = images[0]
	}

	hasDesc := description != ""
	hasImage := len(images) > 0
	raw.HasDescription = &hasDesc
	raw.HasImage = &hasImage
	return raw, nil
}
