package andele

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
)

// perPage is how many cards Andele puts on one catalog page.
const perPage = 48

var pearlCount = regexp.MustCompile(`(?i)(\d+)\s*pērles`)

// parseSearchPage reads product cards from a rendered catalog page. The
// "N PĒRLES" counter, when present, gives the number of pages.
func parseSearchPage(html, base string) (scraper.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scraper.PageResult{}, fmt.Errorf("parse search page: %w", err)
	}

	res := scraper.PageResult{TotalPages: totalPages(doc.Selection)}
	doc.Find("article.product-card").Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a.product-card__link").First()
		href, ok := link.Attr("href")
		if !ok || !strings.Contains(href, "/perle/") {
			return
		}

		priceText := scraper.FirstEuroPrice(card.Find("span.product-card__price").First().Text())
		if !strings.Contains(priceText, "€") {
			return
		}

		title := scraper.First(card, 200,
			scraper.Text(".product-card__title"),
			scraper.Attr("a.product-card__link", "title"),
			scraper.Attr("img", "alt"),
		)

		res.Stubs = append(res.Stubs, models.ListingStub{
			URL:        scraper.Absolute(base, href, true),
			PriceText:  priceText,
			PriceValue: scraper.ParsePrice(priceText),
			ImageURL:   cardImage(card),
			SourceID:   SourceID,
			Title:      title,
		})
	})
	return res, nil
}

func cardImage(card *goquery.Selection) string {
	img := card.Find("img.product-card__image, .product-card__image img").First()
	src, ok := img.Attr("src")
	if !ok || src == "" {
		src, _ = img.Attr("data-src")
	}
	if !strings.Contains(src, "andelemandele.lv") {
		return ""
	}
	src = strings.NewReplacer("/thumbnail/", "/medium/", "/large/", "/medium/").Replace(src)
	return scraper.Absolute("https://www.andelemandele.lv", src, false)
}

func totalPages(doc *goquery.Selection) int {
	text := scraper.First(doc, 0,
		scraper.Text(`figure[data-role="catalog.count"]`),
		scraper.Text(".catalog-count"),
		func(doc *goquery.Selection) string {
			return doc.Find("figure").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return pearlCount.MatchString(s.Text())
			}).First().Text()
		},
	)
	m := pearlCount.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	return (n + perPage - 1) / perPage
}

var postedAt = regexp.MustCompile(`^(.+?\d{1,2}:\d{2})`)

const (
	attrKey   = ".product-attribute-list__key"
	attrValue = ".product-attribute-list__value"
)

func parseDetailPage(html, pageURL string) (*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}
	sel := doc.Selection

	if sel.Find(".error-page, .not-found").Length() > 0 {
		return nil, scraper.ErrListingGone
	}

	title := scraper.First(sel, 300,
		scraper.Text("h1.product-node__title"),
		scraper.Meta("og:title"),
	)
	if suspiciousTitle(title) {
		return nil, fmt.Errorf("%w: suspicious title %q", scraper.ErrListingGone, title)
	}

	description := scraper.First(sel, 0,
		scraper.Text(".product-node__description"),
		scraper.Meta("og:description"),
	)

	images := galleryImages(sel)

	raw := &models.RawListing{
		URL:                pageURL,
		Link:               pageURL,
		Title:              scraper.CleanTitle(title, 150),
		PriceText:          scraper.FirstEuroPrice(scraper.Text(".product-node__price, .product-card__price")(sel)),
		Currency:           "EUR",
		Description:        description,
		DescriptionPreview: scraper.DescriptionPreview(description),
		Images:             images,
		ConditionText:      scraper.MapCondition(scraper.Labeled(attrKey, attrValue, "Stāvoklis", "Condition")(sel)),
		LocationText: scraper.First(sel, 120,
			scraper.Labeled(attrKey, attrValue, "Vieta", "Location"),
			scraper.Text(".seller-info__location, .product-node__location"),
		),
	}
	if len(images) > 0 {
		raw.ImageURL = images[0]
	}

	if date := scraper.Labeled(attrKey, attrValue, "Pievienots", "Posted")(sel); date != "" {
		// The value runs straight into the view counter: "16. decembris, 7:44196".
		if m := postedAt.FindStringSubmatch(date); m != nil {
			date = m[1]
		}
		raw.PostedAtText = date
	}

	hasDesc := description != ""
	hasImage := len(images) > 0
	raw.HasDescription = &hasDesc
	raw.HasImage = &hasImage
	return raw, nil
}

func suspiciousTitle(title string) bool {
	t := strings.ToLower(title)
	return t == "" || strings.Contains(t, "error") || strings.Contains(t, "not found")
}

// galleryImages prefers the large rendition of gallery pictures and falls
// back to og:image unless that is the site logo.
func galleryImages(sel *goquery.Selection) []string {
	large := strings.NewReplacer("/thumbnail/", "/large/", "/medium/", "/large/")

	seen := make(map[string]bool)
	var out []string
	sel.Find(`img[src*="andelemandele.lv/images"]`).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		u := scraper.Absolute("https://www.andelemandele.lv", large.Replace(src), false)
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
		return len(out) < 5
	})

	if len(out) == 0 {
		if og := scraper.Meta("og:image")(sel); og != "" && !strings.Contains(og, "logo") {
			out = append(out, scraper.Absolute("https://www.andelemandele.lv", og, false))
		}
	}
	return out
}
