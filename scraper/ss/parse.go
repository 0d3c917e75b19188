package ss

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/PuerkitoBio/goquery"

	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
)

// Result rows look like <tr id="tr_53421234"> with the listing link in a.am
// and the price in the last td.msga2-o cell. Banner rows use id="tr_bnr_...".
func parseSearchPage(html, base string) (scraper.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scraper.PageResult{}, fmt.Errorf("parse search page: %w", err)
	}

	var res scraper.PageResult
	doc.Find(`tr[id^="tr_"]`).Each(func(_ int, row *goquery.Selection) {
		id, _ := row.Attr("id")
		if strings.HasPrefix(id, "tr_bnr") {
			return
		}

		link := row.Find("a.am").First()
		href, ok := link.Attr("href")
		if !ok || !strings.Contains(href, "/msg/") {
			return
		}

		priceText := scraper.CollapseSpace(row.Find("td.msga2-o").Last().Text())
		if priceText == "" {
			priceText = scraper.CollapseSpace(row.Find(".amopt").Last().Text())
		}
		if priceText == "" {
			return
		}

		img, _ := row.Find("img.isfoto").First().Attr("src")

		res.Stubs = append(res.Stubs, models.ListingStub{
			URL:        scraper.Absolute(base, href, true),
			PriceText:  priceText,
			PriceValue: scraper.ParsePrice(priceText),
			ImageURL:   scraper.Absolute(base, img, false),
			SourceID:   SourceID,
			Title:      scraper.CollapseSpace(link.Text()),
		})
	})
	return res, nil
}

var footerDate = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4}) (\d{2}:\d{2})`)

var riga = loadLocation("Europe/Riga")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDetailPage(html, pageURL string) (*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}
	sel := doc.Selection

	if sel.Find("#msg_div_msg").Length() == 0 {
		return nil, scraper.ErrListingGone
	}

	title := scraper.First(sel, 300,
		scraper.Text("h1"),
		scraper.Meta("og:title"),
		scraper.Text("h2.headtitle"),
		scraper.Text("title"),
	)
	title = scraper.CleanTitle(title, 100)
	if title == "" {
		return nil, fmt.Errorf("%s: no title", pageURL)
	}

	priceText := scraper.First(sel, 60,
		scraper.Text(".ads_price"),
		scraper.Text("#tdo_8"),
		scraper.Labeled("td.ads_opt_name", "td.ads_opt", "Price", "Cena", "Цена"),
	)

	description := descriptionText(sel.Find("#msg_div_msg").First())

	images := scraper.Images(sel, pageURL, ".pic_dv_thumbnail a", 5, "href")
	if len(images) == 0 {
		images = scraper.Images(sel, pageURL, "img.pic_thumbnail, img.isfoto", 5)
	}
	if og := scraper.Meta("og:image")(sel); len(images) == 0 && og != "" {
		images = []string{scraper.Absolute(pageURL, og, false)}
	}

	raw := &models.RawListing{
		URL:           pageURL,
		Title:         title,
		PriceText:     priceText,
		Currency:      "EUR",
		Description:   description,
		Images:        images,
		ConditionText: scraper.MapCondition(scraper.Labeled("td.ads_opt_name", "td.ads_opt", "Condition", "Stāvoklis", "Состояние")(sel)),
		LocationText: scraper.First(sel, 120,
			scraper.Labeled("td.ads_contacts_name", "td.ads_contacts", "Place", "Vieta", "Место"),
			scraper.Labeled("td.ads_opt_name", "td.ads_opt", "City", "Pilsēta", "Город"),
			scraper.Text("#tdo_20"),
		),
	}
	raw.DescriptionPreview = scraper.DescriptionPreview(description)

	if m := footerDate.FindStringSubmatch(sel.Find("td.msg_footer").Text()); m != nil {
		raw.PostedAtText = m[1] + " " + m[2]
		if ts, err := time.ParseInLocation("02.01.2006 15:04", raw.PostedAtText, riga); err == nil {
			raw.PostedAtISO = ts.UTC().Format(time.RFC3339)
		}
	}

	hasDesc := description != ""
	hasImage := len(images) > 0
	raw.HasDescription = &hasDesc
	raw.HasImage = &hasImage
	return raw, nil
}

// descriptionText reads the free text of the message block, leaving out the
// option tables SS nests inside it.
func descriptionText(msg *goquery.Selection) string {
	msg = msg.Clone()
	msg.Find("table, script, style, .ads_opt_name, .ads_opt").Remove()
	msg.Find("br").ReplaceWithHtml("\n")

	var lines []string
	for _, line := range strings.Split(msg.Text(), "\n") {
		if line = scraper.CollapseSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
