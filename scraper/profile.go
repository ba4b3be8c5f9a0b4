package scraper

import (
	"strings"

	"github.com/gocolly/colly/v2"

	"retailpulse/models"
)

// Profile names the structural selectors for one listing site. Extraction
// and pagination read only the profile, so pointing the scraper at another
// catalog layout is a profile swap rather than a code change.
type Profile struct {
	// ItemSelector matches one listing card per item on the page.
	ItemSelector string

	// Title is read from TitleAttr of TitleSelector, falling back to the
	// element text when the attribute is empty.
	TitleSelector string
	TitleAttr     string

	// LinkSelector's href becomes the listing URL (resolved absolute).
	LinkSelector string

	PriceSelector string

	// Rating is encoded as the second class on RatingSelector
	// (e.g. "star-rating Three").
	RatingSelector string

	AvailabilitySelector         string
	AvailabilityFallbackSelector string

	ImageSelector string

	// NextPageSelector matches the next-page anchor, if any.
	NextPageSelector string
}

// DefaultProfile targets the demo catalog site layout.
func DefaultProfile() Profile {
	return Profile{
		ItemSelector:                 "article.product_pod",
		TitleSelector:                "h3 a",
		TitleAttr:                    "title",
		LinkSelector:                 "h3 a",
		PriceSelector:                "p.price_color",
		RatingSelector:               "p.star-rating",
		AvailabilitySelector:         "p.instock.availability",
		AvailabilityFallbackSelector: "p.availability",
		ImageSelector:                "img",
		NextPageSelector:             "li.next a",
	}
}

// extract builds a Listing from one item element. Missing optional fields
// stay empty; the schema watchdog decides whether a field is gone site-wide.
func (p Profile) extract(e *colly.HTMLElement) *models.Listing {
	title := strings.TrimSpace(e.ChildAttr(p.TitleSelector, p.TitleAttr))
	if title == "" {
		title = strings.TrimSpace(e.ChildText(p.TitleSelector))
	}

	listingURL := ""
	if href := e.ChildAttr(p.LinkSelector, "href"); href != "" {
		listingURL = e.Request.AbsoluteURL(href)
	}

	priceText := strings.TrimSpace(e.ChildText(p.PriceSelector))

	ratingText := ""
	if ratingClass := e.ChildAttr(p.RatingSelector, "class"); ratingClass != "" {
		parts := strings.Fields(ratingClass)
		if len(parts) > 1 {
			ratingText = parts[1]
		}
	}

	availability := strings.TrimSpace(e.ChildText(p.AvailabilitySelector))
	if availability == "" && p.AvailabilityFallbackSelector != "" {
		availability = strings.TrimSpace(e.ChildText(p.AvailabilityFallbackSelector))
	}

	imageURL := ""
	if src := e.ChildAttr(p.ImageSelector, "src"); src != "" {
		imageURL = e.Request.AbsoluteURL(src)
	}

	return &models.Listing{
		Title:        title,
		Price:        priceText,
		RatingText:   ratingText,
		Availability: availability,
		ImageURL:     imageURL,
		URL:          listingURL,
	}
}
