// Package normalize extracts the persisted product shape from a raw
// product-detail payload.
package normalize

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Product is the normalized record written to batch files.
type Product struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	URLKey      string   `json:"url_key"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
	// Image is the base_url of the first image, if any.
	Image *string `json:"images"`
}

type rawProduct struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	URLKey      string   `json:"url_key"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Images      []struct {
		BaseURL string `json:"base_url"`
	} `json:"images"`
}

// ProductNormalizer implements the fetch normalizer for product payloads.
type ProductNormalizer struct{}

// Normalize decodes body and returns a Product.
func (ProductNormalizer) Normalize(body []byte) (any, error) {
	return ParseProduct(body)
}

// ParseProduct decodes a product-detail payload.
func ParseProduct(body []byte) (Product, error) {
	var raw rawProduct
	if err := json.Unmarshal(body, &raw); err != nil {
		return Product{}, fmt.Errorf("decode product: %w", err)
	}

	p := Product{
		ID:     raw.ID,
		Name:   raw.Name,
		URLKey: raw.URLKey,
		Price:  raw.Price,
	}

	if raw.Description != nil {
		text, err := StripHTML(*raw.Description)
		if err != nil {
			return Product{}, fmt.Errorf("clean description: %w", err)
		}
		p.Description = text
	}

	if len(raw.Images) > 0 {
		img := raw.Images[0].BaseURL
		p.Image = &img
	}

	return p, nil
}

// StripHTML unescapes entities and returns the visible text of an HTML
// fragment: text nodes trimmed and joined by single spaces.
func StripHTML(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html.UnescapeString(raw)))
	if err != nil {
		return "", err
	}

	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "#comment":
			default:
				walk(c)
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(parts, " "), nil
}
