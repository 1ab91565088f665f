package retailers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"

	"github.com/storewatch/storewatch/pkg/diff"
)

// htmlSource extracts store records from HTML with config-driven CSS
// selectors. Two layouts are supported: a single page where ItemSelector
// matches one node per store, or a sitemap listing one store page per URL.
type htmlSource struct {
	name string
	cfg  Config
}

func (s *htmlSource) Name() string { return s.name }

func (s *htmlSource) Fetch(ctx context.Context) ([]diff.Record, error) {
	client := newClient()
	if s.cfg.SitemapURL != "" {
		return s.fetchSitemap(ctx, client)
	}

	body, err := fetchBody(ctx, client, s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: %w", s.name, err)
	}
	doc, err := parseDoc(body)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: %w", s.name, err)
	}
	if s.cfg.ItemSelector == "" {
		return nil, fmt.Errorf("retailer %s: html page source needs item_selector", s.name)
	}

	var records []diff.Record
	doc.Find(s.cfg.ItemSelector).Each(func(_ int, node *goquery.Selection) {
		records = append(records, s.extractRecord(node))
	})
	return records, nil
}

// fetchSitemap walks a store-locator sitemap: every <loc> is one store
// page, and the page URL doubles as the record's canonical url field, which
// gives these records a natural url: key.
func (s *htmlSource) fetchSitemap(ctx context.Context, client *retryablehttp.Client) ([]diff.Record, error) {
	body, err := fetchBody(ctx, client, s.cfg.SitemapURL)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: sitemap: %w", s.name, err)
	}
	doc, err := parseDoc(body)
	if err != nil {
		return nil, fmt.Errorf("retailer %s: sitemap: %w", s.name, err)
	}

	var locs []string
	doc.Find("loc").Each(func(_ int, sel *goquery.Selection) {
		if loc := strings.TrimSpace(sel.Text()); loc != "" {
			locs = append(locs, loc)
		}
	})

	records := make([]diff.Record, 0, len(locs))
	for _, loc := range locs {
		page, err := fetchBody(ctx, client, loc)
		if err != nil {
			return nil, fmt.Errorf("retailer %s: %s: %w", s.name, loc, err)
		}
		pageDoc, err := parseDoc(page)
		if err != nil {
			return nil, fmt.Errorf("retailer %s: %s: %w", s.name, loc, err)
		}
		rec := s.extractRecord(pageDoc.Selection)
		rec["url"] = loc
		records = append(records, rec)
	}
	return records, nil
}

func (s *htmlSource) extractRecord(node *goquery.Selection) diff.Record {
	rec := make(diff.Record, len(s.cfg.Fields))
	for field, selector := range s.cfg.Fields {
		if text := strings.TrimSpace(node.Find(selector).First().Text()); text != "" {
			rec[field] = text
		}
	}
	return rec
}

// parseDoc parses HTML (or sitemap XML, which the lenient parser accepts)
// into a goquery document.
func parseDoc(body []byte) (*goquery.Document, error) {
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(node), nil
}
