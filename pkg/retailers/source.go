// Package retailers turns configured retailer sources into record lists the
// change detector can consume. Sources are generic (local JSON files, JSON
// endpoints, selector-driven HTML pages); retailer-specific markup parsing
// and anti-blocking are deliberately out of scope.
package retailers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/storewatch/storewatch/pkg/diff"
)

// Config describes one retailer source, straight from the config file.
type Config struct {
	// Name is the retailer slug used for snapshot and history namespacing.
	// Derived from URL's registrable domain when empty.
	Name string `mapstructure:"name"`
	// Kind selects the loader: "file", "json" or "html".
	Kind string `mapstructure:"kind"`
	// URL is the endpoint for json/html sources.
	URL string `mapstructure:"url"`
	// Path is the local snapshot file for file sources.
	Path string `mapstructure:"path"`
	// RecordsPath is the gjson path to the record array inside a JSON
	// response (e.g. "response.locations"). Empty means the body itself
	// is the array.
	RecordsPath string `mapstructure:"records_path"`
	// Fields maps schema field names to gjson subpaths (json sources) or
	// CSS selectors (html sources). Empty for json sources means records
	// are taken as-is.
	Fields map[string]string `mapstructure:"fields"`
	// ItemSelector matches one store node per record in an HTML page.
	ItemSelector string `mapstructure:"item_selector"`
	// SitemapURL, when set for html sources, lists store page URLs in a
	// sitemap; each page yields one record with its url field set.
	SitemapURL string `mapstructure:"sitemap_url"`
}

// Source produces one retailer's current snapshot.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]diff.Record, error)
}

// New builds a Source from config.
func New(cfg Config) (Source, error) {
	name := cfg.Name
	if name == "" {
		name = Slug(cfg.URL)
	}
	if name == "" {
		return nil, fmt.Errorf("retailer has no name and no usable url")
	}
	switch cfg.Kind {
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("retailer %s: file source needs path", name)
		}
		return &fileSource{name: name, path: cfg.Path}, nil
	case "json":
		if cfg.URL == "" {
			return nil, fmt.Errorf("retailer %s: json source needs url", name)
		}
		return &jsonSource{name: name, cfg: cfg}, nil
	case "html":
		if cfg.URL == "" && cfg.SitemapURL == "" {
			return nil, fmt.Errorf("retailer %s: html source needs url or sitemap_url", name)
		}
		if len(cfg.Fields) == 0 {
			return nil, fmt.Errorf("retailer %s: html source needs field selectors", name)
		}
		return &htmlSource{name: name, cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("retailer %s: unknown source kind %q", name, cfg.Kind)
	}
}

// Slug derives a retailer identifier from its website URL: the registrable
// domain with dots replaced, e.g. "https://stores.example.co.uk/sitemap.xml"
// -> "example-co-uk". Returns "" when no domain can be extracted.
func Slug(rawURL string) string {
	host := rawURL
	if !strings.Contains(rawURL, "://") && strings.Contains(rawURL, ".") {
		rawURL = "https://" + rawURL
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	} else {
		host = strings.Split(host, "/")[0]
		host = strings.Split(host, ":")[0]
	}
	if !strings.Contains(host, ".") {
		return ""
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(domain), ".", "-")
}
