// Package sitemap stamps the site base URL into a sitemap template.
package sitemap

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/beevik/etree"
)

const Placeholder = "{{SITE_URL}}"

var (
	ErrMissingSiteURL  = errors.New("site URL is required")
	ErrInvalidSiteURL  = errors.New("site URL must be an absolute http or https URL")
	ErrInvalidTemplate = errors.New("sitemap template is invalid")
)

//go:embed sitemap.template.xml
var defaultTemplate []byte

func DefaultTemplate() []byte {
	out := make([]byte, len(defaultTemplate))
	copy(out, defaultTemplate)
	return out
}

type Sitemap struct {
	BaseURL   string
	XML       []byte
	Locations []string
}

// NormalizeSiteURL validates raw and drops one trailing slash.
func NormalizeSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingSiteURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSiteURL, raw)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSiteURL, raw)
	}
	return strings.TrimSuffix(raw, "/"), nil
}

// Generate substitutes every placeholder in template and checks that the
// result is a urlset whose entries all carry a location.
func Generate(template []byte, siteURL string) (Sitemap, error) {
	base, err := NormalizeSiteURL(siteURL)
	if err != nil {
		return Sitemap{}, err
	}
	if !strings.Contains(string(template), Placeholder) {
		return Sitemap{}, fmt.Errorf("%w: no %s placeholder", ErrInvalidTemplate, Placeholder)
	}
	out := []byte(strings.ReplaceAll(string(template), Placeholder, base))

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		return Sitemap{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "urlset" {
		return Sitemap{}, fmt.Errorf("%w: root element must be urlset", ErrInvalidTemplate)
	}

	var locations []string
	for _, entry := range root.SelectElements("url") {
		loc := entry.SelectElement("loc")
		if loc == nil || strings.TrimSpace(loc.Text()) == "" {
			return Sitemap{}, fmt.Errorf("%w: url entry without loc", ErrInvalidTemplate)
		}
		locations = append(locations, strings.TrimSpace(loc.Text()))
	}
	return Sitemap{BaseURL: base, XML: out, Locations: locations}, nil
}
