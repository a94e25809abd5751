package main

import (
	"flag"
	"fmt"
	"os"

	"vsrepair/booking-service/internal/sitemap"
)

func main() {
	templatePath := flag.String("template", "", "Path to the sitemap template (defaults to the built-in one)")
	outPath := flag.String("out", "sitemap.xml", "Where to write the generated sitemap")
	siteURL := flag.String("site-url", defaultSiteURL(), "Deployed site base URL (env SITE_URL or VITE_SITE_URL)")
	flag.Parse()

	if err := run(*templatePath, *outPath, *siteURL); err != nil {
		fmt.Fprintf(os.Stderr, "sitemap generation failed: %v\n", err)
		fmt.Fprintln(os.Stderr, "Example: SITE_URL=https://vsappliances.example sitemap-gen -out public/sitemap.xml")
		os.Exit(1)
	}
}

func run(templatePath, outPath, siteURL string) error {
	template := sitemap.DefaultTemplate()
	if templatePath != "" {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		template = raw
	}

	result, err := sitemap.Generate(template, siteURL)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, result.XML, 0o644); err != nil {
		return fmt.Errorf("write sitemap: %w", err)
	}
	fmt.Printf("Sitemap written to %s (%d urls, base %s)\n", outPath, len(result.Locations), result.BaseURL)
	return nil
}

func defaultSiteURL() string {
	if value := os.Getenv("SITE_URL"); value != "" {
		return value
	}
	return os.Getenv("VITE_SITE_URL")
}
