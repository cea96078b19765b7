package hierarchy

import "regexp"

var (
	ampEntity = regexp.MustCompile(`&amp;`)
	nameStrip = regexp.MustCompile(`[^\w\s\-\.\&\'\/\(\)]`)
)

// CleanName strips markup entities and foreign characters from scraped
// display names.
func CleanName(name string) string {
	name = ampEntity.ReplaceAllString(name, "&")
	return nameStrip.ReplaceAllString(name, "")
}
