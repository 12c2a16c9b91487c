package reader

import "regexp"

var (
	linkTarget = regexp.MustCompile(`\(https?:[^)]*\)`)
	bareURL    = regexp.MustCompile(`https?://[^\s)]+`)
)

// StripURLs removes link targets and bare URLs from rendered markdown,
// keeping link text intact. Listing pages carry hundreds of navigation
// links that would otherwise dominate the structuring prompt.
func StripURLs(content string) string {
	cleaned := linkTarget.ReplaceAllString(content, "")
	cleaned = bareURL.ReplaceAllString(cleaned, "")
	return cleaned
}
