package extract

import (
	"regexp"
	"strings"
)

var (
	mdImageRe  = regexp.MustCompile(`!\[([^\]]*)\]\((https?://[^\s)]+)(?:\s+"[^"]*")?\)`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^\s)]+)(?:\s+"[^"]*")?\)`)
	mdRefDefRe = regexp.MustCompile(`(?m)^\[[^\]]+\]:\s*https?://[^\s]+(?:\s+"[^"]*")?$`)
	angleURLRe = regexp.MustCompile(`<(https?://[^>]+)>`)
	bareURLRe  = regexp.MustCompile(`https?://[^\s]+`)
)

// StripLinks removes markdown link/image noise and bare URLs from extracted
// page text, keeping only the human-readable words. Report prompts stay
// focused on content rather than link spam.
func StripLinks(markdown string) string {
	out := mdImageRe.ReplaceAllString(markdown, "$1")
	out = mdLinkRe.ReplaceAllString(out, "$1")
	out = mdRefDefRe.ReplaceAllString(out, "")
	out = angleURLRe.ReplaceAllString(out, "")
	out = bareURLRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
