package notify

import (
	"fmt"
	"net/url"
	"strings"

	"cisdel-notifier/pkg/notifier"
)

func formatBody(n *notifier.Notification, delta []notifier.Announcement) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"id\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".item { padding: 12px 0; border-bottom: 1px solid #dfe6ee; }\n")
	b.WriteString(".item:last-of-type { border-bottom: none; }\n")
	b.WriteString(".title { font-weight: 600; font-size: 1.1em; }\n")
	b.WriteString(".meta { color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.9em; color: #7f8c8d; }\n")
	b.WriteString("a { color: #1f6fb2; text-decoration: none; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".item { border-bottom-color: #444; }\n")
	b.WriteString(".meta, .footer { color: #a0a0a0; }\n")
	b.WriteString("a { color: #6cb4f0; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	fmt.Fprintf(&b, "<p>%s</p>\n", escapeHTML(n.Message))

	for i := range delta {
		a := &delta[i]
		b.WriteString("<div class=\"item\">\n")
		if isSafeURL(a.Link) {
			fmt.Fprintf(&b, "<a class=\"title\" href=\"%s\">%s</a>\n", escapeHTML(a.Link), escapeHTML(a.Title))
		} else {
			fmt.Fprintf(&b, "<span class=\"title\">%s</span>\n", escapeHTML(a.Title))
		}
		if meta := joinMeta(a.Date, a.Sender); meta != "" {
			fmt.Fprintf(&b, "<div class=\"meta\">%s</div>\n", escapeHTML(meta))
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("<div class=\"footer\">\n")
	if isSafeURL(n.URL) {
		fmt.Fprintf(&b, "<a href=\"%s\">Buka halaman pengumuman</a>\n", escapeHTML(n.URL))
	}
	b.WriteString("</div>\n")
	b.WriteString("</body>\n</html>")

	return b.String()
}

func joinMeta(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " · ")
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}

// isSafeURL accepts only absolute http(s) links; announcement links are
// resolved against the portal before they get here.
func isSafeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
