package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// mojibakeReplacer fixes UTF-8 text that was decoded as Windows-1252/Latin-1.
// Longer sequences come first: comparisons are done in argument order.
var mojibakeReplacer = strings.NewReplacer(
	"â€¢", "•",
	"â€”", "—",
	"â€“", "–",
	"â€œ", "“",
	"â€\u009d", "”",
	"â€˜", "‘",
	"â€™", "’",
	"â€¦", "…",
	"â€‹", "",
	"â€", "”",
	"Â\u00a0", " ",
	"Â ", " ",
	"\u200b", "",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// entityReplacer handles the leftovers a round trip cannot: escaped
// entities and zero-width spaces.
var entityReplacer = strings.NewReplacer(
	"\u200b", "",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// CleanText repairs mis-decoded sequences, collapses whitespace runs to a
// single space and trims the result.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(RepairMojibake(s)), " ")
}

// RepairMojibake undoes the common Latin-1/UTF-8 confusion.
// It first tries a full Windows-1252 round trip and falls back to the
// replacement table when the text does not survive it.
func RepairMojibake(s string) string {
	if !strings.ContainsAny(s, "ÃÂâ&\u200b") {
		return s
	}
	if fixed, ok := windows1252RoundTrip(s); ok {
		return entityReplacer.Replace(fixed)
	}
	return mojibakeReplacer.Replace(s)
}

func windows1252RoundTrip(s string) (string, bool) {
	if !strings.ContainsAny(s, "ÃÂâ") {
		return "", false
	}
	raw, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil || raw == s || !utf8.ValidString(raw) {
		return "", false
	}
	return raw, true
}
