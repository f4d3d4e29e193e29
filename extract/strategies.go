package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"cisdel-notifier/pkg/notifier"

	"github.com/PuerkitoBio/goquery"
)

// GridStrategy reads the announcements browse grid rendered by the portal.
type GridStrategy struct{}

// Name implements Strategy.
func (GridStrategy) Name() string { return "grid" }

// Extract implements Strategy.
func (GridStrategy) Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement {
	container := doc.Find(".pengumuman-browse").First()
	if container.Length() == 0 {
		return nil
	}
	return anchorRows(container.Find("table tbody tr"), base)
}

// ItemsTableStrategy picks the first table that looks like a data grid,
// either by its "items" class or by having header cells.
type ItemsTableStrategy struct{}

// Name implements Strategy.
func (ItemsTableStrategy) Name() string { return "items-table" }

// Extract implements Strategy.
func (ItemsTableStrategy) Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement {
	var out []notifier.Announcement
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		class, _ := table.Attr("class")
		if !strings.Contains(class, "items") && table.Find("th").Length() == 0 {
			return true
		}
		out = anchorRows(table.Find("tbody tr"), base)
		return len(out) == 0
	})
	return out
}

// anchorRows maps rows positionally: first anchor is title and link,
// third cell is the date and fourth the sender. Rows without an anchor are skipped.
func anchorRows(rows *goquery.Selection, base *url.URL) []notifier.Announcement {
	var out []notifier.Announcement
	rows.Each(func(_ int, row *goquery.Selection) {
		a := row.Find("a").First()
		if a.Length() == 0 {
			return
		}
		cells := row.ChildrenFiltered("td")
		out = append(out, notifier.Announcement{
			Title:  a.Text(),
			Link:   resolveLink(base, a),
			Date:   cellText(cells, 2),
			Sender: cellText(cells, 3),
		})
	})
	return out
}

// AnyTableStrategy accepts the first table with at least two rows and two
// columns and maps columns by count.
type AnyTableStrategy struct{}

// Name implements Strategy.
func (AnyTableStrategy) Name() string { return "any-table" }

// Extract implements Strategy.
func (AnyTableStrategy) Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement {
	var out []notifier.Announcement
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tbody tr")
		if rows.Length() < 2 || rows.First().Find("td, th").Length() < 2 {
			return true
		}

		rows.Each(func(i int, row *goquery.Selection) {
			if i == 0 && row.Find("th").Length() > 0 {
				return
			}
			if a, ok := columnRow(row, base); ok {
				out = append(out, a)
			}
		})
		return false
	})
	return out
}

// columnRow maps cells by count: 3+ columns are id, title, date and an
// optional sender; 2 columns are title and date; 1 column is a bare title.
func columnRow(row *goquery.Selection, base *url.URL) (notifier.Announcement, bool) {
	cells := row.ChildrenFiltered("td")
	var ann notifier.Announcement
	var titleCell *goquery.Selection

	switch n := cells.Length(); {
	case n >= 3:
		ann.ID = cellText(cells, 0)
		titleCell = cells.Eq(1)
		ann.Date = cellText(cells, 2)
		ann.Sender = cellText(cells, 3)
	case n == 2:
		titleCell = cells.Eq(0)
		ann.Date = cellText(cells, 1)
	case n == 1:
		titleCell = cells.Eq(0)
	default:
		return ann, false
	}

	if a := titleCell.Find("a").First(); a.Length() > 0 {
		ann.Title = a.Text()
		ann.Link = resolveLink(base, a)
	} else {
		ann.Title = titleCell.Text()
	}
	return ann, true
}

// NotificationStrategy reads the header notification dropdown.
type NotificationStrategy struct{}

// Name implements Strategy.
func (NotificationStrategy) Name() string { return "notifications" }

// Extract implements Strategy.
func (NotificationStrategy) Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement {
	var out []notifier.Announcement
	doc.Find(".dropdown-menu .menu li").Each(func(_ int, li *goquery.Selection) {
		notif := li.Find(".notif").First()
		if notif.Length() == 0 {
			return
		}

		id, ok := li.Attr("notif-id")
		if !ok {
			id, _ = li.Find("[notif-id]").First().Attr("notif-id")
		}

		var link string
		if target, ok := li.Find(".notif-tools-markread").First().Attr("goto"); ok {
			link = resolveHref(base, target)
		}

		out = append(out, notifier.Announcement{
			ID:     id,
			Title:  notif.Text(),
			Link:   link,
			Sender: "Sistem",
			Read:   li.HasClass("info-read"),
		})
	})
	return out
}

// KeywordStrategy takes every anchor in the first element whose class or id
// mentions announcements.
type KeywordStrategy struct{}

// Name implements Strategy.
func (KeywordStrategy) Name() string { return "keyword" }

// Extract implements Strategy.
func (KeywordStrategy) Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement {
	var out []notifier.Announcement
	doc.Find(`[class*="pengumuman"], [id*="pengumuman"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		el.Find("a").Each(func(_ int, a *goquery.Selection) {
			if CleanText(a.Text()) == "" {
				return
			}
			out = append(out, notifier.Announcement{
				Title: a.Text(),
				Link:  resolveLink(base, a),
			})
		})
		return len(out) == 0
	})
	return out
}

// LinkStrategy is the heuristic of last resort: every reasonably long content
// link that is not page chrome.
type LinkStrategy struct{}

// Name implements Strategy.
func (LinkStrategy) Name() string { return "links" }

const (
	minLinkText = 5
	chromeAreas = "header, nav, .main-header, .main-sidebar, .sidebar"
)

// Extract implements Strategy.
func (LinkStrategy) Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement {
	var content *goquery.Selection
	for _, sel := range []string{".content-wrapper", ".content", "main"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			content = s
			break
		}
	}
	if content == nil {
		return nil
	}

	var out []notifier.Announcement
	content.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := CleanText(a.Text())
		if utf8.RuneCountInString(text) <= minLinkText {
			return
		}
		if a.HasClass("btn") || a.HasClass("nav-link") {
			return
		}
		if a.ParentsFiltered(chromeAreas).Length() > 0 {
			return
		}
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !contentHref(href) {
			return
		}
		out = append(out, notifier.Announcement{
			Title: text,
			Link:  resolveHref(base, href),
		})
	})
	return out
}

func contentHref(href string) bool {
	switch {
	case href == "", strings.HasPrefix(href, "#"):
		return false
	case strings.HasPrefix(strings.ToLower(href), "javascript:"):
		return false
	case strings.Contains(href, "/user/"), strings.Contains(href, "/dashboard/"):
		return false
	}
	return true
}

func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return cells.Eq(i).Text()
}

func resolveLink(base *url.URL, a *goquery.Selection) string {
	href, ok := a.Attr("href")
	if !ok {
		return ""
	}
	return resolveHref(base, href)
}

// resolveHref makes href absolute against base. Unparseable hrefs are kept as written.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
