// Package extract turns the announcements listing page into structured announcements.
//
// The page markup drifts over time, so extraction runs an ordered cascade of
// strategies. The first strategy that yields a non-empty list wins; results
// from different strategies are never merged.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"cisdel-notifier/pkg/notifier"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoDocument means there was nothing to extract from, as opposed to a
// page that simply contained no announcements.
var ErrNoDocument = errors.New("no document to extract from")

// Strategy maps a parsed page to announcements, or returns nil when it does
// not recognize the markup.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, base *url.URL) []notifier.Announcement
}

// Result is the outcome of one extraction run.
type Result struct {
	Strategy      string // Name of the winning strategy, empty when nothing matched
	Announcements []notifier.Announcement
}

// Empty reports whether no strategy produced anything.
func (r Result) Empty() bool {
	return len(r.Announcements) == 0
}

// Extractor runs strategies in a fixed order.
type Extractor struct {
	logger     *slog.Logger
	now        func() time.Time
	strategies []Strategy
}

// DefaultStrategies returns the built-in cascade, most precise first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		GridStrategy{},
		ItemsTableStrategy{},
		AnyTableStrategy{},
		NotificationStrategy{},
		KeywordStrategy{},
		LinkStrategy{},
	}
}

// New creates an extractor with the default cascade.
func New(logger *slog.Logger) *Extractor {
	return NewWithStrategies(logger, DefaultStrategies()...)
}

// NewWithStrategies creates an extractor that tries the given strategies in order.
func NewWithStrategies(logger *slog.Logger, strategies ...Strategy) *Extractor {
	return &Extractor{
		logger:     logger,
		now:        time.Now,
		strategies: strategies,
	}
}

// Names returns the strategy names in cascade order.
func (e *Extractor) Names() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract runs the cascade against doc. base resolves relative links and may be nil.
// An empty Result with a nil error is a valid outcome.
func (e *Extractor) Extract(doc *goquery.Document, base *url.URL) (Result, error) {
	if doc == nil || doc.Selection == nil || len(doc.Nodes) == 0 {
		return Result{}, ErrNoDocument
	}

	now := e.now().UTC()
	for _, s := range e.strategies {
		raw := e.run(s, doc, base)
		anns := finalize(raw, now)
		if len(anns) == 0 {
			e.logger.Debug("Extraction strategy found nothing", "strategy", s.Name())
			continue
		}

		e.logger.Info("Extraction strategy matched",
			"strategy", s.Name(),
			"announcements", len(anns),
			"page_title", CleanText(doc.Find("title").First().Text()))
		return Result{Strategy: s.Name(), Announcements: anns}, nil
	}

	e.logger.Info("All extraction strategies came up empty", "strategies", len(e.strategies))
	return Result{}, nil
}

// run isolates a strategy so a bug in one heuristic does not abort the cascade.
func (e *Extractor) run(s Strategy, doc *goquery.Document, base *url.URL) (anns []notifier.Announcement) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Extraction strategy panicked", "strategy", s.Name(), "error", fmt.Sprint(r))
			anns = nil
		}
	}()
	return s.Extract(doc, base)
}

// finalize normalizes text, drops untitled entries, stamps AddedAt and makes ids unique.
func finalize(raw []notifier.Announcement, now time.Time) []notifier.Announcement {
	if len(raw) == 0 {
		return nil
	}

	out := make([]notifier.Announcement, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for _, a := range raw {
		a.Title = CleanText(a.Title)
		if a.Title == "" {
			continue
		}
		a.Date = CleanText(a.Date)
		a.Sender = CleanText(a.Sender)
		a.ID = CleanText(a.ID)
		if a.ID == "" {
			a.ID = notifier.CompositeKey(a.Title, a.Link)
		}
		if a.AddedAt.IsZero() {
			a.AddedAt = now
		}

		seen[a.ID]++
		if n := seen[a.ID]; n > 1 {
			a.ID += "#" + strconv.Itoa(n)
		}
		out = append(out, a)
	}
	return out
}
