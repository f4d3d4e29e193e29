package poll

import (
	"slices"

	"cisdel-notifier/pkg/notifier"
)

// Detect returns the announcements in fresh whose key is not in baseline,
// and the baseline to store next, which is always fresh itself.
//
// An empty baseline means nothing was seen before, so nothing is reported:
// a first run must not flood the user with the whole page.
func Detect(fresh, baseline []notifier.Announcement) (delta, updated []notifier.Announcement) {
	updated = slices.Clone(fresh)
	if len(baseline) == 0 {
		return nil, updated
	}

	seen := make(map[string]struct{}, len(baseline))
	for _, a := range baseline {
		seen[a.Key()] = struct{}{}
	}
	for _, a := range fresh {
		if _, ok := seen[a.Key()]; !ok {
			delta = append(delta, a)
		}
	}
	return delta, updated
}
