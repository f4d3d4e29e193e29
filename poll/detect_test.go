package poll

import (
	"testing"

	"cisdel-notifier/pkg/notifier"

	"github.com/google/go-cmp/cmp"
)

func TestDetect(t *testing.T) {
	a := notifier.Announcement{ID: "1", Title: "A"}
	b := notifier.Announcement{ID: "2", Title: "B"}
	c := notifier.Announcement{ID: "3", Title: "C"}

	tests := []struct {
		name      string
		fresh     []notifier.Announcement
		baseline  []notifier.Announcement
		wantDelta []notifier.Announcement
	}{
		{
			name:      "one new item",
			fresh:     []notifier.Announcement{a, b},
			baseline:  []notifier.Announcement{a},
			wantDelta: []notifier.Announcement{b},
		},
		{
			name:      "first run is silent",
			fresh:     []notifier.Announcement{a, b},
			baseline:  nil,
			wantDelta: nil,
		},
		{
			name:      "nothing new",
			fresh:     []notifier.Announcement{a},
			baseline:  []notifier.Announcement{a, b},
			wantDelta: nil,
		},
		{
			name:      "item returning after absence is new",
			fresh:     []notifier.Announcement{a, c},
			baseline:  []notifier.Announcement{a, b},
			wantDelta: []notifier.Announcement{c},
		},
		{
			name:      "empty fresh set",
			fresh:     nil,
			baseline:  []notifier.Announcement{a},
			wantDelta: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, updated := Detect(tt.fresh, tt.baseline)
			if diff := cmp.Diff(tt.wantDelta, delta); diff != "" {
				t.Errorf("delta mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.fresh, updated); diff != "" {
				t.Errorf("updated baseline mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	baseline := []notifier.Announcement{{ID: "1", Title: "A"}}
	fresh := []notifier.Announcement{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}}

	delta, updated := Detect(fresh, baseline)
	if len(delta) != 1 {
		t.Fatalf("first Detect() delta = %v, want one item", delta)
	}

	delta, _ = Detect(fresh, updated)
	if len(delta) != 0 {
		t.Errorf("second Detect() delta = %v, want empty", delta)
	}
}

func TestDetectFallsBackToTitleLink(t *testing.T) {
	baseline := []notifier.Announcement{
		{Title: "Jadwal UTS", Link: "https://cis.del.ac.id/p/1"},
	}
	fresh := []notifier.Announcement{
		{Title: "Jadwal UTS", Link: "https://cis.del.ac.id/p/1", Date: "changed"},
		{Title: "Jadwal UTS", Link: "https://cis.del.ac.id/p/2"},
		{Title: "Jadwal UAS"},
	}

	delta, _ := Detect(fresh, baseline)
	want := []notifier.Announcement{fresh[1], fresh[2]}
	if diff := cmp.Diff(want, delta); diff != "" {
		t.Errorf("delta mismatch (-want +got):\n%s", diff)
	}
}
