package poll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cisdel_check_cycles_total", Help: "Check cycles by terminal status",
	}, []string{"status"})
	mSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cisdel_check_cycles_skipped_total", Help: "Triggers dropped because a cycle was already running",
	})
	mNew = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cisdel_new_announcements_total", Help: "Announcements reported as new",
	})
	mCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cisdel_cache_hits_total", Help: "Loads served from the announcement cache",
	})
	mStrategy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cisdel_extraction_strategy_total", Help: "Winning extraction strategy per fetch",
	}, []string{"strategy"})
	mCycleDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "cisdel_check_duration_seconds", Help: "Check cycle duration",
		Buckets: prometheus.DefBuckets,
	})
)
