package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photo_searches_total",
		Help: "Number of remote photo search requests",
	})
	searchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photo_search_failures_total",
		Help: "Number of remote photo search requests that failed",
	})
	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photo_downloads_total",
		Help: "Number of photos downloaded and cached",
	})
	downloadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photo_download_failures_total",
		Help: "Number of image downloads that failed and were dropped",
	})
	dedupSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photo_dedup_skips_total",
		Help: "Number of photo references skipped because already cached",
	})
)
