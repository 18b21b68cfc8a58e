package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scrapeStrategyHits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scraper_strategy_hits_total",
		Help: "Number of scrapes resolved per platform, by the strategy index that produced reviews",
	},
	[]string{"platform", "strategy"},
)
