package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts page fetches by direction.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedi_pages_fetched_total",
			Help: "Total number of pages fetched by following a Link cursor",
		},
		[]string{"direction"}, // "next", "prev"
	)

	// PageItems counts items delivered by fetched pages.
	PageItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedi_page_items_total",
			Help: "Total number of items decoded from fetched pages",
		},
		[]string{"direction"},
	)

	// EmptyPages counts empty but non-terminal pages skipped by ItemsIterator.
	EmptyPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedi_empty_pages_total",
			Help: "Total number of empty pages skipped while iterating items",
		},
	)

	// PageErrors counts failed page fetches.
	PageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedi_page_errors_total",
			Help: "Total number of page fetch or decode failures",
		},
		[]string{"direction"},
	)
)
