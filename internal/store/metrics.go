package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal counts optimistic mutations by kind and outcome
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discussfront_mutations_total",
		Help: "Optimistic comment mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	// mutationsPending tracks outstanding mutations
	mutationsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discussfront_mutations_pending",
		Help: "Optimistic mutations awaiting a server answer",
	})

	// splicesTotal counts load-more splices by result
	splicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discussfront_splices_total",
		Help: "Load-more splices by result",
	}, []string{"result"})

	// spliceInserted tracks comments inserted per splice
	spliceInserted = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discussfront_splice_inserted_comments",
		Help:    "Top-level comments inserted per splice",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	// postsLoaded tracks the number of post threads held in memory
	postsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discussfront_posts_loaded",
		Help: "Post threads held in the comment store",
	})

	// orphansRegistered tracks the orphan registry size
	orphansRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discussfront_orphans_registered",
		Help: "Comments known outside a loaded thread",
	})
)

const (
	outcomeBegun      = "begun"
	outcomeConfirmed  = "confirmed"
	outcomeRolledBack = "rolled_back"
	outcomeConflict   = "conflict"
	outcomeDropped    = "dropped"
)
