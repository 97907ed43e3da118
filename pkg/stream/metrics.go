package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts assembler outcomes by kind.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedi_stream_frames_total",
			Help: "Stream frames by outcome (decoded, skipped, failed)",
		},
		[]string{"outcome"},
	)

	// EventsTotal counts decoded events by name.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedi_stream_events_total",
			Help: "Decoded stream events by event name",
		},
		[]string{"event"},
	)

	// ReadErrors counts terminal transport read failures.
	ReadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedi_stream_read_errors_total",
			Help: "Stream reads that ended with a transport error",
		},
	)
)
