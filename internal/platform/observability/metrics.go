package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_messages_processed_total",
		Help: "The total number of messages read from the chat source",
	}, []string{"chat"})

	MessagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_messages_stored_total",
		Help: "The total number of messages flushed to the store",
	}, []string{"chat"})

	DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_drops_total",
		Help: "Total number of filtered-out messages by reason",
	}, []string{"reason"})

	MediaDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_media_downloads_total",
		Help: "Media download attempts by outcome",
	}, []string{"status"})

	FloodWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_flood_waits_total",
		Help: "Number of upstream rate-limit suspensions by operation",
	}, []string{"op"})

	BatchFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_batch_flush_duration_seconds",
		Help:    "Duration in seconds to flush a batch to the store",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	ChatsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_chats_skipped_total",
		Help: "Chats skipped because they could not be resolved or walked",
	})

	CursorPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harvester_cursor_position",
		Help: "Last durably processed message id per chat",
	}, []string{"chat"})
)
