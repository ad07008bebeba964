package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session lifecycle
	RenameSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_sessions_total",
			Help: "Rename session lifecycle events",
		},
		[]string{"event"}, // created|replaced|expired|cancelled|rejected
	)

	RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renamebot_session_registry_size",
			Help: "Sessions held in memory after the last sweep",
		},
	)

	RenameOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_renames_total",
			Help: "Finished transfers by outcome and upload format",
		},
		[]string{"status", "format"}, // status: succeeded|failed|cancelled
	)

	// Transfer metrics
	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renamebot_transfer_stage_duration_seconds",
			Help:    "Duration of a pipeline stage in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800, 3600},
		},
		[]string{"stage", "status"}, // stage: download|transform|upload
	)

	TransferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_transfer_bytes_total",
			Help: "Bytes moved by pipeline stage",
		},
		[]string{"stage"},
	)

	MetadataTransforms = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_metadata_transforms_total",
			Help: "Metadata embedding attempts by result",
		},
		[]string{"result"}, // applied|failed|unavailable
	)

	// Telegram metrics
	TelegramUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_telegram_updates_total",
			Help: "Inbound Telegram updates by type",
		},
		[]string{"type"}, // file|reply|callback|command|photo|other
	)

	CommandExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_command_executions_total",
			Help: "Bot command executions",
		},
		[]string{"command", "status"},
	)

	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renamebot_command_latency_seconds",
			Help:    "Bot command latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Outcome sinks
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_kafka_messages_total",
			Help: "Kafka messages published",
		},
		[]string{"topic", "status"},
	)

	BatchFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renamebot_batch_flushes_total",
			Help: "ClickHouse batch flushes",
		},
		[]string{"table", "status"},
	)
)

func init() {
	prometheus.MustRegister(RenameSessions)
	prometheus.MustRegister(RegistrySize)
	prometheus.MustRegister(RenameOutcomes)

	prometheus.MustRegister(TransferDuration)
	prometheus.MustRegister(TransferBytes)
	prometheus.MustRegister(MetadataTransforms)

	prometheus.MustRegister(TelegramUpdates)
	prometheus.MustRegister(CommandExecutions)
	prometheus.MustRegister(CommandLatency)

	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(BatchFlushes)
}

// RegisterCollector registers a scrape-time collector with the default registry
func RegisterCollector(c prometheus.Collector) error {
	return prometheus.Register(c)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStage records one pipeline stage
func RecordStage(stage string, duration time.Duration, bytes int64, err error) {
	TransferDuration.WithLabelValues(stage, status(err)).Observe(duration.Seconds())
	if bytes > 0 {
		TransferBytes.WithLabelValues(stage).Add(float64(bytes))
	}
}

// RecordCommand records a bot command execution
func RecordCommand(command string, latency time.Duration, err error) {
	CommandExecutions.WithLabelValues(command, status(err)).Inc()
	CommandLatency.WithLabelValues(command).Observe(latency.Seconds())
}

// RecordKafkaPublish records a publish attempt
func RecordKafkaPublish(topic string, err error) {
	KafkaMessages.WithLabelValues(topic, status(err)).Inc()
}

// RecordBatchFlush records a ClickHouse batch flush
func RecordBatchFlush(table string, err error) {
	BatchFlushes.WithLabelValues(table, status(err)).Inc()
}
