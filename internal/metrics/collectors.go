package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/pkg/logger"
)

// SessionCounter reports live sessions by state
type SessionCounter interface {
	CountByState() map[rename.State]int
}

// TotalsSource reports usage across all users
type TotalsSource interface {
	Totals(ctx context.Context) (*preferences.Totals, error)
}

// CustomCollector collects gauges computed at scrape time
type CustomCollector struct {
	log      *logger.Logger
	sessions SessionCounter
	totals   TotalsSource // optional

	activeSessions *prometheus.Desc
	totalUsers     *prometheus.Desc
	filesRenamed   *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, sessions SessionCounter, totals TotalsSource) *CustomCollector {
	return &CustomCollector{
		log:      log,
		sessions: sessions,
		totals:   totals,

		activeSessions: prometheus.NewDesc(
			"renamebot_active_sessions",
			"Rename sessions currently held in the registry by state",
			[]string{"state"}, nil,
		),
		totalUsers: prometheus.NewDesc(
			"renamebot_users",
			"Users with stored preferences",
			[]string{"kind"}, // all|active
			nil,
		),
		filesRenamed: prometheus.NewDesc(
			"renamebot_files_renamed",
			"Files renamed across all users",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.totalUsers
	ch <- c.filesRenamed
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectSessions(ch)

	if c.totals != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.collectTotals(ctx, ch)
	}
}

func (c *CustomCollector) collectSessions(ch chan<- prometheus.Metric) {
	counts := c.sessions.CountByState()
	for _, state := range []rename.State{rename.StateAwaitingName, rename.StateAwaitingFormat, rename.StateTransferring} {
		ch <- prometheus.MustNewConstMetric(
			c.activeSessions,
			prometheus.GaugeValue,
			float64(counts[state]),
			string(state),
		)
	}
}

func (c *CustomCollector) collectTotals(ctx context.Context, ch chan<- prometheus.Metric) {
	totals, err := c.totals.Totals(ctx)
	if err != nil {
		c.log.Errorw("Failed to collect usage totals", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.totalUsers, prometheus.GaugeValue, float64(totals.Users), "all")
	ch <- prometheus.MustNewConstMetric(c.totalUsers, prometheus.GaugeValue, float64(totals.ActiveUsers), "active")
	ch <- prometheus.MustNewConstMetric(c.filesRenamed, prometheus.CounterValue, float64(totals.FilesRenamed))
}
