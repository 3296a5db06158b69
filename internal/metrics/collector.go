package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DB interface for table size queries
type DB interface {
	CountRows(table string) (int, error)
}

// CollectTableRows refreshes the per-table row gauges from the database
func CollectTableRows(db DB, logger *slog.Logger) {
	for _, table := range []string{TableAccounts, TableFollowing, TableStatuses, TableStatusActivities} {
		count, err := db.CountRows(table)
		if err != nil {
			logger.Error("Failed to count table rows", "table", table, "error", err)
			continue
		}
		TableRows.WithLabelValues(table).Set(float64(count))
	}
}

// WriteTextfile dumps the default registry in the node_exporter textfile format
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
