package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Mastodon API operations
	OpRequest           = "request"
	OpVerifyCredentials = "verify_credentials"
	OpFollowers         = "followers"
	OpFollowing         = "following"
	OpStatuses          = "statuses"
	OpBookmarks         = "bookmarks"
	OpFavourites        = "favourites"

	// Database operations
	DBOpEnsureSchema         = "ensure_schema"
	DBOpUpsertAccounts       = "upsert_accounts"
	DBOpEnsureAccount        = "ensure_account"
	DBOpGetAccount           = "get_account"
	DBOpSearchAccounts       = "search_accounts"
	DBOpInsertFollowing      = "insert_following"
	DBOpListFollowing        = "list_following"
	DBOpUpsertStatuses       = "upsert_statuses"
	DBOpSearchStatuses       = "search_statuses"
	DBOpUpsertStatusActivity = "upsert_status_activities"
	DBOpListStatusActivities = "list_status_activities"
	DBOpCountRows            = "count_rows"

	// Metrics server endpoints
	EndpointMetrics = "metrics"
	EndpointHealth  = "health"

	// Tables
	TableAccounts         = "accounts"
	TableFollowing        = "following"
	TableStatuses         = "statuses"
	TableStatusActivities = "status_activities"
)

// Mastodon API Metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mastodon_api_requests_total",
			Help: "Total number of Mastodon API requests",
		},
		[]string{"operation", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mastodon_api_request_duration_seconds",
			Help:    "Mastodon API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	APIPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mastodon_api_pages_total",
			Help: "Total number of pages yielded by paginated requests",
		},
		[]string{"operation"},
	)

	RateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mastodon_rate_limit_remaining",
			Help: "Requests remaining in the current rate limit window",
		},
	)

	RateLimitWaitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mastodon_rate_limit_waits_total",
			Help: "Total number of times pagination paused until the rate limit reset",
		},
	)

	RateLimitWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mastodon_rate_limit_wait_seconds_total",
			Help: "Total time spent waiting for rate limit resets",
		},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Archive Metrics
var (
	RecordsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_records_saved_total",
			Help: "Total number of records written per table",
		},
		[]string{"table"},
	)

	TableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "archive_table_rows",
			Help: "Number of rows currently stored per table",
		},
		[]string{"table"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archive_sync_duration_seconds",
			Help:    "Duration of a complete fetch-and-persist pipeline",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		},
		[]string{"resource", "result"},
	)
)

// Metrics server
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of requests served by the metrics server",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Metrics server request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status_code"},
	)
)
