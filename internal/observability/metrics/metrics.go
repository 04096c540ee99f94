package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the full fixed metric taxonomy. Names are normative and
// consumed by the operator dashboards; do not rename.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	InvalidHTTPRequests *prometheus.CounterVec

	ReservationsRequested  prometheus.Counter
	ReservationsSuccessful prometheus.Counter
	ReservationsFailed     prometheus.Counter
	ReservationsFailedBy   *prometheus.CounterVec

	CancellationsRequested  prometheus.Counter
	CancellationsSuccessful prometheus.Counter
	CancellationsFailed     prometheus.Counter
	CancellationsFailedBy   *prometheus.CounterVec

	ModificationsRequested  prometheus.Counter
	ModificationsSuccessful prometheus.Counter
	ModificationsFailed     prometheus.Counter
	ModificationsFailedBy   *prometheus.CounterVec

	RetryAttempts      *prometheus.CounterVec
	RetryExhausted     *prometheus.CounterVec
	RetryLastTimestamp *prometheus.GaugeVec

	LLMAPIErrors      *prometheus.CounterVec
	LLMToolErrors     *prometheus.CounterVec
	LLMEmptyResponses *prometheus.CounterVec

	WhatsAppFailures *prometheus.CounterVec

	QueueEnqueued         prometheus.Counter
	QueueDuplicate        prometheus.Counter
	QueueClaimed          prometheus.Counter
	QueueProcessed        prometheus.Counter
	QueueProcessingErrors prometheus.Counter
	QueueClaimFailures    prometheus.Counter
	QueueLength           prometheus.Gauge
	QueueOldestAge        prometheus.Gauge

	SchedulerJobMissed *prometheus.CounterVec
	FunctionErrors     *prometheus.CounterVec

	ProcessCPUPercent  prometheus.Gauge
	ProcessMemoryBytes prometheus.Gauge
}

// New registers the taxonomy on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, endpoint and status",
		}, []string{"method", "endpoint", "http_status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint", "http_status"}),
		InvalidHTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invalid_http_requests_by_reason_total",
			Help: "Rejected HTTP requests by reason",
		}, []string{"reason"}),

		ReservationsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_requested_total", Help: "Reservation attempts"}),
		ReservationsSuccessful: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_successful_total", Help: "Successful reservations"}),
		ReservationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_failed_total", Help: "Failed reservations"}),
		ReservationsFailedBy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_failed_by_reason_total", Help: "Failed reservations by reason",
		}, []string{"reason", "endpoint", "method"}),

		CancellationsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cancellation_requested_total", Help: "Cancellation attempts"}),
		CancellationsSuccessful: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cancellation_successful_total", Help: "Successful cancellations"}),
		CancellationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cancellation_failed_total", Help: "Failed cancellations"}),
		CancellationsFailedBy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cancellation_failed_by_reason_total", Help: "Failed cancellations by reason",
		}, []string{"reason", "endpoint", "method"}),

		ModificationsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modification_requested_total", Help: "Modification attempts"}),
		ModificationsSuccessful: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modification_successful_total", Help: "Successful modifications"}),
		ModificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modification_failed_total", Help: "Failed modifications"}),
		ModificationsFailedBy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modification_failed_by_reason_total", Help: "Failed modifications by reason",
		}, []string{"reason", "endpoint", "method"}),

		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_retry_attempts_total", Help: "Provider retry attempts",
		}, []string{"exception_type"}),
		RetryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_retry_exhausted_total", Help: "Retry budgets exhausted",
		}, []string{"function", "exception_type"}),
		RetryLastTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "api_retry_last_timestamp_seconds", Help: "Unix time of the last retry",
		}, []string{"exception_type"}),

		LLMAPIErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_api_errors_total", Help: "LLM provider errors",
		}, []string{"provider", "error_type"}),
		LLMToolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tool_execution_errors_total", Help: "Tool handler errors",
		}, []string{"tool_name", "provider"}),
		LLMEmptyResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_empty_responses_total", Help: "Empty or unusable LLM responses",
		}, []string{"provider", "response_type"}),

		WhatsAppFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whatsapp_message_failures_by_reason_total", Help: "Failed WhatsApp sends",
		}, []string{"reason", "message_type"}),

		QueueEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbound_queue_enqueued_total", Help: "Items enqueued"}),
		QueueDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbound_queue_enqueue_duplicate_total", Help: "Duplicate message ids dropped"}),
		QueueClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbound_queue_claimed_total", Help: "Items claimed by workers"}),
		QueueProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbound_queue_processed_total", Help: "Items processed"}),
		QueueProcessingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbound_queue_processing_errors_total", Help: "Processing failures"}),
		QueueClaimFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inbound_queue_claim_failures_total", Help: "Claim transaction failures"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inbound_queue_length", Help: "Pending items"}),
		QueueOldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inbound_queue_oldest_age_seconds", Help: "Age of the oldest pending item"}),

		SchedulerJobMissed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_missed_by_reason_total", Help: "Skipped scheduler runs",
		}, []string{"reason", "job_id"}),
		FunctionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_function_errors_total", Help: "Errors by function",
		}, []string{"function"}),

		ProcessCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_cpu_percent", Help: "Process CPU utilization percent"}),
		ProcessMemoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_memory_bytes", Help: "Resident set size in bytes"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.HTTPRequests, m.HTTPRequestDuration, m.InvalidHTTPRequests,
		m.ReservationsRequested, m.ReservationsSuccessful, m.ReservationsFailed, m.ReservationsFailedBy,
		m.CancellationsRequested, m.CancellationsSuccessful, m.CancellationsFailed, m.CancellationsFailedBy,
		m.ModificationsRequested, m.ModificationsSuccessful, m.ModificationsFailed, m.ModificationsFailedBy,
		m.RetryAttempts, m.RetryExhausted, m.RetryLastTimestamp,
		m.LLMAPIErrors, m.LLMToolErrors, m.LLMEmptyResponses,
		m.WhatsAppFailures,
		m.QueueEnqueued, m.QueueDuplicate, m.QueueClaimed, m.QueueProcessed,
		m.QueueProcessingErrors, m.QueueClaimFailures, m.QueueLength, m.QueueOldestAge,
		m.SchedulerJobMissed, m.FunctionErrors,
		m.ProcessCPUPercent, m.ProcessMemoryBytes,
	)
	return m
}

// NewForTest registers the taxonomy on a throwaway registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
