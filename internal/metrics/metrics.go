// Package metrics exposes Prometheus metrics for the pipeline, the curation
// queue, the work queue and the HTTP surface.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faro-watch/faro/backend/pkg/ai"
	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/pipeline"
)

type Registry struct {
	registry *prometheus.Registry

	ArticlesProcessed *prometheus.CounterVec
	ArticleDuration   prometheus.Histogram
	MentionsCreated   prometheus.Counter
	RelationsCreated  prometheus.Counter
	NodesCreated      prometheus.Counter
	EdgesCreated      prometheus.Counter

	ReviewItems    *prometheus.CounterVec
	ReviewFailures *prometheus.CounterVec
	AITokens       *prometheus.CounterVec

	JobsFinished *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with every metric registered on a private
// Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		registry: reg,

		ArticlesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faro_articles_processed_total",
			Help: "Articles run through the pipeline",
		}, []string{"status"}),
		ArticleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "faro_article_duration_seconds",
			Help:    "Pipeline duration per article",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		MentionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "faro_mentions_created_total",
			Help: "Mentions staged by the pipeline",
		}),
		RelationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "faro_relations_created_total",
			Help: "Relation mentions staged by the pipeline",
		}),
		NodesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "faro_graph_nodes_created_total",
			Help: "Graph nodes created",
		}),
		EdgesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "faro_graph_edges_created_total",
			Help: "Graph edges created",
		}),

		ReviewItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faro_review_items_total",
			Help: "Review queue items by resulting status and decider",
		}, []string{"status", "decided_by"}),
		ReviewFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faro_reviewer_failures_total",
			Help: "Automated reviews answered with the fail-safe verdict",
		}, []string{"kind"}),
		AITokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faro_ai_tokens_total",
			Help: "Tokens spent on automated reviews",
		}, []string{"direction"}),

		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faro_jobs_finished_total",
			Help: "Article jobs that reached a final state",
		}, []string{"status"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faro_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faro_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// ArticleProcessed implements pipeline.Observer.
func (r *Registry) ArticleProcessed(res pipeline.Result, elapsed time.Duration) {
	status := "ok"
	if res.Failed() {
		status = "failed"
	}
	r.ArticlesProcessed.WithLabelValues(status).Inc()
	r.ArticleDuration.Observe(elapsed.Seconds())
	r.MentionsCreated.Add(float64(res.MentionsCreated))
	r.RelationsCreated.Add(float64(res.RelationsCreated))
	r.NodesCreated.Add(float64(res.NodesCreated))
	r.EdgesCreated.Add(float64(res.EdgesCreated))
}

// ItemStatus implements curation.Observer.
func (r *Registry) ItemStatus(status common.ReviewStatus, decidedBy string) {
	if decidedBy == "" {
		decidedBy = "none"
	} else if !strings.HasPrefix(decidedBy, "system:") {
		// Curator ids would explode the label set.
		decidedBy = "curator"
	}
	r.ReviewItems.WithLabelValues(string(status), decidedBy).Inc()
}

// JobFinished implements queue.JobObserver.
func (r *Registry) JobFinished(status common.JobStatus) {
	r.JobsFinished.WithLabelValues(string(status)).Inc()
}

// ReviewFailed is the reviewer failure hook.
func (r *Registry) ReviewFailed(err *ai.ReviewError) {
	r.ReviewFailures.WithLabelValues(string(err.Kind)).Inc()
}

// AddModelMetrics records the token usage of a finished batch of reviews.
func (r *Registry) AddModelMetrics(m ai.ModelMetrics) {
	r.AITokens.WithLabelValues("input").Add(float64(m.InputTokens))
	r.AITokens.WithLabelValues("output").Add(float64(m.OutputTokens))
}

func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
