// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バッチワーカーや確認サービスから利用する。
type MetricsCollector interface {
	RecordDraftCreated()
	RecordFallbackGeneration()
	RecordPublishSuccess()
	RecordPublishFailure(reason string)
	RecordMailSent(kind string)
	RecordMailFailure(kind string)
	RecordBatchDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	draftCreated  prometheus.Counter
	fallbackGen   prometheus.Counter
	publishOK     prometheus.Counter
	publishFail   *prometheus.CounterVec
	mailSent      *prometheus.CounterVec
	mailFail      *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		draftCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopost_drafts_created_total",
			Help: "作成されたドラフトの合計数",
		}),
		fallbackGen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopost_fallback_generations_total",
			Help: "フォールバックテンプレートで生成されたドラフトの合計数",
		}),
		publishOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopost_publish_success_total",
			Help: "投稿成功の合計数",
		}),
		publishFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopost_publish_fail_total",
			Help: "投稿失敗の理由別合計数",
		}, []string{"reason"}),
		mailSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopost_mail_sent_total",
			Help: "送信されたメールの種別別合計数",
		}, []string{"kind"}),
		mailFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopost_mail_fail_total",
			Help: "メール送信失敗の種別別合計数",
		}, []string{"kind"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autopost_batch_duration_seconds",
			Help:    "生成バッチ1回あたりの実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.draftCreated,
		c.fallbackGen,
		c.publishOK,
		c.publishFail,
		c.mailSent,
		c.mailFail,
		c.batchDuration,
	)

	return c
}

// RecordDraftCreated はドラフト作成を記録する。
func (c *Collector) RecordDraftCreated() {
	c.draftCreated.Inc()
}

// RecordFallbackGeneration はフォールバック生成を記録する。
func (c *Collector) RecordFallbackGeneration() {
	c.fallbackGen.Inc()
}

// RecordPublishSuccess は投稿成功を記録する。
func (c *Collector) RecordPublishSuccess() {
	c.publishOK.Inc()
}

// RecordPublishFailure は投稿失敗を理由付きで記録する。
func (c *Collector) RecordPublishFailure(reason string) {
	c.publishFail.WithLabelValues(reason).Inc()
}

// RecordMailSent はメール送信成功を記録する。
func (c *Collector) RecordMailSent(kind string) {
	c.mailSent.WithLabelValues(kind).Inc()
}

// RecordMailFailure はメール送信失敗を記録する。
func (c *Collector) RecordMailFailure(kind string) {
	c.mailFail.WithLabelValues(kind).Inc()
}

// RecordBatchDuration はバッチ実行時間を記録する。
func (c *Collector) RecordBatchDuration(duration time.Duration) {
	c.batchDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
