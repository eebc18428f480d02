// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// オンボーディングのコンポーネントとサンドボックスのハンドラー・ワーカーから利用する。
type MetricsCollector interface {
	RecordStepAdvanced(step string)
	RecordRegistration(result string)
	RecordPaymentOutcome(outcome string)
	RecordPollAttempt(active bool)
	RecordActivationLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordWebhookActivations(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	stepsAdvanced      *prometheus.CounterVec
	registrations      *prometheus.CounterVec
	paymentOutcomes    *prometheus.CounterVec
	pollAttempts       *prometheus.CounterVec
	activationLatency  prometheus.Histogram
	httpStatus         *prometheus.CounterVec
	webhookActivations prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		stepsAdvanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingotoday_onboarding_steps_advanced_total",
			Help: "遷移元ステップ別のオンボーディング遷移数",
		}, []string{"step"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingotoday_registrations_total",
			Help: "結果別の登録試行数",
		}, []string{"result"}),
		paymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingotoday_payment_outcomes_total",
			Help: "結果別のサブスクリプション有効化試行数",
		}, []string{"outcome"}),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingotoday_poll_attempts_total",
			Help: "サブスクリプション状態のポーリング回数",
		}, []string{"active"}),
		activationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingotoday_activation_latency_seconds",
			Help:    "決済確定から有効化確認までの時間（秒）",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 180, 300},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lingotoday_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		webhookActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lingotoday_webhook_activations_total",
			Help: "Webhookエミュレーションで有効化されたサブスクリプションの合計数",
		}),
	}

	reg.MustRegister(
		c.stepsAdvanced,
		c.registrations,
		c.paymentOutcomes,
		c.pollAttempts,
		c.activationLatency,
		c.httpStatus,
		c.webhookActivations,
	)

	return c
}

// RecordStepAdvanced はステップ遷移を記録する。
func (c *Collector) RecordStepAdvanced(step string) {
	c.stepsAdvanced.WithLabelValues(step).Inc()
}

// RecordRegistration は登録試行の結果を記録する。
func (c *Collector) RecordRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

// RecordPaymentOutcome は有効化試行の結果を記録する。
func (c *Collector) RecordPaymentOutcome(outcome string) {
	c.paymentOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPollAttempt はポーリング1回分を記録する。
func (c *Collector) RecordPollAttempt(active bool) {
	c.pollAttempts.WithLabelValues(strconv.FormatBool(active)).Inc()
}

// RecordActivationLatency は有効化確認までの時間を記録する。
func (c *Collector) RecordActivationLatency(duration time.Duration) {
	c.activationLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWebhookActivations はWebhookエミュレーションによる有効化件数を記録する。
func (c *Collector) RecordWebhookActivations(count int) {
	c.webhookActivations.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordStepAdvanced(string)             {}
func (Nop) RecordRegistration(string)             {}
func (Nop) RecordPaymentOutcome(string)           {}
func (Nop) RecordPollAttempt(bool)                {}
func (Nop) RecordActivationLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int)                  {}
func (Nop) RecordWebhookActivations(int)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
