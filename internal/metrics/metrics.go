// Package metrics はカメラセッションのPrometheusメトリクスを提供する
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shashin/internal/session"
)

const namespace = "shashin"

// 結果ラベル
const (
	resultSuccess    = "success"
	resultSuperseded = "superseded"
)

// allStates は状態ゲージを初期化する順序
var allStates = []session.State{
	session.StateClosed,
	session.StateUnbound,
	session.StateBoundWaitingMetadata,
	session.StateReady,
	session.StateCapturing,
}

// Metrics はカメラセッションのメトリクスをまとめる
type Metrics struct {
	registry *prometheus.Registry

	opens           *prometheus.CounterVec
	captures        *prometheus.CounterVec
	acquireDuration *prometheus.HistogramVec
	state           *prometheus.GaugeVec
	streamClients   prometheus.Gauge
}

// New は新しいレジストリにメトリクスを登録する
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_open_total",
			Help:      "カメラを開いた回数（結果別）",
		}, []string{"result"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_capture_total",
			Help:      "撮影した回数（結果別）",
		}, []string{"result"}),
		acquireDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "camera_acquire_duration_seconds",
			Help:      "デバイスの取得にかかった時間",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_session_state",
			Help:      "現在のセッション状態（該当する状態が1）",
		}, []string{"state"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_stream_clients",
			Help:      "MJPEGストリームの接続数",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.opens,
		m.captures,
		m.acquireDuration,
		m.state,
		m.streamClients,
	)
	m.SetState(session.StateClosed)

	return m
}

// Handler は /metrics 用のハンドラーを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はメトリクスのレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOpen はOpenの結果を記録する
func (m *Metrics) ObserveOpen(err error) {
	m.opens.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveCapture は撮影の結果を記録する
func (m *Metrics) ObserveCapture(err error) {
	m.captures.WithLabelValues(resultLabel(err)).Inc()
}

// SetState は現在の状態を記録する
func (m *Metrics) SetState(state session.State) {
	for _, s := range allStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.state.WithLabelValues(string(s)).Set(value)
	}
}

// StreamStarted はストリーム接続の開始を記録する
func (m *Metrics) StreamStarted() { m.streamClients.Inc() }

// StreamEnded はストリーム接続の終了を記録する
func (m *Metrics) StreamEnded() { m.streamClients.Dec() }

// Watch はセッションの状態変化を ctx が終わるまで記録し続ける
func (m *Metrics) Watch(ctx context.Context, sess *session.Session) {
	snapshots, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			m.SetState(snap.State)
		}
	}
}

// InstrumentAcquirer は取得時間を記録する Acquirer を返す
func (m *Metrics) InstrumentAcquirer(acquirer session.Acquirer) session.Acquirer {
	return &instrumentedAcquirer{next: acquirer, metrics: m}
}

type instrumentedAcquirer struct {
	next    session.Acquirer
	metrics *Metrics
}

func (a *instrumentedAcquirer) Acquire(ctx context.Context, constraints session.Constraints) (session.DeviceHandle, error) {
	start := time.Now()
	handle, err := a.next.Acquire(ctx, constraints)

	label := resultSuccess
	if err != nil {
		label = string(session.ClassifyAcquisitionError(err))
	}
	a.metrics.acquireDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	return handle, err
}

// resultLabel はエラーを結果ラベルに変換する
func resultLabel(err error) string {
	if err == nil {
		return resultSuccess
	}
	if errors.Is(err, session.ErrSuperseded) {
		return resultSuperseded
	}
	if kind, ok := session.KindOf(err); ok {
		return string(kind)
	}
	return string(session.KindUnknownAcquisitionFailure)
}
