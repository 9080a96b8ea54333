// Package sntlmetrics instruments a sntl.NvmeTransport with Prometheus
// metrics: command counts by opcode and outcome, and issue latency. It is
// consumed only by the demo CLI (cmd/sntlcheck) — the core translator
// package never imports Prometheus, keeping it usable in contexts (e.g. a
// kernel-adjacent daemon) that don't want a metrics registry pulled in.
// Modeled on open-source-firmware-go-tcg-storage's cmd/tcgdiskstat
// metricCollector: a small set of const/instrumented metrics registered
// against a caller-supplied prometheus.Registerer rather than the global
// default registry.
package sntlmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	sntl "github.com/coreos/go-sntl"
	"github.com/coreos/go-sntl/nvme"
)

// Metrics holds the collectors an InstrumentedTransport reports to.
type Metrics struct {
	commandsTotal  *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	resetsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers a Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntl_nvme_commands_total",
			Help: "NVMe commands issued by the translator, by queue and outcome.",
		}, []string{"queue", "opcode", "outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sntl_nvme_command_duration_seconds",
			Help:    "Time spent waiting for an NVMe command completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		resetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntl_nvme_resets_total",
			Help: "Controller/subsystem resets issued through the transport.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.commandsTotal, m.commandLatency, m.resetsTotal)
	return m
}

// InstrumentedTransport wraps a sntl.NvmeTransport, recording metrics
// around every call without altering behavior.
type InstrumentedTransport struct {
	Next    sntl.NvmeTransport
	Metrics *Metrics
}

func outcome(status uint32) string {
	s := nvme.StatusDword(status)
	if s.Success() {
		return "success"
	}
	return "error"
}

func (t InstrumentedTransport) IssueAdmin(opcode byte, nsid uint32, cdw [6]uint32, dir sntl.BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	start := time.Now()
	status, result := t.Next.IssueAdmin(opcode, nsid, cdw, dir, data, timeout)
	t.Metrics.commandLatency.WithLabelValues("admin").Observe(time.Since(start).Seconds())
	t.Metrics.commandsTotal.WithLabelValues("admin", opcodeLabel(opcode), outcome(status)).Inc()
	return status, result
}

func (t InstrumentedTransport) IssueIO(opcode byte, nsid uint32, cdw [6]uint32, dir sntl.BufDir, data []byte, timeout time.Duration) (uint32, uint32) {
	start := time.Now()
	status, result := t.Next.IssueIO(opcode, nsid, cdw, dir, data, timeout)
	t.Metrics.commandLatency.WithLabelValues("io").Observe(time.Since(start).Seconds())
	t.Metrics.commandsTotal.WithLabelValues("io", opcodeLabel(opcode), outcome(status)).Inc()
	return status, result
}

func (t InstrumentedTransport) Reset(kind nvme.ResetKind) {
	t.Next.Reset(kind)
	label := "controller"
	if kind == nvme.ResetSubsystem {
		label = "subsystem"
	}
	t.Metrics.resetsTotal.WithLabelValues(label).Inc()
}

func opcodeLabel(opcode byte) string {
	const hexDigits = "0123456789abcdef"
	return "0x" + string([]byte{hexDigits[opcode>>4], hexDigits[opcode&0x0f]})
}
