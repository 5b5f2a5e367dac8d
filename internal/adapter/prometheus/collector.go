// Package prometheus exposes federation state as Prometheus gauges. Values
// are read from the live services at scrape time.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
)

// ProposalSource lists federation proposals.
type ProposalSource interface {
	List() []federation.Proposal
}

// FitnessSource reports the latest fitness per cluster.
type FitnessSource interface {
	Fitness() map[string]float64
	AggregateFitness() (float64, bool)
}

// ModeSource reports the current governance mode.
type ModeSource interface {
	Mode() governance.Mode
}

const namespace = "govcore"

// Collector implements prometheus.Collector over the federation services.
// Any source may be nil.
type Collector struct {
	proposals ProposalSource
	fitness   FitnessSource
	mode      ModeSource

	proposalsDesc *prometheus.Desc
	yesVotesDesc  *prometheus.Desc
	clusterDesc   *prometheus.Desc
	aggregateDesc *prometheus.Desc
	modeDesc      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector.
func NewCollector(proposals ProposalSource, fitness FitnessSource, mode ModeSource) *Collector {
	return &Collector{
		proposals: proposals,
		fitness:   fitness,
		mode:      mode,
		proposalsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "consensus", "proposals"),
			"Known federation proposals by execution state.",
			[]string{"state"}, nil),
		yesVotesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "consensus", "pending_yes_votes"),
			"Yes votes on proposals that have not reached quorum.",
			[]string{"proposal_id"}, nil),
		clusterDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "federation", "cluster_fitness"),
			"Latest fitness reported by each cluster.",
			[]string{"cluster_id"}, nil),
		aggregateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "federation", "aggregate_fitness"),
			"Mean of the latest fitness reported by each cluster.",
			nil, nil),
		modeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "governance", "mode"),
			"Current governance mode (1 for the active mode).",
			[]string{"mode"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.proposalsDesc
	ch <- c.yesVotesDesc
	ch <- c.clusterDesc
	ch <- c.aggregateDesc
	ch <- c.modeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.proposals != nil {
		var executed, pending int
		for _, p := range c.proposals.List() {
			if p.IsExecuted {
				executed++
				continue
			}
			pending++
			ch <- prometheus.MustNewConstMetric(c.yesVotesDesc, prometheus.GaugeValue, float64(p.YesCount()), p.ID)
		}
		ch <- prometheus.MustNewConstMetric(c.proposalsDesc, prometheus.GaugeValue, float64(executed), "executed")
		ch <- prometheus.MustNewConstMetric(c.proposalsDesc, prometheus.GaugeValue, float64(pending), "pending")
	}

	if c.fitness != nil {
		for id, f := range c.fitness.Fitness() {
			ch <- prometheus.MustNewConstMetric(c.clusterDesc, prometheus.GaugeValue, f, id)
		}
		if agg, ok := c.fitness.AggregateFitness(); ok {
			ch <- prometheus.MustNewConstMetric(c.aggregateDesc, prometheus.GaugeValue, agg)
		}
	}

	if c.mode != nil {
		current := c.mode.Mode()
		for _, m := range []governance.Mode{governance.ModeObserve, governance.ModeSimulated, governance.ModeCommit} {
			v := 0.0
			if m == current {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.modeDesc, prometheus.GaugeValue, v, string(m))
		}
	}
}

// NewRegistry returns a registry holding c plus the Go runtime and process
// collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
