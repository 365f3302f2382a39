package rga

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ReplicaCollector exports replica gauges to Prometheus.
type ReplicaCollector struct {
	replica *Replica

	nodesTotal      *prometheus.Desc
	tombstonesTotal *prometheus.Desc
	visibleChars    *prometheus.Desc
	clockPosition   *prometheus.Desc
}

// NewReplicaCollector builds a collector for one replica; extra labels
// (say, the document name) keep collectors for several replicas apart
// in one registry.
func NewReplicaCollector(r *Replica, extra prometheus.Labels) *ReplicaCollector {
	labels := prometheus.Labels{"replica": strconv.FormatUint(r.Src(), 16)}
	for k, v := range extra {
		labels[k] = v
	}
	return &ReplicaCollector{
		replica: r,
		nodesTotal: prometheus.NewDesc(
			"rga_nodes_total",
			"Stored nodes, sentinels and tombstones included",
			nil, labels,
		),
		tombstonesTotal: prometheus.NewDesc(
			"rga_tombstones_total",
			"Nodes logically deleted but retained",
			nil, labels,
		),
		visibleChars: prometheus.NewDesc(
			"rga_visible_characters",
			"Characters currently in the document",
			nil, labels,
		),
		clockPosition: prometheus.NewDesc(
			"rga_clock_position",
			"Lamport counter of the replica clock",
			nil, labels,
		),
	}
}

func (c *ReplicaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nodesTotal
	ch <- c.tombstonesTotal
	ch <- c.visibleChars
	ch <- c.clockPosition
}

func (c *ReplicaCollector) Collect(ch chan<- prometheus.Metric) {
	var nodes, tombstones, visible float64
	c.replica.nodes.Range(func(_ ID, n *node) bool {
		nodes++
		if n.sentinel {
			return true
		}
		if n.deleted.Load() {
			tombstones++
		} else {
			visible++
		}
		return true
	})
	ch <- prometheus.MustNewConstMetric(c.nodesTotal, prometheus.GaugeValue, nodes)
	ch <- prometheus.MustNewConstMetric(c.tombstonesTotal, prometheus.GaugeValue, tombstones)
	ch <- prometheus.MustNewConstMetric(c.visibleChars, prometheus.GaugeValue, visible)
	ch <- prometheus.MustNewConstMetric(c.clockPosition, prometheus.GaugeValue, float64(c.replica.Progress()))
}
