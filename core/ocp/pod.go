// Package ocp aggregates raw OpenShift pod and volume observations into
// daily per-cluster, per-namespace summary rows.
package ocp

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/types"
	"ocp-cost-aggregator/internal/errors"
)

const (
	gibi           = 1 << 30
	secondsPerHour = 3600
)

// podGroupKey groups pod rows into daily summary rows
type podGroupKey struct {
	day       time.Time
	clusterID string
	namespace string
	node      string
}

// podGroup accumulates metrics for one summary row
type podGroup struct {
	clusterAlias string
	resourceID   string

	usageCPUSeconds     float64
	requestCPUSeconds   float64
	effectiveCPUSeconds float64
	limitCPUSeconds     float64

	usageMemByteSeconds     float64
	requestMemByteSeconds   float64
	effectiveMemByteSeconds float64
	limitMemByteSeconds     float64

	mergedLabels labels.Labels
}

// nodeDayKey tracks node capacity per day
type nodeDayKey struct {
	day       time.Time
	clusterID string
	node      string
}

// nodeDay holds per-node capacity and the usage claimed against it
type nodeDay struct {
	// capacity per hour; the max observed value per hour wins, which keeps
	// the result independent of input file order
	capCPUSecondsByHour map[time.Time]float64
	capMemSecondsByHour map[time.Time]float64

	effectiveCPUSeconds     float64
	effectiveMemByteSeconds float64

	nodeLabels labels.Labels
}

// PodAggregator folds pod records into daily summaries
type PodAggregator struct {
	enabled *labels.EnabledKeys

	groups map[podGroupKey]*podGroup
	nodes  map[nodeDayKey]*nodeDay

	// node label rows from the node-labels partition, keyed by (day, node)
	extraNodeLabels map[nodeDayKey]labels.Labels

	// distinct non-empty resource ids mapped to their node, used by the
	// matcher
	resourceIDs map[string]string
	nodeNames   map[string]struct{}
	namespaces  map[string]struct{}

	clusterID    string
	clusterAlias string
}

// NewPodAggregator creates a pod aggregator filtering labels by enabled
func NewPodAggregator(enabled *labels.EnabledKeys) *PodAggregator {
	return &PodAggregator{
		enabled:         enabled,
		groups:          make(map[podGroupKey]*podGroup),
		nodes:           make(map[nodeDayKey]*nodeDay),
		extraNodeLabels: make(map[nodeDayKey]labels.Labels),
		resourceIDs:     make(map[string]string),
		nodeNames:       make(map[string]struct{}),
		namespaces:      make(map[string]struct{}),
	}
}

// AddNodeLabels folds one node-labels record in
func (a *PodAggregator) AddNodeLabels(rec types.NodeLabelRecord) {
	key := nodeDayKey{day: rec.UsageStart.Truncate(24 * time.Hour), clusterID: rec.ClusterID, node: rec.Node}
	a.extraNodeLabels[key] = labels.Merge(a.extraNodeLabels[key], labels.Parse(rec.NodeLabels))
}

// Add folds one pod record in
func (a *PodAggregator) Add(rec types.PodRecord) error {
	if err := checkNonNegative(map[string]float64{
		"pod_usage_cpu_core_seconds":        rec.PodUsageCPUCoreSeconds,
		"pod_request_cpu_core_seconds":      rec.PodRequestCPUCoreSeconds,
		"pod_limit_cpu_core_seconds":        rec.PodLimitCPUCoreSeconds,
		"pod_usage_memory_byte_seconds":     rec.PodUsageMemoryByteSeconds,
		"pod_request_memory_byte_seconds":   rec.PodRequestMemoryByteSeconds,
		"pod_limit_memory_byte_seconds":     rec.PodLimitMemoryByteSeconds,
		"node_capacity_cpu_core_seconds":    rec.NodeCapacityCPUCoreSeconds,
		"node_capacity_memory_byte_seconds": rec.NodeCapacityMemoryByteSeconds,
		"pod_seconds":                       rec.PodSeconds,
	}); err != nil {
		return err
	}

	if a.clusterID == "" {
		a.clusterID = rec.ClusterID
		a.clusterAlias = rec.ClusterAlias
	}
	if rec.ResourceID != "" {
		a.resourceIDs[rec.ResourceID] = rec.Node
	}
	if rec.Node != "" {
		a.nodeNames[rec.Node] = struct{}{}
	}
	if rec.Namespace != "" {
		a.namespaces[rec.Namespace] = struct{}{}
	}

	day := rec.Day()
	hour := rec.UsageStart.Truncate(time.Hour)

	nk := nodeDayKey{day: day, clusterID: rec.ClusterID, node: rec.Node}
	nd, ok := a.nodes[nk]
	if !ok {
		nd = &nodeDay{
			capCPUSecondsByHour: make(map[time.Time]float64),
			capMemSecondsByHour: make(map[time.Time]float64),
		}
		a.nodes[nk] = nd
	}
	if rec.NodeCapacityCPUCoreSeconds > nd.capCPUSecondsByHour[hour] {
		nd.capCPUSecondsByHour[hour] = rec.NodeCapacityCPUCoreSeconds
	}
	if rec.NodeCapacityMemoryByteSeconds > nd.capMemSecondsByHour[hour] {
		nd.capMemSecondsByHour[hour] = rec.NodeCapacityMemoryByteSeconds
	}
	nd.nodeLabels = labels.Merge(nd.nodeLabels, labels.Parse(rec.NodeLabels))

	// Zero pod_seconds means the pod was never observed alive in this
	// interval; the row contributes no usage.
	if rec.PodSeconds == 0 {
		return nil
	}

	gk := podGroupKey{day: day, clusterID: rec.ClusterID, namespace: rec.Namespace, node: rec.Node}
	g, ok := a.groups[gk]
	if !ok {
		g = &podGroup{mergedLabels: labels.Labels{}}
		a.groups[gk] = g
	}
	if g.clusterAlias == "" {
		g.clusterAlias = rec.ClusterAlias
	}
	if g.resourceID == "" {
		g.resourceID = rec.ResourceID
	}

	g.usageCPUSeconds += rec.PodUsageCPUCoreSeconds
	g.requestCPUSeconds += rec.PodRequestCPUCoreSeconds
	g.effectiveCPUSeconds += maxFloat(rec.PodUsageCPUCoreSeconds, rec.PodRequestCPUCoreSeconds)
	g.limitCPUSeconds += rec.PodLimitCPUCoreSeconds

	g.usageMemByteSeconds += rec.PodUsageMemoryByteSeconds
	g.requestMemByteSeconds += rec.PodRequestMemoryByteSeconds
	g.effectiveMemByteSeconds += maxFloat(rec.PodUsageMemoryByteSeconds, rec.PodRequestMemoryByteSeconds)
	g.limitMemByteSeconds += rec.PodLimitMemoryByteSeconds

	merged := labels.MergePrecedence(
		labels.Parse(rec.PodLabels),
		labels.Parse(rec.NamespaceLabels),
		labels.Parse(rec.NodeLabels),
	)
	g.mergedLabels = labels.Merge(g.mergedLabels, merged)

	nd.effectiveCPUSeconds += maxFloat(rec.PodUsageCPUCoreSeconds, rec.PodRequestCPUCoreSeconds)
	nd.effectiveMemByteSeconds += maxFloat(rec.PodUsageMemoryByteSeconds, rec.PodRequestMemoryByteSeconds)
	return nil
}

// nodeCapacity returns the day's capacity in core-hours / gigabyte-hours
func (nd *nodeDay) capacity() (cpuCoreHours, memGigHours float64) {
	for _, c := range nd.capCPUSecondsByHour {
		cpuCoreHours += c / secondsPerHour
	}
	for _, c := range nd.capMemSecondsByHour {
		memGigHours += c / secondsPerHour / gibi
	}
	return cpuCoreHours, memGigHours
}

// ClusterID returns the cluster identity observed in the input
func (a *PodAggregator) ClusterID() string { return a.clusterID }

// ClusterAlias returns the cluster alias observed in the input
func (a *PodAggregator) ClusterAlias() string { return a.clusterAlias }

// ResourceIDs returns the distinct non-empty resource ids seen, each
// mapped to the node it backs
func (a *PodAggregator) ResourceIDs() map[string]string { return a.resourceIDs }

// PodLabels returns the merged, filtered labels of a namespace on a day,
// folded across every node the namespace ran on.
func (a *PodAggregator) PodLabels(day time.Time, clusterID, namespace string) labels.Labels {
	merged := labels.Labels{}
	for k, g := range a.groups {
		if k.day.Equal(day) && k.clusterID == clusterID && k.namespace == namespace {
			merged = labels.Merge(merged, g.mergedLabels)
		}
	}
	return labels.Filter(merged, a.enabled)
}

// NodeNames returns the distinct node names seen
func (a *PodAggregator) NodeNames() map[string]struct{} { return a.nodeNames }

// Namespaces returns the distinct namespaces seen
func (a *PodAggregator) Namespaces() map[string]struct{} { return a.namespaces }

// NodeUsage describes one node-day for unallocated computation and
// compute-cost attribution.
type NodeUsage struct {
	Day       time.Time
	ClusterID string
	Node      string

	CapacityCPUCoreHours         float64
	CapacityMemoryGigabyteHours  float64
	EffectiveCPUCoreHours        float64
	EffectiveMemoryGigabyteHours float64

	// Role is master, infra, or worker, from the node role labels
	Role string
}

// NodeUsages returns per-node-day capacity and claimed usage, sorted by
// (day, cluster, node) for deterministic downstream output.
func (a *PodAggregator) NodeUsages() []NodeUsage {
	out := make([]NodeUsage, 0, len(a.nodes))
	for k, nd := range a.nodes {
		cpu, mem := nd.capacity()
		nl := labels.Merge(nd.nodeLabels, a.extraNodeLabels[k])
		out = append(out, NodeUsage{
			Day:                          k.day,
			ClusterID:                    k.clusterID,
			Node:                         k.node,
			CapacityCPUCoreHours:         cpu,
			CapacityMemoryGigabyteHours:  mem,
			EffectiveCPUCoreHours:        nd.effectiveCPUSeconds / secondsPerHour,
			EffectiveMemoryGigabyteHours: nd.effectiveMemByteSeconds / secondsPerHour / gibi,
			Role:                         nodeRole(nl),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		if out[i].ClusterID != out[j].ClusterID {
			return out[i].ClusterID < out[j].ClusterID
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// nodeRole derives the node role from its labels
func nodeRole(nl labels.Labels) string {
	if v := nl["node_role"]; v == "master" || v == "infra" {
		return v
	}
	if _, ok := nl["node-role.kubernetes.io/master"]; ok {
		return "master"
	}
	if _, ok := nl["node-role.kubernetes.io/control-plane"]; ok {
		return "master"
	}
	if _, ok := nl["node-role.kubernetes.io/infra"]; ok {
		return "infra"
	}
	return "worker"
}

// Summaries materialises the daily pod summary rows. Cluster capacity is
// the sum of node capacity across the cluster's distinct nodes on that day.
func (a *PodAggregator) Summaries() []types.OCPUsageSummary {
	type clusterDayKey struct {
		day       time.Time
		clusterID string
	}
	clusterCPU := make(map[clusterDayKey]float64)
	clusterMem := make(map[clusterDayKey]float64)
	for k, nd := range a.nodes {
		cpu, mem := nd.capacity()
		ck := clusterDayKey{day: k.day, clusterID: k.clusterID}
		clusterCPU[ck] += cpu
		clusterMem[ck] += mem
	}

	out := make([]types.OCPUsageSummary, 0, len(a.groups))
	for k, g := range a.groups {
		nk := nodeDayKey{day: k.day, clusterID: k.clusterID, node: k.node}
		var nodeCPU, nodeMem float64
		if nd, ok := a.nodes[nk]; ok {
			nodeCPU, nodeMem = nd.capacity()
		}
		ck := clusterDayKey{day: k.day, clusterID: k.clusterID}
		filtered := labels.Filter(g.mergedLabels, a.enabled)

		out = append(out, types.OCPUsageSummary{
			UUID:         uuid.New().String(),
			UsageStart:   k.day,
			ClusterID:    k.clusterID,
			ClusterAlias: g.clusterAlias,
			DataSource:   types.DataSourcePod,
			Namespace:    k.namespace,
			Node:         k.node,
			ResourceID:   g.resourceID,
			PodLabels:    labels.Serialize(filtered),
			AllLabels:    labels.Serialize(filtered),

			PodUsageCPUCoreHours:          g.usageCPUSeconds / secondsPerHour,
			PodRequestCPUCoreHours:        g.requestCPUSeconds / secondsPerHour,
			PodEffectiveUsageCPUCoreHours: g.effectiveCPUSeconds / secondsPerHour,
			PodLimitCPUCoreHours:          g.limitCPUSeconds / secondsPerHour,

			PodUsageMemoryGigabyteHours:          g.usageMemByteSeconds / secondsPerHour / gibi,
			PodRequestMemoryGigabyteHours:        g.requestMemByteSeconds / secondsPerHour / gibi,
			PodEffectiveUsageMemoryGigabyteHours: g.effectiveMemByteSeconds / secondsPerHour / gibi,
			PodLimitMemoryGigabyteHours:          g.limitMemByteSeconds / secondsPerHour / gibi,

			NodeCapacityCPUCoreHours:           nodeCPU,
			NodeCapacityMemoryGigabyteHours:    nodeMem,
			ClusterCapacityCPUCoreHours:        clusterCPU[ck],
			ClusterCapacityMemoryGigabyteHours: clusterMem[ck],
		})
	}
	sortSummaries(out)
	return out
}

// sortSummaries orders rows by (day, cluster, namespace, node, pvc) so a
// shuffled input partition yields the identical output slice.
func sortSummaries(rows []types.OCPUsageSummary) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.UsageStart.Equal(b.UsageStart) {
			return a.UsageStart.Before(b.UsageStart)
		}
		if a.ClusterID != b.ClusterID {
			return a.ClusterID < b.ClusterID
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.PersistentVolumeClaim < b.PersistentVolumeClaim
	})
}

func checkNonNegative(fields map[string]float64) error {
	for name, v := range fields {
		if v < 0 {
			return errors.Newf(errors.KindAggregationArithmetic, "negative metric %s: %v", name, v)
		}
		if v != v { // NaN
			return errors.Newf(errors.KindAggregationArithmetic, "non-finite metric %s", name)
		}
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
