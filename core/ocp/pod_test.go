package ocp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/types"
	"ocp-cost-aggregator/internal/errors"
)

var day = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func podRecord(hour int, namespace, node string) types.PodRecord {
	return types.PodRecord{
		UsageStart:                    day.Add(time.Duration(hour) * time.Hour),
		ClusterID:                     "cluster-1",
		ClusterAlias:                  "prod",
		Node:                          node,
		ResourceID:                    "i-" + node,
		Namespace:                     namespace,
		Pod:                           "pod-1",
		PodSeconds:                    3600,
		PodUsageCPUCoreSeconds:        3600,
		PodRequestCPUCoreSeconds:      7200,
		PodLimitCPUCoreSeconds:        10800,
		NodeCapacityCPUCoreSeconds:    4 * 3600,
		NodeCapacityMemoryByteSeconds: 8 * gibi * 3600,
	}
}

func TestPodAggregatorEffectiveUsage(t *testing.T) {
	agg := NewPodAggregator(labels.NewEnabledKeys(nil))
	require.NoError(t, agg.Add(podRecord(0, "web", "node-a")))

	rows := agg.Summaries()
	require.Len(t, rows, 1)
	r := rows[0]

	assert.Equal(t, "cluster-1", r.ClusterID)
	assert.Equal(t, types.DataSourcePod, r.DataSource)
	assert.InDelta(t, 1.0, r.PodUsageCPUCoreHours, 1e-9)
	assert.InDelta(t, 2.0, r.PodRequestCPUCoreHours, 1e-9)
	// effective is max(usage, request) per interval
	assert.InDelta(t, 2.0, r.PodEffectiveUsageCPUCoreHours, 1e-9)
	assert.InDelta(t, 3.0, r.PodLimitCPUCoreHours, 1e-9)
	assert.InDelta(t, 4.0, r.NodeCapacityCPUCoreHours, 1e-9)
	assert.InDelta(t, 8.0, r.NodeCapacityMemoryGigabyteHours, 1e-9)
}

func TestPodAggregatorCapacityMaxPerHour(t *testing.T) {
	// two pods observed in the same hour report different node capacity;
	// the larger wins and the node is not double counted
	agg := NewPodAggregator(labels.NewEnabledKeys(nil))

	rec1 := podRecord(0, "web", "node-a")
	rec2 := podRecord(0, "batch", "node-a")
	rec2.NodeCapacityCPUCoreSeconds = 2 * 3600

	require.NoError(t, agg.Add(rec1))
	require.NoError(t, agg.Add(rec2))

	usages := agg.NodeUsages()
	require.Len(t, usages, 1)
	assert.InDelta(t, 4.0, usages[0].CapacityCPUCoreHours, 1e-9)
}

func TestPodAggregatorOrderIndependent(t *testing.T) {
	recs := []types.PodRecord{
		podRecord(0, "web", "node-a"),
		podRecord(1, "web", "node-a"),
		podRecord(0, "batch", "node-b"),
	}

	forward := NewPodAggregator(labels.NewEnabledKeys(nil))
	for _, r := range recs {
		require.NoError(t, forward.Add(r))
	}
	backward := NewPodAggregator(labels.NewEnabledKeys(nil))
	for i := len(recs) - 1; i >= 0; i-- {
		require.NoError(t, backward.Add(recs[i]))
	}

	f, b := forward.Summaries(), backward.Summaries()
	require.Equal(t, len(f), len(b))
	for i := range f {
		f[i].UUID, b[i].UUID = "", ""
		assert.Equal(t, f[i], b[i])
	}
}

func TestPodAggregatorZeroPodSecondsContributesNoUsage(t *testing.T) {
	agg := NewPodAggregator(labels.NewEnabledKeys(nil))

	rec := podRecord(0, "web", "node-a")
	rec.PodSeconds = 0
	require.NoError(t, agg.Add(rec))

	assert.Empty(t, agg.Summaries())

	// capacity is still registered for the node day
	usages := agg.NodeUsages()
	require.Len(t, usages, 1)
	assert.InDelta(t, 4.0, usages[0].CapacityCPUCoreHours, 1e-9)
}

func TestPodAggregatorRejectsNegativeMetrics(t *testing.T) {
	agg := NewPodAggregator(labels.NewEnabledKeys(nil))

	rec := podRecord(0, "web", "node-a")
	rec.PodUsageCPUCoreSeconds = -1
	err := agg.Add(rec)
	require.Error(t, err)
	assert.Equal(t, errors.KindAggregationArithmetic, errors.KindOf(err))
}

func TestPodAggregatorClusterCapacityIdentity(t *testing.T) {
	agg := NewPodAggregator(labels.NewEnabledKeys(nil))
	require.NoError(t, agg.Add(podRecord(0, "web", "node-a")))
	require.NoError(t, agg.Add(podRecord(0, "web", "node-b")))

	var nodeSum float64
	for _, u := range agg.NodeUsages() {
		nodeSum += u.CapacityCPUCoreHours
	}
	for _, r := range agg.Summaries() {
		assert.InDelta(t, nodeSum, r.ClusterCapacityCPUCoreHours, 1e-9)
	}
}

func TestPodAggregatorLabelPrecedence(t *testing.T) {
	enabled := labels.NewEnabledKeys([]string{"tier", "env"})
	agg := NewPodAggregator(enabled)

	rec := podRecord(0, "web", "node-a")
	rec.PodLabels = `{"tier":"frontend"}`
	rec.NamespaceLabels = `{"tier":"ns","env":"prod"}`
	rec.NodeLabels = `{"tier":"node","ignored":"x"}`
	require.NoError(t, agg.Add(rec))

	rows := agg.Summaries()
	require.Len(t, rows, 1)
	assert.Equal(t, `{"env":"prod","tier":"frontend"}`, rows[0].PodLabels)
}

func TestNodeRoleFromLabels(t *testing.T) {
	assert.Equal(t, "master", nodeRole(labels.Labels{"node_role": "master"}))
	assert.Equal(t, "master", nodeRole(labels.Labels{"node-role.kubernetes.io/control-plane": ""}))
	assert.Equal(t, "infra", nodeRole(labels.Labels{"node-role.kubernetes.io/infra": ""}))
	assert.Equal(t, "worker", nodeRole(labels.Labels{"node_role": "whatever"}))
	assert.Equal(t, "worker", nodeRole(nil))
}

func TestUnallocatedRows(t *testing.T) {
	nodes := []NodeUsage{
		{
			Day: day, ClusterID: "cluster-1", Node: "worker-1", Role: "worker",
			CapacityCPUCoreHours: 10, EffectiveCPUCoreHours: 4,
			CapacityMemoryGigabyteHours: 20, EffectiveMemoryGigabyteHours: 25,
		},
		{
			Day: day, ClusterID: "cluster-1", Node: "master-1", Role: "master",
			CapacityCPUCoreHours: 8, EffectiveCPUCoreHours: 1,
		},
	}

	rows := Unallocated(nodes, "prod")
	require.Len(t, rows, 2)

	worker := rows[0]
	assert.Equal(t, types.NamespaceWorkerUnallocated, worker.Namespace)
	assert.InDelta(t, 6.0, worker.PodEffectiveUsageCPUCoreHours, 1e-9)
	// over-committed memory clamps to zero instead of going negative
	assert.InDelta(t, 0.0, worker.PodUsageMemoryGigabyteHours, 1e-9)
	assert.Equal(t, "{}", worker.PodLabels)

	master := rows[1]
	assert.Equal(t, types.NamespacePlatformUnallocated, master.Namespace)
	assert.InDelta(t, 7.0, master.PodEffectiveUsageCPUCoreHours, 1e-9)
}
