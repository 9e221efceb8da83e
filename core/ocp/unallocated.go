package ocp

import (
	"github.com/google/uuid"

	"ocp-cost-aggregator/core/types"
)

// Unallocated produces the residual-capacity rows: capacity present on a
// node that no pod's effective usage claims. Nodes carrying a master or
// infra role report under "Platform unallocated", all others under
// "Worker unallocated". Residuals are clamped at zero so a node whose pods
// over-commit never reports negative capacity.
func Unallocated(nodes []NodeUsage, clusterAlias string) []types.OCPUsageSummary {
	out := make([]types.OCPUsageSummary, 0, len(nodes))
	for _, n := range nodes {
		namespace := types.NamespaceWorkerUnallocated
		if n.Role == "master" || n.Role == "infra" {
			namespace = types.NamespacePlatformUnallocated
		}

		residualCPU := n.CapacityCPUCoreHours - n.EffectiveCPUCoreHours
		if residualCPU < 0 {
			residualCPU = 0
		}
		residualMem := n.CapacityMemoryGigabyteHours - n.EffectiveMemoryGigabyteHours
		if residualMem < 0 {
			residualMem = 0
		}

		out = append(out, types.OCPUsageSummary{
			UUID:         uuid.New().String(),
			UsageStart:   n.Day,
			ClusterID:    n.ClusterID,
			ClusterAlias: clusterAlias,
			DataSource:   types.DataSourcePod,
			Namespace:    namespace,
			Node:         n.Node,
			PodLabels:    "{}",
			AllLabels:    "{}",

			PodUsageCPUCoreHours:          residualCPU,
			PodRequestCPUCoreHours:        residualCPU,
			PodEffectiveUsageCPUCoreHours: residualCPU,

			PodUsageMemoryGigabyteHours:          residualMem,
			PodRequestMemoryGigabyteHours:        residualMem,
			PodEffectiveUsageMemoryGigabyteHours: residualMem,

			NodeCapacityCPUCoreHours:        n.CapacityCPUCoreHours,
			NodeCapacityMemoryGigabyteHours: n.CapacityMemoryGigabyteHours,
		})
	}
	return out
}
