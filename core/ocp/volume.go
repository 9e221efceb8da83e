package ocp

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/types"
)

// volumeGroupKey groups volume rows into daily summary rows
type volumeGroupKey struct {
	day          time.Time
	clusterID    string
	namespace    string
	node         string
	pvc          string
	pv           string
	storageClass string
}

// claimDayKey identifies a claim within a day; capacity is counted once per
// claim even when the claim is observed on several nodes (a shared PV).
type claimDayKey struct {
	day       time.Time
	clusterID string
	pv        string
	pvc       string
}

type volumeGroup struct {
	clusterAlias       string
	csiVolumeHandle    string
	usageByteSeconds   float64
	requestByteSeconds float64
	capacityBytes      float64
	volumeLabels       labels.Labels
}

// VolumeAggregator folds volume records into daily summaries
type VolumeAggregator struct {
	enabled *labels.EnabledKeys

	groups map[volumeGroupKey]*volumeGroup

	// capacity per claim-day and the nodes that observed the claim
	claimCapacity map[claimDayKey]float64
	claimNodes    map[claimDayKey][]string

	pvNames    map[string]struct{}
	csiHandles map[string]struct{}
	namespaces map[string]struct{}
}

// NewVolumeAggregator creates a volume aggregator filtering labels by enabled
func NewVolumeAggregator(enabled *labels.EnabledKeys) *VolumeAggregator {
	return &VolumeAggregator{
		enabled:       enabled,
		groups:        make(map[volumeGroupKey]*volumeGroup),
		claimCapacity: make(map[claimDayKey]float64),
		claimNodes:    make(map[claimDayKey][]string),
		pvNames:       make(map[string]struct{}),
		csiHandles:    make(map[string]struct{}),
		namespaces:    make(map[string]struct{}),
	}
}

// Add folds one volume record in
func (a *VolumeAggregator) Add(rec types.VolumeRecord) error {
	if err := checkNonNegative(map[string]float64{
		"persistentvolumeclaim_capacity_bytes":     rec.PVCCapacityBytes,
		"persistentvolumeclaim_usage_byte_seconds": rec.PVCUsageByteSeconds,
		"volume_request_storage_byte_seconds":      rec.VolumeRequestStorageByteSecs,
	}); err != nil {
		return err
	}

	if rec.PersistentVolume != "" {
		a.pvNames[rec.PersistentVolume] = struct{}{}
	}
	if rec.CSIVolumeHandle != "" {
		a.csiHandles[rec.CSIVolumeHandle] = struct{}{}
	}
	if rec.Namespace != "" {
		a.namespaces[rec.Namespace] = struct{}{}
	}

	day := rec.Day()
	// A volume with no claiming namespace has its usage bucketed to the
	// storage-unattributed namespace.
	namespace := rec.Namespace
	if namespace == "" {
		namespace = types.NamespaceStorageUnattributed
	}

	gk := volumeGroupKey{
		day:          day,
		clusterID:    rec.ClusterID,
		namespace:    namespace,
		node:         rec.Node,
		pvc:          rec.PersistentVolumeClaim,
		pv:           rec.PersistentVolume,
		storageClass: rec.StorageClass,
	}
	g, ok := a.groups[gk]
	if !ok {
		g = &volumeGroup{volumeLabels: labels.Labels{}}
		a.groups[gk] = g
	}
	if g.clusterAlias == "" {
		g.clusterAlias = rec.ClusterAlias
	}
	if g.csiVolumeHandle == "" {
		g.csiVolumeHandle = rec.CSIVolumeHandle
	}
	g.usageByteSeconds += rec.PVCUsageByteSeconds
	g.requestByteSeconds += rec.VolumeRequestStorageByteSecs
	if rec.PVCCapacityBytes > g.capacityBytes {
		g.capacityBytes = rec.PVCCapacityBytes
	}
	g.volumeLabels = labels.Merge(g.volumeLabels, labels.Parse(rec.VolumeLabels))

	ck := claimDayKey{day: day, clusterID: rec.ClusterID, pv: rec.PersistentVolume, pvc: rec.PersistentVolumeClaim}
	if rec.PVCCapacityBytes > a.claimCapacity[ck] {
		a.claimCapacity[ck] = rec.PVCCapacityBytes
	}
	a.claimNodes[ck] = appendUnique(a.claimNodes[ck], rec.Node)
	return nil
}

// PVNames returns the distinct persistent volume names seen
func (a *VolumeAggregator) PVNames() map[string]struct{} { return a.pvNames }

// CSIHandles returns the distinct non-empty CSI volume handles seen
func (a *VolumeAggregator) CSIHandles() map[string]struct{} { return a.csiHandles }

// Namespaces returns the distinct namespaces seen
func (a *VolumeAggregator) Namespaces() map[string]struct{} { return a.namespaces }

// Claims exposes the per-claim capacity view used by storage attribution
type Claim struct {
	Day          time.Time
	ClusterID    string
	ClusterAlias string
	Namespace    string
	Node         string
	PVC          string
	PV           string
	StorageClass string
	CSIHandle    string

	CapacityBytes float64
	Labels        labels.Labels
}

// Claims returns one entry per summary group, sorted deterministically
func (a *VolumeAggregator) Claims() []Claim {
	out := make([]Claim, 0, len(a.groups))
	for k, g := range a.groups {
		out = append(out, Claim{
			Day:           k.day,
			ClusterID:     k.clusterID,
			ClusterAlias:  g.clusterAlias,
			Namespace:     k.namespace,
			Node:          k.node,
			PVC:           k.pvc,
			PV:            k.pv,
			StorageClass:  k.storageClass,
			CSIHandle:     g.csiVolumeHandle,
			CapacityBytes: g.capacityBytes,
			Labels:        labels.Filter(g.volumeLabels, a.enabled),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if !x.Day.Equal(y.Day) {
			return x.Day.Before(y.Day)
		}
		if x.ClusterID != y.ClusterID {
			return x.ClusterID < y.ClusterID
		}
		if x.PV != y.PV {
			return x.PV < y.PV
		}
		if x.PVC != y.PVC {
			return x.PVC < y.PVC
		}
		if x.Namespace != y.Namespace {
			return x.Namespace < y.Namespace
		}
		return x.Node < y.Node
	})
	return out
}

// Summaries materialises the daily volume summary rows. Capacity
// gigabyte-months are attached to the lexicographically smallest node that
// observed the claim, so a shared PV is counted once per claim per day.
func (a *VolumeAggregator) Summaries(podLabelsFor func(day time.Time, clusterID, namespace string) labels.Labels) []types.OCPUsageSummary {
	canonicalNode := make(map[claimDayKey]string, len(a.claimNodes))
	for ck, nodes := range a.claimNodes {
		sorted := append([]string(nil), nodes...)
		sort.Strings(sorted)
		canonicalNode[ck] = sorted[0]
	}

	out := make([]types.OCPUsageSummary, 0, len(a.groups))
	for k, g := range a.groups {
		secondsInMonth := types.SecondsInMonth(k.day)

		ck := claimDayKey{day: k.day, clusterID: k.clusterID, pv: k.pv, pvc: k.pvc}
		var capacityGig, capacityGigMonths float64
		if canonicalNode[ck] == k.node {
			capacityGig = a.claimCapacity[ck] / gibi
			// days_in_month / days_in_month cancels: a claim alive for the
			// day carries its full gigabyte capacity as gigabyte-months
			capacityGigMonths = capacityGig
		}

		volLabels := labels.Filter(g.volumeLabels, a.enabled)
		all := volLabels
		if podLabelsFor != nil {
			all = labels.Merge(podLabelsFor(k.day, k.clusterID, k.namespace), volLabels)
		}

		out = append(out, types.OCPUsageSummary{
			UUID:                  uuid.New().String(),
			UsageStart:            k.day,
			ClusterID:             k.clusterID,
			ClusterAlias:          g.clusterAlias,
			DataSource:            types.DataSourceStorage,
			Namespace:             k.namespace,
			Node:                  k.node,
			PersistentVolumeClaim: k.pvc,
			PersistentVolume:      k.pv,
			StorageClass:          k.storageClass,
			VolumeLabels:          labels.Serialize(volLabels),
			AllLabels:             labels.Serialize(all),

			PVCCapacityGigabyte:                capacityGig,
			PVCCapacityGigabyteMonths:          capacityGigMonths,
			PVCUsageGigabyteMonths:             g.usageByteSeconds / gibi / secondsInMonth,
			VolumeRequestStorageGigabyteMonths: g.requestByteSeconds / gibi / secondsInMonth,
		})
	}
	sortSummaries(out)
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
