// Package types - Input records and partition identity
package types

import (
	"fmt"
	"time"
)

// ProviderKind distinguishes the two telemetry sources
type ProviderKind string

const (
	KindOCP ProviderKind = "OCP"
	KindAWS ProviderKind = "AWS"
)

// Object-store subtypes under a partition prefix.
const (
	SubtypePodUsage   = "openshift_pod_usage_line_items_daily"
	SubtypeStorage    = "openshift_storage_usage_line_items_daily"
	SubtypeNodeLabels = "openshift_node_labels_line_items_daily"
	SubtypeAWSLine    = "aws_line_items_daily"
)

// PartitionKey scopes all inputs and outputs of a run
type PartitionKey struct {
	// OrgID is the organisation identifier; doubles as the warehouse schema
	OrgID string

	// Kind is the provider kind of this partition
	Kind ProviderKind

	// SourceUUID identifies the provider source
	SourceUUID string

	// Year is YYYY, Month is MM
	Year  string
	Month string
}

// Prefix returns the object-store prefix for a subtype of this partition
func (k PartitionKey) Prefix(subtype string) string {
	return fmt.Sprintf("data/%s/%s/source=%s/year=%s/month=%s/%s/",
		k.OrgID, k.Kind, k.SourceUUID, k.Year, k.Month, subtype)
}

// MonthStart returns midnight on the first day of the partition month
func (k PartitionKey) MonthStart() (time.Time, error) {
	return time.Parse("2006-01", k.Year+"-"+k.Month)
}

// PodRecord is an hourly or daily observation of a pod on a node
type PodRecord struct {
	UsageStart   time.Time `parquet:"usage_start"`
	ClusterID    string    `parquet:"cluster_id,optional"`
	ClusterAlias string    `parquet:"cluster_alias,optional"`
	Node         string    `parquet:"node,optional"`
	ResourceID   string    `parquet:"resource_id,optional"`
	Namespace    string    `parquet:"namespace,optional"`
	Pod          string    `parquet:"pod,optional"`

	PodLabels       string `parquet:"pod_labels,optional"`
	NodeLabels      string `parquet:"node_labels,optional"`
	NamespaceLabels string `parquet:"namespace_labels,optional"`

	PodUsageCPUCoreSeconds      float64 `parquet:"pod_usage_cpu_core_seconds,optional"`
	PodRequestCPUCoreSeconds    float64 `parquet:"pod_request_cpu_core_seconds,optional"`
	PodLimitCPUCoreSeconds      float64 `parquet:"pod_limit_cpu_core_seconds,optional"`
	PodUsageMemoryByteSeconds   float64 `parquet:"pod_usage_memory_byte_seconds,optional"`
	PodRequestMemoryByteSeconds float64 `parquet:"pod_request_memory_byte_seconds,optional"`
	PodLimitMemoryByteSeconds   float64 `parquet:"pod_limit_memory_byte_seconds,optional"`

	NodeCapacityCPUCoreSeconds    float64 `parquet:"node_capacity_cpu_core_seconds,optional"`
	NodeCapacityMemoryByteSeconds float64 `parquet:"node_capacity_memory_byte_seconds,optional"`

	// PodSeconds is the observed pod lifetime within the interval; zero
	// means the row contributes no usage
	PodSeconds float64 `parquet:"pod_seconds,optional"`
}

// Day truncates the observation to day granularity
func (r PodRecord) Day() time.Time {
	return r.UsageStart.Truncate(24 * time.Hour)
}

// VolumeRecord is an observation of a persistent volume claim
type VolumeRecord struct {
	UsageStart            time.Time `parquet:"usage_start"`
	ClusterID             string    `parquet:"cluster_id,optional"`
	ClusterAlias          string    `parquet:"cluster_alias,optional"`
	Namespace             string    `parquet:"namespace,optional"`
	Node                  string    `parquet:"node,optional"`
	PersistentVolumeClaim string    `parquet:"persistentvolumeclaim,optional"`
	PersistentVolume      string    `parquet:"persistentvolume,optional"`
	StorageClass          string    `parquet:"storageclass,optional"`
	CSIVolumeHandle       string    `parquet:"csi_volume_handle,optional"`

	VolumeLabels string `parquet:"volume_labels,optional"`

	PVCCapacityBytes             float64 `parquet:"persistentvolumeclaim_capacity_bytes,optional"`
	PVCCapacityByteSeconds       float64 `parquet:"persistentvolumeclaim_capacity_byte_seconds,optional"`
	PVCUsageByteSeconds          float64 `parquet:"persistentvolumeclaim_usage_byte_seconds,optional"`
	VolumeRequestStorageByteSecs float64 `parquet:"volume_request_storage_byte_seconds,optional"`
}

// Day truncates the observation to day granularity
func (r VolumeRecord) Day() time.Time {
	return r.UsageStart.Truncate(24 * time.Hour)
}

// NodeLabelRecord carries daily node labels for precedence merging
type NodeLabelRecord struct {
	UsageStart time.Time `parquet:"usage_start"`
	ClusterID  string    `parquet:"cluster_id,optional"`
	Node       string    `parquet:"node,optional"`
	NodeLabels string    `parquet:"node_labels,optional"`
}

// AWS Cost-and-Usage-Report line-item types that affect cost routing.
const (
	LineItemTypeUsage       = "Usage"
	LineItemTypeTax         = "Tax"
	LineItemTypeSavingsPlan = "SavingsPlanCoveredUsage"
)

// BillingEntityMarketplace switches product_code to the marketplace
// product name when present.
const BillingEntityMarketplace = "AWS Marketplace"

// AWSLineItem is one CUR row
type AWSLineItem struct {
	UsageStart time.Time `parquet:"lineitem_usagestartdate"`

	ResourceID  string `parquet:"lineitem_resourceid,optional"`
	ProductCode string `parquet:"lineitem_productcode,optional"`

	ProductFamily    string `parquet:"product_productfamily,optional"`
	ProductName      string `parquet:"product_productname,optional"`
	InstanceType     string `parquet:"product_instancetype,optional"`
	Region           string `parquet:"product_region,optional"`
	UsageType        string `parquet:"lineitem_usagetype,optional"`
	Operation        string `parquet:"lineitem_operation,optional"`
	LineItemType     string `parquet:"lineitem_lineitemtype,optional"`
	BillingEntity    string `parquet:"bill_billingentity,optional"`
	UsageAccountID   string `parquet:"lineitem_usageaccountid,optional"`
	AvailabilityZone string `parquet:"lineitem_availabilityzone,optional"`
	CurrencyCode     string `parquet:"lineitem_currencycode,optional"`
	PricingUnit      string `parquet:"pricing_unit,optional"`

	UsageAmount              float64 `parquet:"lineitem_usageamount,optional"`
	UnblendedCost            float64 `parquet:"lineitem_unblendedcost,optional"`
	UnblendedRate            float64 `parquet:"lineitem_unblendedrate,optional"`
	BlendedCost              float64 `parquet:"lineitem_blendedcost,optional"`
	SavingsPlanEffectiveCost float64 `parquet:"savingsplan_savingsplaneffectivecost,optional"`

	// ResourceTags is a string-to-string map serialised as JSON
	ResourceTags string `parquet:"resourcetags,optional"`

	// CostCategory is the AWS cost-category map serialised as JSON
	CostCategory string `parquet:"costcategory,optional"`
}

// Day truncates the line item to day granularity
func (r AWSLineItem) Day() time.Time {
	return r.UsageStart.Truncate(24 * time.Hour)
}
