// Package types - Daily summary rows
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DataSource distinguishes what a summary row accounts for
type DataSource string

const (
	DataSourcePod     DataSource = "Pod"
	DataSourceStorage DataSource = "Storage"
	DataSourceNode    DataSource = "Node"
)

// Synthetic namespaces for capacity and cost that no workload claims.
const (
	NamespaceWorkerUnallocated   = "Worker unallocated"
	NamespacePlatformUnallocated = "Platform unallocated"
	NamespaceStorageUnattributed = "Storage unattributed"
	NamespaceNetworkUnattributed = "Network unattributed"
)

// DataTransferDirection classifies network line items
type DataTransferDirection string

const (
	TransferIn   DataTransferDirection = "IN"
	TransferOut  DataTransferDirection = "OUT"
	TransferNone DataTransferDirection = ""
)

// OCPUsageSummary is one daily OCP-only summary row
type OCPUsageSummary struct {
	UUID         string
	UsageStart   time.Time
	ClusterID    string
	ClusterAlias string
	DataSource   DataSource
	Namespace    string
	Node         string
	ResourceID   string

	PersistentVolumeClaim string
	PersistentVolume      string
	StorageClass          string

	// PodLabels is the merged, filtered label map serialised as JSON
	PodLabels    string
	VolumeLabels string
	AllLabels    string

	PodUsageCPUCoreHours          float64
	PodRequestCPUCoreHours        float64
	PodEffectiveUsageCPUCoreHours float64
	PodLimitCPUCoreHours          float64

	PodUsageMemoryGigabyteHours          float64
	PodRequestMemoryGigabyteHours        float64
	PodEffectiveUsageMemoryGigabyteHours float64
	PodLimitMemoryGigabyteHours          float64

	NodeCapacityCPUCoreHours           float64
	NodeCapacityMemoryGigabyteHours    float64
	ClusterCapacityCPUCoreHours        float64
	ClusterCapacityMemoryGigabyteHours float64

	PVCCapacityGigabyte                float64
	PVCCapacityGigabyteMonths          float64
	PVCUsageGigabyteMonths             float64
	VolumeRequestStorageGigabyteMonths float64
}

// CostFields carries every cost column of an attributed row. Markup partner
// fields are derived, never read from input.
type CostFields struct {
	UnblendedCost            decimal.Decimal
	MarkupCost               decimal.Decimal
	BlendedCost              decimal.Decimal
	MarkupCostBlended        decimal.Decimal
	SavingsPlanEffectiveCost decimal.Decimal
	MarkupCostSavingsPlan    decimal.Decimal
	CalculatedAmortizedCost  decimal.Decimal
	MarkupCostAmortized      decimal.Decimal
}

// Add returns the field-wise sum of two cost sets
func (c CostFields) Add(o CostFields) CostFields {
	return CostFields{
		UnblendedCost:            c.UnblendedCost.Add(o.UnblendedCost),
		MarkupCost:               c.MarkupCost.Add(o.MarkupCost),
		BlendedCost:              c.BlendedCost.Add(o.BlendedCost),
		MarkupCostBlended:        c.MarkupCostBlended.Add(o.MarkupCostBlended),
		SavingsPlanEffectiveCost: c.SavingsPlanEffectiveCost.Add(o.SavingsPlanEffectiveCost),
		MarkupCostSavingsPlan:    c.MarkupCostSavingsPlan.Add(o.MarkupCostSavingsPlan),
		CalculatedAmortizedCost:  c.CalculatedAmortizedCost.Add(o.CalculatedAmortizedCost),
		MarkupCostAmortized:      c.MarkupCostAmortized.Add(o.MarkupCostAmortized),
	}
}

// Scale returns every field multiplied by ratio
func (c CostFields) Scale(ratio decimal.Decimal) CostFields {
	return CostFields{
		UnblendedCost:            c.UnblendedCost.Mul(ratio),
		MarkupCost:               c.MarkupCost.Mul(ratio),
		BlendedCost:              c.BlendedCost.Mul(ratio),
		MarkupCostBlended:        c.MarkupCostBlended.Mul(ratio),
		SavingsPlanEffectiveCost: c.SavingsPlanEffectiveCost.Mul(ratio),
		MarkupCostSavingsPlan:    c.MarkupCostSavingsPlan.Mul(ratio),
		CalculatedAmortizedCost:  c.CalculatedAmortizedCost.Mul(ratio),
		MarkupCostAmortized:      c.MarkupCostAmortized.Mul(ratio),
	}
}

// ApplyMarkup fills every markup partner field as cost * markup
func (c CostFields) ApplyMarkup(markup decimal.Decimal) CostFields {
	c.MarkupCost = c.UnblendedCost.Mul(markup)
	c.MarkupCostBlended = c.BlendedCost.Mul(markup)
	c.MarkupCostSavingsPlan = c.SavingsPlanEffectiveCost.Mul(markup)
	c.MarkupCostAmortized = c.CalculatedAmortizedCost.Mul(markup)
	return c
}

// OCPAWSCostSummary is one daily OCP-on-AWS attributed summary row
type OCPAWSCostSummary struct {
	UUID         string
	UsageStart   time.Time
	ClusterID    string
	ClusterAlias string
	DataSource   DataSource
	Namespace    string
	Node         string

	PersistentVolumeClaim string
	PersistentVolume      string
	StorageClass          string

	ResourceID       string
	ProductCode      string
	ProductFamily    string
	InstanceType     string
	UsageAccountID   string
	AccountAliasID   string
	AvailabilityZone string
	Region           string
	Unit             string
	CurrencyCode     string

	UsageAmount decimal.Decimal
	Costs       CostFields

	DataTransferDirection          DataTransferDirection
	InfrastructureDataInGigabytes  decimal.Decimal
	InfrastructureDataOutGigabytes decimal.Decimal

	// Tags is the enabled-key-filtered AWS tag map serialised as JSON
	Tags string

	// AWSCostCategory is the cost-category map serialised as JSON
	AWSCostCategory string

	ResourceIDMatched bool
	MatchedTag        string
}
