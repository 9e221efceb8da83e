// Package db implements the warehouse writer: transactional
// truncate-and-bulk-load of daily summary tables over pgx.
package db

import (
	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/rollup"
	"ocp-cost-aggregator/core/types"
)

// Target summary tables. The schema (org id) qualifies every name at
// write time; the tables must pre-exist, no DDL is emitted.
const (
	TableOCPUsageSummary = "reporting_ocpusagelineitem_daily_summary"

	TableOCPAWSDetailed  = "reporting_ocpawscostlineitem_project_daily_summary"
	TableOCPAWSCost      = "reporting_ocpaws_cost_summary_p"
	TableOCPAWSByAccount = "reporting_ocpaws_cost_summary_by_account_p"
	TableOCPAWSByService = "reporting_ocpaws_cost_summary_by_service_p"
	TableOCPAWSByRegion  = "reporting_ocpaws_cost_summary_by_region_p"
	TableOCPAWSCompute   = "reporting_ocpaws_compute_summary_p"
	TableOCPAWSStorage   = "reporting_ocpaws_storage_summary_p"
	TableOCPAWSDatabase  = "reporting_ocpaws_database_summary_p"
	TableOCPAWSNetwork   = "reporting_ocpaws_network_summary_p"
)

// costPrecision is the fractional precision preserved in the warehouse;
// rounding is half-to-even and happens only here, at the write boundary.
const costPrecision = 9

func money(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(costPrecision)
}

var ocpUsageColumns = []string{
	"uuid", "usage_start", "source_uuid", "year", "month",
	"cluster_id", "cluster_alias", "data_source", "namespace", "node", "resource_id",
	"persistentvolumeclaim", "persistentvolume", "storageclass",
	"pod_labels", "volume_labels", "all_labels",
	"pod_usage_cpu_core_hours", "pod_request_cpu_core_hours",
	"pod_effective_usage_cpu_core_hours", "pod_limit_cpu_core_hours",
	"pod_usage_memory_gigabyte_hours", "pod_request_memory_gigabyte_hours",
	"pod_effective_usage_memory_gigabyte_hours", "pod_limit_memory_gigabyte_hours",
	"node_capacity_cpu_core_hours", "node_capacity_memory_gigabyte_hours",
	"cluster_capacity_cpu_core_hours", "cluster_capacity_memory_gigabyte_hours",
	"persistentvolumeclaim_capacity_gigabyte", "persistentvolumeclaim_capacity_gigabyte_months",
	"persistentvolumeclaim_usage_gigabyte_months", "volume_request_storage_gigabyte_months",
}

func ocpUsageValues(p Partition, r types.OCPUsageSummary) []any {
	return []any{
		r.UUID, r.UsageStart, p.SourceUUID, p.Year, p.Month,
		r.ClusterID, r.ClusterAlias, string(r.DataSource), r.Namespace, r.Node, r.ResourceID,
		r.PersistentVolumeClaim, r.PersistentVolume, r.StorageClass,
		r.PodLabels, r.VolumeLabels, r.AllLabels,
		r.PodUsageCPUCoreHours, r.PodRequestCPUCoreHours,
		r.PodEffectiveUsageCPUCoreHours, r.PodLimitCPUCoreHours,
		r.PodUsageMemoryGigabyteHours, r.PodRequestMemoryGigabyteHours,
		r.PodEffectiveUsageMemoryGigabyteHours, r.PodLimitMemoryGigabyteHours,
		r.NodeCapacityCPUCoreHours, r.NodeCapacityMemoryGigabyteHours,
		r.ClusterCapacityCPUCoreHours, r.ClusterCapacityMemoryGigabyteHours,
		r.PVCCapacityGigabyte, r.PVCCapacityGigabyteMonths,
		r.PVCUsageGigabyteMonths, r.VolumeRequestStorageGigabyteMonths,
	}
}

var rollupColumns = []string{
	"uuid", "usage_start", "source_uuid", "year", "month",
	"cluster_id", "cluster_alias", "data_source", "namespace", "node",
	"persistentvolumeclaim", "persistentvolume", "storageclass",
	"resource_id", "product_code", "product_family", "instance_type",
	"usage_account_id", "account_alias_id", "availability_zone", "region",
	"unit", "currency_code", "usage_amount",
	"unblended_cost", "markup_cost",
	"blended_cost", "markup_cost_blended",
	"savingsplan_effective_cost", "markup_cost_savingsplan",
	"calculated_amortized_cost", "markup_cost_amortized",
	"data_transfer_direction",
	"infrastructure_data_in_gigabytes", "infrastructure_data_out_gigabytes",
	"tags", "aws_cost_category", "resource_id_matched", "matched_tag",
}

func rollupValues(p Partition, r rollup.Row) []any {
	return []any{
		r.UUID, r.UsageStart, p.SourceUUID, p.Year, p.Month,
		r.ClusterID, r.ClusterAlias, string(r.DataSource), r.Namespace, r.Node,
		r.PersistentVolumeClaim, r.PersistentVolume, r.StorageClass,
		r.ResourceID, r.ProductCode, r.ProductFamily, r.InstanceType,
		r.UsageAccountID, r.AccountAliasID, r.AvailabilityZone, r.Region,
		r.Unit, r.CurrencyCode, money(r.UsageAmount),
		money(r.Costs.UnblendedCost), money(r.Costs.MarkupCost),
		money(r.Costs.BlendedCost), money(r.Costs.MarkupCostBlended),
		money(r.Costs.SavingsPlanEffectiveCost), money(r.Costs.MarkupCostSavingsPlan),
		money(r.Costs.CalculatedAmortizedCost), money(r.Costs.MarkupCostAmortized),
		string(r.DataTransferDirection),
		money(r.InfrastructureDataInGigabytes), money(r.InfrastructureDataOutGigabytes),
		r.Tags, r.AWSCostCategory, r.ResourceIDMatched, r.MatchedTag,
	}
}
