// Package rollup folds the attributed-cost stream into the nine grouped
// daily outputs. Every cost field is summed; descriptive fields take the
// maximum value seen, matching the reference grouping semantics.
package rollup

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/types"
)

// Product-code sets for the database and network summaries.
var databaseProductCodes = map[string]struct{}{
	"AmazonRDS":         {},
	"AmazonDynamoDB":    {},
	"AmazonElastiCache": {},
	"AmazonNeptune":     {},
	"AmazonRedshift":    {},
	"AmazonDocumentDB":  {},
}

var networkProductCodes = map[string]struct{}{
	"AmazonVPC":        {},
	"AmazonCloudFront": {},
	"AmazonRoute53":    {},
	"AmazonAPIGateway": {},
}

// Row is one grouped output row. Fields outside the output's grouping
// tuple are left zero.
type Row struct {
	UUID       string
	UsageStart time.Time

	ClusterID    string
	ClusterAlias string
	DataSource   types.DataSource
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

	DataTransferDirection types.DataTransferDirection

	UsageAmount decimal.Decimal
	Costs       types.CostFields

	InfrastructureDataInGigabytes  decimal.Decimal
	InfrastructureDataOutGigabytes decimal.Decimal

	Tags            string
	AWSCostCategory string

	ResourceIDMatched bool
	MatchedTag        string
}

// Tables is the full set of grouped outputs for one provider run
type Tables struct {
	Detailed      []Row
	ClusterTotals []Row
	ByAccount     []Row
	ByService     []Row
	ByRegion      []Row
	Compute       []Row
	Storage       []Row
	Database      []Row
	Network       []Row
}

// accum carries the summed and maxed values for one group
type accum struct {
	usage   decimal.Decimal
	costs   types.CostFields
	dataIn  decimal.Decimal
	dataOut decimal.Decimal

	clusterID    string
	clusterAlias string
	currency     string
}

func (a *accum) fold(r types.OCPAWSCostSummary) {
	a.usage = a.usage.Add(r.UsageAmount)
	a.costs = a.costs.Add(r.Costs)
	a.dataIn = a.dataIn.Add(r.InfrastructureDataInGigabytes)
	a.dataOut = a.dataOut.Add(r.InfrastructureDataOutGigabytes)
	if r.ClusterID > a.clusterID {
		a.clusterID = r.ClusterID
	}
	if r.ClusterAlias > a.clusterAlias {
		a.clusterAlias = r.ClusterAlias
	}
	if r.CurrencyCode > a.currency {
		a.currency = r.CurrencyCode
	}
}

func fold[K comparable](rows []types.OCPAWSCostSummary, include func(types.OCPAWSCostSummary) bool, key func(types.OCPAWSCostSummary) K) map[K]*accum {
	out := make(map[K]*accum)
	for _, r := range rows {
		if include != nil && !include(r) {
			continue
		}
		k := key(r)
		a, ok := out[k]
		if !ok {
			a = &accum{}
			out[k] = a
		}
		a.fold(r)
	}
	return out
}

func (a *accum) row(day time.Time) Row {
	return Row{
		UUID:         uuid.New().String(),
		UsageStart:   day,
		ClusterID:    a.clusterID,
		ClusterAlias: a.clusterAlias,
		CurrencyCode: a.currency,
		UsageAmount:  a.usage,
		Costs:        a.costs,

		InfrastructureDataInGigabytes:  a.dataIn,
		InfrastructureDataOutGigabytes: a.dataOut,
	}
}

// Build folds the attributed rows into all nine outputs
func Build(rows []types.OCPAWSCostSummary) Tables {
	return Tables{
		Detailed:      detailed(rows),
		ClusterTotals: clusterTotals(rows),
		ByAccount:     byAccount(rows),
		ByService:     byService(rows),
		ByRegion:      byRegion(rows),
		Compute:       computeSummary(rows),
		Storage:       storageSummary(rows),
		Database:      productCodeSummary(rows, databaseProductCodes),
		Network:       productCodeSummary(rows, networkProductCodes),
	}
}

type detailedKey struct {
	day          time.Time
	cluster      string
	dataSource   types.DataSource
	namespace    string
	node         string
	pvc          string
	pv           string
	storageClass string
	resourceID   string
	productCode  string
	instanceType string
	account      string
	az           string
	region       string
	unit         string
	direction    types.DataTransferDirection
}

func detailed(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows, nil, func(r types.OCPAWSCostSummary) detailedKey {
		return detailedKey{
			day:          r.UsageStart,
			cluster:      r.ClusterID,
			dataSource:   r.DataSource,
			namespace:    r.Namespace,
			node:         r.Node,
			pvc:          r.PersistentVolumeClaim,
			pv:           r.PersistentVolume,
			storageClass: r.StorageClass,
			resourceID:   r.ResourceID,
			productCode:  r.ProductCode,
			instanceType: r.InstanceType,
			account:      r.UsageAccountID,
			az:           r.AvailabilityZone,
			region:       r.Region,
			unit:         r.Unit,
			direction:    r.DataTransferDirection,
		}
	})

	// detailed rows also carry the widest descriptive surface; tags,
	// cost categories, and match flags come from the folded inputs
	meta := make(map[detailedKey]types.OCPAWSCostSummary)
	for _, r := range rows {
		k := detailedKey{
			day: r.UsageStart, cluster: r.ClusterID, dataSource: r.DataSource,
			namespace: r.Namespace, node: r.Node, pvc: r.PersistentVolumeClaim,
			pv: r.PersistentVolume, storageClass: r.StorageClass,
			resourceID: r.ResourceID, productCode: r.ProductCode,
			instanceType: r.InstanceType, account: r.UsageAccountID,
			az: r.AvailabilityZone, region: r.Region, unit: r.Unit,
			direction: r.DataTransferDirection,
		}
		if prev, ok := meta[k]; !ok || r.MatchedTag > prev.MatchedTag {
			meta[k] = r
		}
	}

	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		m := meta[k]
		row.DataSource = k.dataSource
		row.Namespace = k.namespace
		row.Node = k.node
		row.PersistentVolumeClaim = k.pvc
		row.PersistentVolume = k.pv
		row.StorageClass = k.storageClass
		row.ResourceID = k.resourceID
		row.ProductCode = k.productCode
		row.ProductFamily = m.ProductFamily
		row.InstanceType = k.instanceType
		row.UsageAccountID = k.account
		row.AccountAliasID = m.AccountAliasID
		row.AvailabilityZone = k.az
		row.Region = k.region
		row.Unit = k.unit
		row.DataTransferDirection = k.direction
		row.Tags = m.Tags
		row.AWSCostCategory = m.AWSCostCategory
		row.ResourceIDMatched = m.ResourceIDMatched
		row.MatchedTag = m.MatchedTag
		out = append(out, row)
	}
	sortRows(out)
	return out
}

func clusterTotals(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows, nil, func(r types.OCPAWSCostSummary) time.Time { return r.UsageStart })
	out := make([]Row, 0, len(groups))
	for day, a := range groups {
		out = append(out, a.row(day))
	}
	sortRows(out)
	return out
}

type accountKey struct {
	day     time.Time
	account string
	alias   string
}

func byAccount(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows, nil, func(r types.OCPAWSCostSummary) accountKey {
		return accountKey{day: r.UsageStart, account: r.UsageAccountID, alias: r.AccountAliasID}
	})
	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		row.UsageAccountID = k.account
		row.AccountAliasID = k.alias
		out = append(out, row)
	}
	sortRows(out)
	return out
}

type serviceKey struct {
	day           time.Time
	account       string
	alias         string
	productCode   string
	productFamily string
}

func byService(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows, nil, func(r types.OCPAWSCostSummary) serviceKey {
		return serviceKey{day: r.UsageStart, account: r.UsageAccountID, alias: r.AccountAliasID, productCode: r.ProductCode, productFamily: r.ProductFamily}
	})
	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		row.UsageAccountID = k.account
		row.AccountAliasID = k.alias
		row.ProductCode = k.productCode
		row.ProductFamily = k.productFamily
		out = append(out, row)
	}
	sortRows(out)
	return out
}

type regionKey struct {
	day     time.Time
	account string
	alias   string
	region  string
	az      string
}

func byRegion(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows, nil, func(r types.OCPAWSCostSummary) regionKey {
		return regionKey{day: r.UsageStart, account: r.UsageAccountID, alias: r.AccountAliasID, region: r.Region, az: r.AvailabilityZone}
	})
	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		row.UsageAccountID = k.account
		row.AccountAliasID = k.alias
		row.Region = k.region
		row.AvailabilityZone = k.az
		out = append(out, row)
	}
	sortRows(out)
	return out
}

type computeKey struct {
	day          time.Time
	account      string
	alias        string
	instanceType string
	resourceID   string
}

func computeSummary(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows,
		func(r types.OCPAWSCostSummary) bool { return r.InstanceType != "" },
		func(r types.OCPAWSCostSummary) computeKey {
			return computeKey{day: r.UsageStart, account: r.UsageAccountID, alias: r.AccountAliasID, instanceType: r.InstanceType, resourceID: r.ResourceID}
		})
	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		row.UsageAccountID = k.account
		row.AccountAliasID = k.alias
		row.InstanceType = k.instanceType
		row.ResourceID = k.resourceID
		out = append(out, row)
	}
	sortRows(out)
	return out
}

type familyKey struct {
	day           time.Time
	account       string
	alias         string
	productFamily string
}

func storageSummary(rows []types.OCPAWSCostSummary) []Row {
	groups := fold(rows,
		func(r types.OCPAWSCostSummary) bool {
			return strings.Contains(r.ProductFamily, "Storage") && r.Unit == "GB-Mo"
		},
		func(r types.OCPAWSCostSummary) familyKey {
			return familyKey{day: r.UsageStart, account: r.UsageAccountID, alias: r.AccountAliasID, productFamily: r.ProductFamily}
		})
	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		row.UsageAccountID = k.account
		row.AccountAliasID = k.alias
		row.ProductFamily = k.productFamily
		out = append(out, row)
	}
	sortRows(out)
	return out
}

type productKey struct {
	day         time.Time
	account     string
	alias       string
	productCode string
}

func productCodeSummary(rows []types.OCPAWSCostSummary, codes map[string]struct{}) []Row {
	groups := fold(rows,
		func(r types.OCPAWSCostSummary) bool {
			_, ok := codes[r.ProductCode]
			return ok
		},
		func(r types.OCPAWSCostSummary) productKey {
			return productKey{day: r.UsageStart, account: r.UsageAccountID, alias: r.AccountAliasID, productCode: r.ProductCode}
		})
	out := make([]Row, 0, len(groups))
	for k, a := range groups {
		row := a.row(k.day)
		row.UsageAccountID = k.account
		row.AccountAliasID = k.alias
		row.ProductCode = k.productCode
		out = append(out, row)
	}
	sortRows(out)
	return out
}

// sortRows orders grouped rows deterministically for stable output
func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.UsageStart.Equal(b.UsageStart) {
			return a.UsageStart.Before(b.UsageStart)
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.UsageAccountID != b.UsageAccountID {
			return a.UsageAccountID < b.UsageAccountID
		}
		if a.ProductCode != b.ProductCode {
			return a.ProductCode < b.ProductCode
		}
		if a.ProductFamily != b.ProductFamily {
			return a.ProductFamily < b.ProductFamily
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.PersistentVolumeClaim < b.PersistentVolumeClaim
	})
}
