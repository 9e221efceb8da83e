// Package match joins AWS line items to OpenShift resources by
// resource-id suffix, CSI-handle substring, and tag equality.
package match

import (
	"sort"
	"strings"

	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/types"
)

// OCPIndex is the read-only snapshot of OpenShift identities a matcher
// resolves AWS line items against. Built once per provider, never mutated
// while matching runs.
type OCPIndex struct {
	// ClusterID / ClusterAlias identify the cluster for tag equality
	ClusterID    string
	ClusterAlias string

	// NodeByResourceID maps a pod resource id to its node name
	NodeByResourceID map[string]string

	// PVNames is the set of persistent volume names
	PVNames map[string]struct{}

	// CSIHandles is the set of non-empty CSI volume handles
	CSIHandles map[string]struct{}

	// NodeNames and Namespaces back the openshift_node / openshift_project
	// tag equality checks
	NodeNames  map[string]struct{}
	Namespaces map[string]struct{}

	// LabelBlobs holds serialised pod and volume label maps for the
	// generic substring match of last resort
	LabelBlobs []string
}

// sortedKeys returns the map's keys in sorted order for deterministic matching
func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Matcher annotates AWS line items with their OpenShift association
type Matcher struct {
	index   *OCPIndex
	enabled *labels.EnabledKeys

	nodeResourceIDs []string
	pvNames         []string
	csiHandles      []string
}

// New creates a matcher over a fixed OCP snapshot
func New(index *OCPIndex, enabled *labels.EnabledKeys) *Matcher {
	m := &Matcher{index: index, enabled: enabled}
	m.nodeResourceIDs = make([]string, 0, len(index.NodeByResourceID))
	for rid := range index.NodeByResourceID {
		if rid != "" {
			m.nodeResourceIDs = append(m.nodeResourceIDs, rid)
		}
	}
	sort.Strings(m.nodeResourceIDs)
	m.pvNames = sortedKeys(index.PVNames)
	m.csiHandles = sortedKeys(index.CSIHandles)
	return m
}

// Kind identifies which resource-id rule associated the row. It drives the
// attribution dispatch: a storage hit stays a storage hit even when the
// row's tags also name a node.
type Kind int

const (
	KindNone Kind = iota
	KindNode
	KindPV
	KindCSI
)

// Result is the outcome of matching one AWS line item
type Result struct {
	// Kind records the resource-id rule that hit, KindNone for tag-only
	Kind Kind

	// ResourceIDMatched is true when any suffix or substring rule hit
	ResourceIDMatched bool

	// MatchedTag is the comma-joined list of matched tag assertions
	MatchedTag string

	// Node is the OCP node associated via resource-id or openshift_node tag
	Node string

	// PV and CSIHandle identify the matched storage resource
	PV        string
	CSIHandle string

	// TagNamespace is set when an openshift_project tag matched
	TagNamespace string

	// Tags is the enabled-key-filtered AWS tag map
	Tags labels.Labels
}

// Carried reports whether the row flows into attribution
func (r Result) Carried() bool {
	return r.ResourceIDMatched || r.MatchedTag != ""
}

// Match resolves one AWS line item against the OCP snapshot. Resource-id
// rules run first; tag matches still enrich a resource-id hit but only the
// resource-id rule drives attribution, so nothing is attributed twice.
func (m *Matcher) Match(item types.AWSLineItem) Result {
	var res Result

	// Node suffix: AWS resource ids embed the instance id behind a prefix
	// such as "i-".
	for _, rid := range m.nodeResourceIDs {
		if strings.HasSuffix(item.ResourceID, rid) {
			res.Kind = KindNode
			res.Node = m.index.NodeByResourceID[rid]
			break
		}
	}

	if res.Kind == KindNone {
		for _, pv := range m.pvNames {
			if strings.HasSuffix(item.ResourceID, pv) {
				res.Kind = KindPV
				res.PV = pv
				break
			}
		}
	}

	if res.Kind == KindNone {
		for _, h := range m.csiHandles {
			if strings.Contains(item.ResourceID, h) {
				res.Kind = KindCSI
				res.CSIHandle = h
				break
			}
		}
	}
	res.ResourceIDMatched = res.Kind != KindNone

	awsTags := labels.Parse(item.ResourceTags)
	res.Tags = labels.Filter(awsTags, m.enabled)

	var assertions []string
	if v, ok := res.Tags[labels.TagOpenshiftCluster]; ok {
		if v == m.index.ClusterID || v == m.index.ClusterAlias {
			assertions = append(assertions, labels.TagOpenshiftCluster+"="+v)
		}
	}
	if v, ok := res.Tags[labels.TagOpenshiftNode]; ok {
		if _, known := m.index.NodeNames[v]; known {
			assertions = append(assertions, labels.TagOpenshiftNode+"="+v)
			if res.Node == "" {
				res.Node = v
			}
		}
	}
	if v, ok := res.Tags[labels.TagOpenshiftProject]; ok {
		if _, known := m.index.Namespaces[v]; known {
			assertions = append(assertions, labels.TagOpenshiftProject+"="+v)
			res.TagNamespace = v
		}
	}
	res.MatchedTag = strings.Join(assertions, ",")

	// Generic substring match only when nothing else associated the row.
	if !res.ResourceIDMatched && res.MatchedTag == "" {
		for _, blob := range m.index.LabelBlobs {
			if assertion, ok := labels.GenericMatch(awsTags, blob); ok {
				res.MatchedTag = assertion
				break
			}
		}
	}

	return res
}
