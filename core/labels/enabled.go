package labels

// Tag keys that are always enabled, regardless of what the warehouse's
// enabled-tag-keys table holds. The openshift_* keys drive tag matching;
// vm_kubevirt_io_name identifies KubeVirt virtual machines.
const (
	TagOpenshiftCluster = "openshift_cluster"
	TagOpenshiftNode    = "openshift_node"
	TagOpenshiftProject = "openshift_project"
	TagKubevirtVMName   = "vm_kubevirt_io_name"
)

// EnabledKeys is the read-only set of tag keys allowed through filtering.
// Built once per provider before aggregation starts; never mutated after.
type EnabledKeys struct {
	keys map[string]struct{}
}

// NewEnabledKeys builds the set from the warehouse-configured keys plus
// the always-on members.
func NewEnabledKeys(configured []string) *EnabledKeys {
	keys := make(map[string]struct{}, len(configured)+4)
	for _, k := range configured {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	for _, k := range []string{TagOpenshiftCluster, TagOpenshiftNode, TagOpenshiftProject, TagKubevirtVMName} {
		keys[k] = struct{}{}
	}
	return &EnabledKeys{keys: keys}
}

// Contains reports whether key is enabled
func (e *EnabledKeys) Contains(key string) bool {
	_, ok := e.keys[key]
	return ok
}

// Len returns the number of enabled keys
func (e *EnabledKeys) Len() int {
	return len(e.keys)
}
