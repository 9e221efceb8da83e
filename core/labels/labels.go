// Package labels implements the label engine: precedence merging,
// enabled-key filtering, and the substring tag match used to associate
// AWS tags with OpenShift workloads.
package labels

import (
	"encoding/json"
	"sort"
	"strings"
)

// Labels is a key-to-value map with opaque string values
type Labels map[string]string

// Parse decodes a serialised label blob. Blobs that do not parse as a JSON
// object yield an empty map; upstream metric collectors are not strict
// about label serialisation and a bad blob must not fail the row.
func Parse(blob string) Labels {
	if blob == "" {
		return Labels{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return Labels{}
	}
	out := make(Labels, len(m))
	for k, v := range m {
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Serialize encodes labels as JSON with sorted keys so equal maps always
// produce byte-equal blobs.
func Serialize(l Labels) string {
	if len(l) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(l[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// Filter drops any key not in allowed
func Filter(l Labels, allowed *EnabledKeys) Labels {
	out := make(Labels, len(l))
	for k, v := range l {
		if allowed.Contains(k) {
			out[k] = v
		}
	}
	return out
}

// MergePrecedence merges three label sources. For each key present in any
// source the winning value is pod, else namespace, else node. Empty-string
// values are treated as absent.
func MergePrecedence(pod, namespace, node Labels) Labels {
	merged := make(Labels, len(pod)+len(namespace)+len(node))
	for k, v := range node {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range namespace {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range pod {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// Merge overlays b onto a without precedence semantics
func Merge(a, b Labels) Labels {
	merged := make(Labels, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// GenericMatch reports whether at least one key of awsTags appears as a
// substring of the serialised label blob. Case-sensitive, exact substring.
func GenericMatch(awsTags Labels, labelBlob string) (string, bool) {
	if labelBlob == "" {
		return "", false
	}
	keys := make([]string, 0, len(awsTags))
	for k := range awsTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			continue
		}
		if strings.Contains(labelBlob, k) {
			return k + "=" + awsTags[k], true
		}
	}
	return "", false
}
