package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToleratesBadBlobs(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("not json"))
	assert.Empty(t, Parse(`["a","b"]`))

	got := Parse(`{"app":"web","empty":"","":"x"}`)
	assert.Equal(t, Labels{"app": "web"}, got)
}

func TestSerializeSortsKeys(t *testing.T) {
	assert.Equal(t, "{}", Serialize(nil))
	assert.Equal(t, "{}", Serialize(Labels{}))
	assert.Equal(t, `{"a":"1","b":"2"}`, Serialize(Labels{"b": "2", "a": "1"}))
}

func TestSerializeParseRoundTrip(t *testing.T) {
	in := Labels{"team": "payments", "env": "prod"}
	assert.Equal(t, in, Parse(Serialize(in)))
}

func TestFilterKeepsAlwaysOnKeys(t *testing.T) {
	enabled := NewEnabledKeys([]string{"app"})

	got := Filter(Labels{
		"app":               "web",
		"team":              "payments",
		TagOpenshiftCluster: "prod-cluster",
		TagKubevirtVMName:   "vm-1",
	}, enabled)

	assert.Equal(t, Labels{
		"app":               "web",
		TagOpenshiftCluster: "prod-cluster",
		TagKubevirtVMName:   "vm-1",
	}, got)
}

func TestEnabledKeysAlwaysOnMembers(t *testing.T) {
	enabled := NewEnabledKeys(nil)
	require.Equal(t, 4, enabled.Len())
	for _, k := range []string{TagOpenshiftCluster, TagOpenshiftNode, TagOpenshiftProject, TagKubevirtVMName} {
		assert.True(t, enabled.Contains(k), k)
	}
	assert.False(t, enabled.Contains("app"))
}

func TestMergePrecedencePodWins(t *testing.T) {
	got := MergePrecedence(
		Labels{"tier": "pod", "only_pod": "x"},
		Labels{"tier": "namespace", "only_ns": "y"},
		Labels{"tier": "node", "only_node": "z"},
	)
	assert.Equal(t, Labels{
		"tier":      "pod",
		"only_pod":  "x",
		"only_ns":   "y",
		"only_node": "z",
	}, got)
}

func TestMergePrecedenceEmptyValueIsAbsent(t *testing.T) {
	got := MergePrecedence(
		Labels{"tier": ""},
		Labels{"tier": "namespace"},
		nil,
	)
	assert.Equal(t, "namespace", got["tier"])
}

func TestGenericMatch(t *testing.T) {
	blob := `{"app":"frontend","team":"web"}`

	assertion, ok := GenericMatch(Labels{"app": "frontend"}, blob)
	require.True(t, ok)
	assert.Equal(t, "app=frontend", assertion)

	_, ok = GenericMatch(Labels{"other": "x"}, blob)
	assert.False(t, ok)

	_, ok = GenericMatch(Labels{"app": "frontend"}, "")
	assert.False(t, ok)
}

func TestGenericMatchDeterministicOrder(t *testing.T) {
	// both keys appear in the blob; the smallest key wins
	blob := `{"aaa":"1","bbb":"2"}`
	assertion, ok := GenericMatch(Labels{"bbb": "2", "aaa": "1"}, blob)
	require.True(t, ok)
	assert.Equal(t, "aaa=1", assertion)
}
