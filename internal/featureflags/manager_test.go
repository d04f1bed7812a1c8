package featureflags

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled(t *testing.T) {
	m := NewManager(" Discovery_Search , beta=off, legacy=TRUE, broken, =on, empty= ")

	assert.True(t, m.Enabled(DiscoverySearch, "u1"), "bare names are on")
	assert.False(t, m.Enabled("beta", "u1"))
	assert.True(t, m.Enabled("LEGACY", ""))
	assert.True(t, m.Enabled("broken", "u1"))
	assert.False(t, m.Enabled("empty", "u1"))
	assert.False(t, m.Enabled("missing", "u1"))

	var nilManager *Manager
	assert.False(t, nilManager.Enabled(DiscoverySearch, "u1"))
}

func TestEnabled_PercentRollout(t *testing.T) {
	m := NewManager("none=0%,all=100%,half=50%,junk=x%")

	assert.False(t, m.Enabled("none", "u1"))
	assert.True(t, m.Enabled("all", "u1"))
	assert.False(t, m.Enabled("junk", "u1"))
	assert.False(t, m.Enabled("half", ""), "anonymous callers are never in a partial rollout")

	on := 0
	for i := 0; i < 1000; i++ {
		user := fmt.Sprintf("user-%d", i)
		first := m.Enabled("half", user)
		assert.Equal(t, first, m.Enabled("half", user), "rollout is deterministic")
		if first {
			on++
		}
	}
	assert.InDelta(t, 500, on, 100)
}

func TestSnapshotAndRaw(t *testing.T) {
	m := NewManager("a=on,b=off")
	assert.Equal(t, map[string]bool{"a": true, "b": false}, m.Snapshot("u1"))

	raw := m.Raw()
	raw["a"] = "off"
	assert.True(t, m.Enabled("a", "u1"), "Raw returns a copy")
}
