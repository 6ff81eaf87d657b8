// ABOUTME: Tests for the in-memory server-name registry.

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemory_RegisterResolve(t *testing.T) {
	r := NewInMemory()

	_, ok := r.Resolve("rs-east")
	assert.False(t, ok)

	r.Register("rs-east", "east.example:8080")
	addr, ok := r.Resolve("rs-east")
	assert.True(t, ok)
	assert.Equal(t, "east.example:8080", addr)

	// Re-registering replaces.
	r.Register("rs-east", "east2.example:8080")
	addr, _ = r.Resolve("rs-east")
	assert.Equal(t, "east2.example:8080", addr)
}

func TestInMemory_EmptyNameIgnored(t *testing.T) {
	r := NewInMemory()
	r.Register("", "nowhere:1")
	assert.Empty(t, r.All())
}

func TestInMemory_DeregisterAndAll(t *testing.T) {
	r := NewInMemory()
	r.Register("rs-b", "b:1")
	r.Register("rs-a", "a:1")
	r.Register("rs-c", "c:1")

	assert.Equal(t, []string{"rs-a", "rs-b", "rs-c"}, r.All())

	r.Deregister("rs-b")
	r.Deregister("rs-missing")
	assert.Equal(t, []string{"rs-a", "rs-c"}, r.All())

	_, ok := r.Resolve("rs-b")
	assert.False(t, ok)
}
