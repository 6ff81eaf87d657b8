// ABOUTME: Tests for Loc-RIB query helpers and the validation sweep.
// ABOUTME: Covers scenario where looped and stale routes produce advisories.

package rib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

func installRoute(t *testing.T, table *Table, agentID string, caps []string, communities []string, path ...uint32) {
	t.Helper()
	r := route.Route{
		AgentID:      agentID,
		Capabilities: caps,
		ASPath:       path,
		Communities:  communities,
		LocalPref:    route.DefaultLocalPref,
		OriginTime:   time.Now(),
	}
	require.NoError(t, table.InstallBestRoute(agentID, r))
}

func TestFindAgentsByCapability_CaseSensitive(t *testing.T) {
	table := NewTable(nil)
	installRoute(t, table, "reviewer", []string{"code-review"}, nil, 65001)
	installRoute(t, table, "auditor", []string{"Code-Review"}, nil, 65002)

	assert.Equal(t, []string{"reviewer"}, table.FindAgentsByCapability("code-review"))
	assert.Equal(t, []string{"auditor"}, table.FindAgentsByCapability("Code-Review"))
	assert.Empty(t, table.FindAgentsByCapability("translation"))
}

func TestFindAgentsByCapabilityPattern(t *testing.T) {
	table := NewTable(nil)
	installRoute(t, table, "reviewer", []string{"code-review"}, nil, 65001)
	installRoute(t, table, "generator", []string{"code-generation"}, nil, 65002)
	installRoute(t, table, "translator", []string{"translation"}, nil, 65003)

	assert.Equal(t, []string{"generator", "reviewer"}, table.FindAgentsByCapabilityPattern("code-*"))
	assert.Equal(t, []string{"generator", "reviewer", "translator"}, table.FindAgentsByCapabilityPattern("*"))
	assert.Empty(t, table.FindAgentsByCapabilityPattern("video-*"))
}

func TestFindAgentsByASPath(t *testing.T) {
	table := NewTable(nil)
	installRoute(t, table, "near", nil, nil, 65001, 65002)
	installRoute(t, table, "far", nil, nil, 65001, 65003, 65004)

	assert.Equal(t, []string{"far", "near"}, table.FindAgentsByASPath([]uint32{65001}))
	assert.Equal(t, []string{"far"}, table.FindAgentsByASPath([]uint32{65001, 65004}))
	assert.Empty(t, table.FindAgentsByASPath([]uint32{65099}))
}

func TestFindAgentsByCommunity(t *testing.T) {
	table := NewTable(nil)
	installRoute(t, table, "east", nil, []string{"region:us-east"}, 65001)
	installRoute(t, table, "west", nil, []string{"region:eu-west"}, 65002)

	assert.Equal(t, []string{"east"}, table.FindAgentsByCommunity("region:us-east"))
	assert.Empty(t, table.FindAgentsByCommunity("region:ap-south"))
}

func TestValidate_CleanTable(t *testing.T) {
	table := NewTable(nil)
	installRoute(t, table, "agent-a", nil, nil, 65001, 65002)

	assert.Empty(t, table.Validate())
}

func TestValidate_LoopedPath(t *testing.T) {
	table := NewTable(nil)
	r := route.Route{
		AgentID:    "looped",
		ASPath:     []uint32{1, 2, 1},
		OriginTime: time.Now(),
	}
	require.NoError(t, table.InstallBestRoute("looped", r))

	issues := table.Validate()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "loop")
	assert.Contains(t, issues[0], "looped")
}

func TestValidate_StaleRoute(t *testing.T) {
	table := NewTable(nil)
	r := route.Route{
		AgentID:    "stale",
		ASPath:     []uint32{65001},
		OriginTime: time.Now().Add(-25 * time.Hour),
	}
	require.NoError(t, table.InstallBestRoute("stale", r))

	issues := table.Validate()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "stale")
}

func TestValidate_LongPath(t *testing.T) {
	table := NewTable(nil)
	path := make([]uint32, LongPathThreshold+1)
	for i := range path {
		path[i] = uint32(65001 + i)
	}
	r := route.Route{AgentID: "wanderer", ASPath: path, OriginTime: time.Now()}
	require.NoError(t, table.InstallBestRoute("wanderer", r))

	issues := table.Validate()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "long")
}
