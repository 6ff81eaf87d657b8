// ABOUTME: Tests for server wiring, the advertisement refresh sweep, and shutdown.

package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-routes/internal/route"
)

func advertisedLocal(agentID string) route.Route {
	return route.Route{AgentID: agentID, Capabilities: []string{"chat"}}
}

func TestNew_GeneratesRouterID(t *testing.T) {
	srv := New(Config{LocalASN: 64512}, nil)
	assert.NotEmpty(t, srv.RouterID())

	other := New(Config{LocalASN: 64512}, nil)
	assert.NotEqual(t, srv.RouterID(), other.RouterID())
}

func TestRefreshAdvertisements(t *testing.T) {
	srv := New(Config{LocalASN: 64512}, nil)

	srv.RegisterCapabilityProvider("steady", ProviderFunc(func(ctx context.Context, agentID string) (*Capabilities, error) {
		return &Capabilities{Capabilities: []string{"summarize"}, LocalPref: 150}, nil
	}))
	srv.RegisterCapabilityProvider("gone", ProviderFunc(func(ctx context.Context, agentID string) (*Capabilities, error) {
		return nil, nil
	}))
	srv.RegisterCapabilityProvider("broken", ProviderFunc(func(ctx context.Context, agentID string) (*Capabilities, error) {
		return nil, errors.New("backend offline")
	}))

	// Seed an advertisement for the agent that will disappear.
	require.NoError(t, srv.sessions.AdvertiseLocal(advertisedLocal("gone")))

	srv.refreshAdvertisements()

	best, ok := srv.table.GetBestRoute("steady")
	require.True(t, ok)
	assert.Equal(t, 150, best.LocalPref)
	assert.Equal(t, []string{"summarize"}, best.Capabilities)

	_, ok = srv.table.GetBestRoute("gone")
	assert.False(t, ok, "disappeared agent should be withdrawn")

	// The failed provider stays registered for the next round.
	srv.providersMu.Lock()
	_, stillThere := srv.providers["broken"]
	_, removed := srv.providers["gone"]
	srv.providersMu.Unlock()
	assert.True(t, stillThere)
	assert.False(t, removed)
}

func TestRefreshAdvertisements_DefaultLocalPref(t *testing.T) {
	srv := New(Config{LocalASN: 64512}, nil)
	srv.RegisterCapabilityProvider("plain", ProviderFunc(func(ctx context.Context, agentID string) (*Capabilities, error) {
		return &Capabilities{Capabilities: []string{"chat"}}, nil
	}))

	srv.refreshAdvertisements()

	best, ok := srv.table.GetBestRoute("plain")
	require.True(t, ok)
	assert.Equal(t, 100, best.LocalPref)
}

func TestStartShutdown(t *testing.T) {
	srv := New(Config{LocalASN: 64512}, nil)
	srv.Start()

	assert.False(t, srv.Closed())
	srv.Shutdown()
	assert.True(t, srv.Closed())

	// A second shutdown must not panic or block.
	srv.Shutdown()
}
