// ABOUTME: Observer interface and event payloads for balancer side effects.
// ABOUTME: BaseObserver lets subscribers implement only the events they care about.

package balancer

import (
	"time"

	"github.com/2389/coven-routes/internal/route"
)

// PathEvent describes a path entering or leaving the pool.
type PathEvent struct {
	Key       route.PathKey `json:"key"`
	Route     route.Route   `json:"route"`
	PoolSize  int           `json:"poolSize"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthCheckEvent summarizes one completed health-check sweep.
type HealthCheckEvent struct {
	Checked   int           `json:"checked"`
	Healthy   int           `json:"healthy"`
	Degraded  int           `json:"degraded"`
	Unhealthy int           `json:"unhealthy"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Observer receives balancer events. Implementations must not block;
// events are delivered synchronously from the mutating goroutine.
type Observer interface {
	OnPathAdded(PathEvent)
	OnPathRemoved(PathEvent)
	OnHealthCheckCompleted(HealthCheckEvent)
	OnDecision(Decision)
}

// BaseObserver is a no-op Observer for embedding.
type BaseObserver struct{}

func (BaseObserver) OnPathAdded(PathEvent)                  {}
func (BaseObserver) OnPathRemoved(PathEvent)                {}
func (BaseObserver) OnHealthCheckCompleted(HealthCheckEvent) {}
func (BaseObserver) OnDecision(Decision)                    {}
