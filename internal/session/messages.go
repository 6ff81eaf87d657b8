// ABOUTME: Protocol message types exchanged between peers.
// ABOUTME: OPEN negotiates sessions; UPDATE carries advertisements and withdrawals.

package session

import (
	"github.com/2389/coven-routes/internal/route"
)

// OpenMessage starts or refreshes a session with a peer.
type OpenMessage struct {
	ASN          uint32   `json:"asn"`
	RouterID     string   `json:"routerId"`
	HoldTime     int      `json:"holdTime"` // seconds
	Capabilities []string `json:"capabilities"`
	Address      string   `json:"address,omitempty"`
}

// OpenResult acknowledges an OPEN with our side of the negotiation.
type OpenResult struct {
	ASN          uint32   `json:"asn"`
	RouterID     string   `json:"routerId"`
	HoldTime     int      `json:"holdTime"` // negotiated, seconds
	Capabilities []string `json:"capabilities"`
	State        State    `json:"state"`
}

// UpdateMessage carries route advertisements and withdrawals from a peer.
type UpdateMessage struct {
	Type             string        `json:"type"`
	SenderASN        uint32        `json:"senderASN"`
	AdvertisedRoutes []route.Route `json:"advertisedRoutes"`
	WithdrawnRoutes  []string      `json:"withdrawnRoutes"` // agent IDs
}

// UpdateResult summarizes what an UPDATE changed.
type UpdateResult struct {
	Accepted       int      `json:"accepted"`
	RejectedRoutes int      `json:"rejectedRoutes"`
	Withdrawn      int      `json:"withdrawn"`
	AffectedAgents []string `json:"affectedAgents"`
}

// NotificationMessage signals session termination with a reason.
type NotificationMessage struct {
	SenderASN uint32 `json:"senderASN"`
	Reason    string `json:"reason"`
}

// NotificationResult reports the teardown outcome.
type NotificationResult struct {
	WithdrawnRoutes int `json:"withdrawnRoutes"`
}
