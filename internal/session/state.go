// ABOUTME: Session state enum and the per-peer record.
// ABOUTME: Hold deadlines and keepalive intervals live on the peer.

package session

import "time"

// State is the position of a peer in the session lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateOpenSent    State = "open_sent"
	StateOpenConfirm State = "open_confirm"
	StateEstablished State = "established"
)

// Default session timing.
const (
	DefaultHoldTime          = 90 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
)

// Peer is one remote autonomous system and its session state.
type Peer struct {
	ASN               uint32        `json:"asn"`
	Address           string        `json:"address"`
	RouterID          string        `json:"routerId,omitempty"`
	State             State         `json:"state"`
	HoldTime          time.Duration `json:"holdTime"`
	HoldDeadline      time.Time     `json:"holdDeadline"`
	KeepaliveInterval time.Duration `json:"keepaliveInterval"`
	Capabilities      []string      `json:"capabilities,omitempty"`
	EstablishedAt     time.Time     `json:"establishedAt,omitempty"`
	MessagesReceived  int           `json:"messagesReceived"`
}

// clone returns a copy safe to hand out without the manager lock.
func (p *Peer) clone() Peer {
	out := *p
	out.Capabilities = append([]string(nil), p.Capabilities...)
	return out
}
