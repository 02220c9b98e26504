// Package transport provides the two interchangeable carriers for the
// peer protocol: a fingerprint-pinned direct QUIC connection and a
// relay adapter riding the rendezvous WebSocket. Both satisfy Transport
// so the orchestrator never binds to either variant directly.
package transport

import (
	"context"

	"github.com/quantarax/relay/internal/protocol"
)

// Kind identifies which carrier backs a Transport, for the
// ConnectionTypeChanged progress event.
type Kind int

const (
	KindDirect Kind = iota
	KindRelay
)

func (k Kind) String() string {
	if k == KindDirect {
		return "direct"
	}
	return "relay"
}

// Transport is the capability set the orchestrator programs against.
// Send and Recv carry one peer-protocol message at a time; ordering
// within one direction is guaranteed by the underlying carrier.
type Transport interface {
	Send(ctx context.Context, m protocol.Message) error
	Recv(ctx context.Context) (protocol.Message, error)
	Kind() Kind
	Close() error
}
