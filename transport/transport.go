/*
Datagram transport between replicas

Delivery is best effort: messages may be dropped, reordered, or
duplicated, and the protocol above must tolerate all three.
*/
package transport

import (
	"time"
)

import (
	logging "github.com/op/go-logging"
)

import (
	"github.com/qkniep/multi-paxos/message"
	"github.com/qkniep/multi-paxos/node"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("transport")
}

type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "no message received within timeout"
}

// returned by Recv when no message arrives within the timeout
var ErrTimeout = &TimeoutError{}

type Transport interface {
	// the stable id assigned to this node
	NodeId() node.NodeId

	// announces the full group membership to this node
	Discover(peers []node.NodeId)

	// best effort delivery to a single peer. Returns false if the
	// datagram could not be handed to the OS. Non-blocking
	Send(dst node.NodeId, mes message.Message) bool

	// sends to every known peer except this node. No atomicity
	Broadcast(mes message.Message)

	// returns the next message addressed to this node along with
	// the sender's id, or ErrTimeout if none arrives in time
	Recv(timeout time.Duration) (node.NodeId, message.Message, error)
}
