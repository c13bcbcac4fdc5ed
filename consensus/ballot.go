package consensus

import (
	"bufio"
	"fmt"
)

import (
	"github.com/qkniep/multi-paxos/node"
	"github.com/qkniep/multi-paxos/serializer"
)

// a Ballot identifies a single leader regime. Ballots are ordered
// lexicographically on (round, node id). The zero ballot (0, 0) is the
// sentinel every replica starts from; it sorts below any ballot a
// replica will issue
type Ballot struct {
	Round  uint64
	NodeId node.NodeId
}

// returns -1, 0, or 1 if b is less than, equal to,
// or greater than the other ballot
func (b Ballot) Cmp(o Ballot) int {
	if b.Round != o.Round {
		if b.Round < o.Round {
			return -1
		}
		return 1
	}
	if b.NodeId != o.NodeId {
		if b.NodeId < o.NodeId {
			return -1
		}
		return 1
	}
	return 0
}

func (b Ballot) LessThan(o Ballot) bool { return b.Cmp(o) < 0 }

func (b Ballot) Equal(o Ballot) bool { return b.Cmp(o) == 0 }

func (b Ballot) IsZero() bool { return b.Round == 0 && b.NodeId == 0 }

// returns the next ballot the given node may issue from this one.
// The node id is always set to the caller's own; the round is bumped
// if keeping it would not produce a strictly greater ballot. Two
// replicas can therefore never issue equal ballots, and successive
// calls on one replica are strictly monotonic
func (b Ballot) IncrementFor(id node.NodeId) Ballot {
	next := Ballot{Round: b.Round, NodeId: id}
	if b.NodeId >= id {
		next.Round++
	}
	return next
}

func (b Ballot) String() string {
	return fmt.Sprintf("(%v, %v)", b.Round, b.NodeId)
}

func (b *Ballot) Serialize(buf *bufio.Writer) error {
	if err := serializer.WriteUint64(buf, b.Round); err != nil {
		return err
	}
	if err := serializer.WriteUint32(buf, uint32(b.NodeId)); err != nil {
		return err
	}
	return nil
}

func (b *Ballot) Deserialize(buf *bufio.Reader) error {
	round, err := serializer.ReadUint64(buf)
	if err != nil {
		return err
	}
	nid, err := serializer.ReadUint32(buf)
	if err != nil {
		return err
	}
	b.Round = round
	b.NodeId = node.NodeId(nid)
	return nil
}
