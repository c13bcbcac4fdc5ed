/*
The seven protocol messages and their wire encodings
*/
package consensus

import (
	"bufio"
)

import (
	"github.com/qkniep/multi-paxos/message"
	"github.com/qkniep/multi-paxos/serializer"
)

const (
	MESSAGE_PREPARE        = message.MessageType(101)
	MESSAGE_PROMISE        = message.MessageType(102)
	MESSAGE_PROPOSE        = message.MessageType(103)
	MESSAGE_ACCEPT         = message.MessageType(104)
	MESSAGE_LEARN          = message.MessageType(105)
	MESSAGE_NACK           = message.MessageType(106)
	MESSAGE_CLIENT_REQUEST = message.MessageType(107)
)

func init() {
	message.RegisterMessage(MESSAGE_PREPARE, func() message.Message { return &PrepareRequest{} })
	message.RegisterMessage(MESSAGE_PROMISE, func() message.Message { return &PromiseResponse{} })
	message.RegisterMessage(MESSAGE_PROPOSE, func() message.Message { return &ProposeRequest{} })
	message.RegisterMessage(MESSAGE_ACCEPT, func() message.Message { return &AcceptResponse{} })
	message.RegisterMessage(MESSAGE_LEARN, func() message.Message { return &LearnRequest{} })
	message.RegisterMessage(MESSAGE_NACK, func() message.Message { return &NackResponse{} })
	message.RegisterMessage(MESSAGE_CLIENT_REQUEST, func() message.Message { return &ClientRequest{} })
}

// phase 1a. A candidate asks every peer to promise away from lower
// ballots, and to report accepted values for the listed holes. The
// final element of Holes is the one-past-end sentinel
type PrepareRequest struct {
	Ballot Ballot
	Holes  []uint64
}

func (m *PrepareRequest) GetType() message.MessageType { return MESSAGE_PREPARE }

func (m *PrepareRequest) Serialize(buf *bufio.Writer) error {
	if err := m.Ballot.Serialize(buf); err != nil {
		return err
	}
	if err := serializer.WriteUint64(buf, uint64(len(m.Holes))); err != nil {
		return err
	}
	for _, hole := range m.Holes {
		if err := serializer.WriteUint64(buf, hole); err != nil {
			return err
		}
	}
	return nil
}

func (m *PrepareRequest) Deserialize(buf *bufio.Reader) error {
	if err := m.Ballot.Deserialize(buf); err != nil {
		return err
	}
	numHoles, err := serializer.ReadUint64(buf)
	if err != nil {
		return err
	}
	m.Holes = make([]uint64, 0, numHoles)
	for i := uint64(0); i < numHoles; i++ {
		hole, err := serializer.ReadUint64(buf)
		if err != nil {
			return err
		}
		m.Holes = append(m.Holes, hole)
	}
	return nil
}

// phase 1b. An acceptor's pledge to the candidate's ballot, carrying
// the values it has already accepted in the requested slot region
type PromiseResponse struct {
	Ballot   Ballot
	Accepted []acceptedValue
}

func (m *PromiseResponse) GetType() message.MessageType { return MESSAGE_PROMISE }

func (m *PromiseResponse) Serialize(buf *bufio.Writer) error {
	if err := m.Ballot.Serialize(buf); err != nil {
		return err
	}
	if err := serializer.WriteUint64(buf, uint64(len(m.Accepted))); err != nil {
		return err
	}
	for i := range m.Accepted {
		av := &m.Accepted[i]
		if err := serializer.WriteUint64(buf, av.Slot); err != nil {
			return err
		}
		if err := av.Ballot.Serialize(buf); err != nil {
			return err
		}
		if err := serializer.WriteFieldBytes(buf, av.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *PromiseResponse) Deserialize(buf *bufio.Reader) error {
	if err := m.Ballot.Deserialize(buf); err != nil {
		return err
	}
	numAccepted, err := serializer.ReadUint64(buf)
	if err != nil {
		return err
	}
	m.Accepted = make([]acceptedValue, 0, numAccepted)
	for i := uint64(0); i < numAccepted; i++ {
		var av acceptedValue
		if av.Slot, err = serializer.ReadUint64(buf); err != nil {
			return err
		}
		if err = av.Ballot.Deserialize(buf); err != nil {
			return err
		}
		if av.Value, err = serializer.ReadFieldBytes(buf); err != nil {
			return err
		}
		m.Accepted = append(m.Accepted, av)
	}
	return nil
}

// phase 2a. The leader asks every peer to accept a value for a slot
type ProposeRequest struct {
	Slot   uint64
	Ballot Ballot
	Value  []byte
}

func (m *ProposeRequest) GetType() message.MessageType { return MESSAGE_PROPOSE }

func (m *ProposeRequest) Serialize(buf *bufio.Writer) error {
	if err := serializer.WriteUint64(buf, m.Slot); err != nil {
		return err
	}
	if err := m.Ballot.Serialize(buf); err != nil {
		return err
	}
	return serializer.WriteFieldBytes(buf, m.Value)
}

func (m *ProposeRequest) Deserialize(buf *bufio.Reader) error {
	var err error
	if m.Slot, err = serializer.ReadUint64(buf); err != nil {
		return err
	}
	if err = m.Ballot.Deserialize(buf); err != nil {
		return err
	}
	m.Value, err = serializer.ReadFieldBytes(buf)
	return err
}

// phase 2b. An acceptor's acknowledgement of a proposal
type AcceptResponse struct {
	Slot   uint64
	Ballot Ballot
}

func (m *AcceptResponse) GetType() message.MessageType { return MESSAGE_ACCEPT }

func (m *AcceptResponse) Serialize(buf *bufio.Writer) error {
	if err := serializer.WriteUint64(buf, m.Slot); err != nil {
		return err
	}
	return m.Ballot.Serialize(buf)
}

func (m *AcceptResponse) Deserialize(buf *bufio.Reader) error {
	var err error
	if m.Slot, err = serializer.ReadUint64(buf); err != nil {
		return err
	}
	return m.Ballot.Deserialize(buf)
}

// broadcast by the leader once a quorum has accepted a slot.
// Recipients mark the slot chosen and apply it in order
type LearnRequest struct {
	Slot   uint64
	Ballot Ballot
	Value  []byte
}

func (m *LearnRequest) GetType() message.MessageType { return MESSAGE_LEARN }

func (m *LearnRequest) Serialize(buf *bufio.Writer) error {
	if err := serializer.WriteUint64(buf, m.Slot); err != nil {
		return err
	}
	if err := m.Ballot.Serialize(buf); err != nil {
		return err
	}
	return serializer.WriteFieldBytes(buf, m.Value)
}

func (m *LearnRequest) Deserialize(buf *bufio.Reader) error {
	var err error
	if m.Slot, err = serializer.ReadUint64(buf); err != nil {
		return err
	}
	if err = m.Ballot.Deserialize(buf); err != nil {
		return err
	}
	m.Value, err = serializer.ReadFieldBytes(buf)
	return err
}

// tells the sender its ballot is stale. Carries the acceptor's
// highest promised ballot so the sender's next election increments
// past it instead of walking through doomed rounds
type NackResponse struct {
	Ballot Ballot
	Slot   uint64
}

func (m *NackResponse) GetType() message.MessageType { return MESSAGE_NACK }

func (m *NackResponse) Serialize(buf *bufio.Writer) error {
	if err := m.Ballot.Serialize(buf); err != nil {
		return err
	}
	return serializer.WriteUint64(buf, m.Slot)
}

func (m *NackResponse) Deserialize(buf *bufio.Reader) error {
	if err := m.Ballot.Deserialize(buf); err != nil {
		return err
	}
	var err error
	m.Slot, err = serializer.ReadUint64(buf)
	return err
}

// a client command, submitted to any replica and relayed to the
// believed leader
type ClientRequest struct {
	Value []byte
}

func (m *ClientRequest) GetType() message.MessageType { return MESSAGE_CLIENT_REQUEST }

func (m *ClientRequest) Serialize(buf *bufio.Writer) error {
	return serializer.WriteFieldBytes(buf, m.Value)
}

func (m *ClientRequest) Deserialize(buf *bufio.Reader) error {
	var err error
	m.Value, err = serializer.ReadFieldBytes(buf)
	return err
}
