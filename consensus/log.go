package consensus

import (
	"bufio"
)

import (
	"github.com/qkniep/multi-paxos/node"
	"github.com/qkniep/multi-paxos/serializer"
)

// LogEntry holds the state of a single slot in the replicated log.
// An entry is created default on first reference to its slot and is
// never destroyed; it moves from empty, to tentative, to chosen
type LogEntry struct {
	// the tentative or chosen command, nil until some proposal
	// has been observed for this slot
	Value []byte

	// the highest ballot under which Value was accepted locally
	AcceptedBallot Ballot

	// the peers known to have accepted the current regime's
	// proposal for this slot. Tracked as a set so duplicate
	// Accept messages from a flaky transport count once
	Acceptances map[node.NodeId]bool

	// once set, Value is frozen forever. Never reverses
	Chosen bool
}

func newLogEntry() *LogEntry {
	return &LogEntry{
		Acceptances: make(map[node.NodeId]bool),
	}
}

// a value some replica reported as accepted for a slot,
// tagged with the ballot it was accepted under
type acceptedValue struct {
	Slot   uint64
	Ballot Ballot
	Value  []byte
}

// Log is the dense slot-indexed sequence of entries. Gaps are
// represented by default entries
type Log struct {
	entries []*LogEntry
}

func NewLog() *Log {
	return &Log{entries: make([]*LogEntry, 0)}
}

func (l *Log) Len() uint64 {
	return uint64(len(l.entries))
}

// grows the log with default entries until it covers the given slot
func (l *Log) Extend(slot uint64) {
	for uint64(len(l.entries)) <= slot {
		l.entries = append(l.entries, newLogEntry())
	}
}

// returns the entry at the given slot, growing the log to cover it
// if needed. An out of range slot reference is never an error
func (l *Log) Entry(slot uint64) *LogEntry {
	l.Extend(slot)
	return l.entries[slot]
}

// appends a new entry and returns its slot index
func (l *Log) Append(entry *LogEntry) uint64 {
	l.entries = append(l.entries, entry)
	return uint64(len(l.entries) - 1)
}

// returns the ascending slot indices not yet known to be chosen,
// terminated by the one-past-end sentinel. The sentinel asks peers
// to also report anything they have at or beyond it
func (l *Log) Holes() []uint64 {
	holes := make([]uint64, 0, len(l.entries)+1)
	for slot, entry := range l.entries {
		if !entry.Chosen {
			holes = append(holes, uint64(slot))
		}
	}
	holes = append(holes, uint64(len(l.entries)))
	return holes
}

// returns every slot this replica has a value for, tagged with the
// ballot it was accepted under
func (l *Log) AcceptedValues() []acceptedValue {
	accepted := make([]acceptedValue, 0, len(l.entries))
	for slot, entry := range l.entries {
		if entry.Value == nil {
			continue
		}
		accepted = append(accepted, acceptedValue{
			Slot:   uint64(slot),
			Ballot: entry.AcceptedBallot,
			Value:  entry.Value,
		})
	}
	return accepted
}

// persistent encoding of the log. Acceptance sets are soft state
// and deliberately not included
func (l *Log) Serialize(buf *bufio.Writer) error {
	if err := serializer.WriteUint64(buf, uint64(len(l.entries))); err != nil {
		return err
	}
	for _, entry := range l.entries {
		if err := serializer.WriteBool(buf, entry.Value != nil); err != nil {
			return err
		}
		if entry.Value != nil {
			if err := serializer.WriteFieldBytes(buf, entry.Value); err != nil {
				return err
			}
		}
		if err := entry.AcceptedBallot.Serialize(buf); err != nil {
			return err
		}
		if err := serializer.WriteBool(buf, entry.Chosen); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) Deserialize(buf *bufio.Reader) error {
	numEntries, err := serializer.ReadUint64(buf)
	if err != nil {
		return err
	}
	entries := make([]*LogEntry, 0, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		entry := newLogEntry()
		hasValue, err := serializer.ReadBool(buf)
		if err != nil {
			return err
		}
		if hasValue {
			if entry.Value, err = serializer.ReadFieldBytes(buf); err != nil {
				return err
			}
		}
		if err := entry.AcceptedBallot.Deserialize(buf); err != nil {
			return err
		}
		if entry.Chosen, err = serializer.ReadBool(buf); err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	l.entries = entries
	return nil
}
