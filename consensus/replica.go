/*
Multi-Paxos replica state machine

Each replica is a single threaded cooperative state machine, driven
externally through Tick. A replica acts as proposer, acceptor and
learner at once; leadership is decided by ballots and quorums, the
lease only suppresses unnecessary elections.
*/
package consensus

import (
	"bufio"
	"bytes"
	"fmt"
	"time"
)

import (
	"github.com/cactus/go-statsd-client/statsd"
	logging "github.com/op/go-logging"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
)

import (
	"github.com/qkniep/multi-paxos/message"
	"github.com/qkniep/multi-paxos/node"
	"github.com/qkniep/multi-paxos/storage"
	"github.com/qkniep/multi-paxos/store"
	"github.com/qkniep/multi-paxos/transport"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("consensus")
}

type ReplicaError struct {
	reason string
}

func NewReplicaError(format string, args ...interface{}) *ReplicaError {
	return &ReplicaError{reason: fmt.Sprintf(format, args...)}
}

func (e *ReplicaError) Error() string {
	return e.reason
}

var (
	// how long a leader regime lasts without renewal. The leader
	// proactively extends at half this
	LEASE_DURATION = uint64(2000)

	// wait between unsuccessful election attempts
	ELECTION_TIMEOUT = uint64(1000)

	// how long a tick blocks waiting for the first inbound message
	RECV_TIMEOUT = uint64(100)

	// max messages drained in a single tick
	TICK_MESSAGE_BATCH = 64
)

// mockable clock, tests substitute a controlled one
var replicaNow = func() time.Time { return time.Now() }

type ReplicaStatus string

const (
	REPLICA_FOLLOWER  = ReplicaStatus("FOLLOWER")
	REPLICA_CANDIDATE = ReplicaStatus("CANDIDATE")
	REPLICA_LEADER    = ReplicaStatus("LEADER")
)

// persistence keys
const (
	PERSIST_KEY_PROMISED = "highest_promised"
	PERSIST_KEY_LOG      = "log"
)

// a client command waiting for a reachable leader
type queuedCommand struct {
	requestId uuid.UUID
	value     []byte
}

type Replica struct {
	nodeId    node.NodeId
	groupSize uint32
	quorum    int

	tport        transport.Transport
	storage      storage.Storage
	stateMachine store.StateMachine

	status          ReplicaStatus
	log             *Log
	highestPromised Ballot

	// advisory leadership state, safety never depends on it
	currentLeader node.NodeId
	leaseStart    time.Time
	electionStart time.Time

	// promises collected during the active election, keyed by
	// acceptor so duplicates count once
	promises map[node.NodeId][]acceptedValue

	// next slot to hand to the state machine
	appliedUpto uint64

	// commands received while no leader was reachable
	clientQueue []queuedCommand

	stats statsd.Statter

	// set when a persistence write fails, the replica refuses all
	// further work rather than break its promises
	halted bool
}

// constructs a replica from its collaborators. Persistent state left
// by a previous incarnation is reloaded from storage and the chosen
// prefix replayed onto the state machine; everything soft starts
// fresh
func NewReplica(tport transport.Transport, stor storage.Storage, sm store.StateMachine,
	nodeId node.NodeId, groupSize uint32) (*Replica, error) {
	r := &Replica{
		nodeId:        nodeId,
		groupSize:     groupSize,
		quorum:        node.QuorumSize(groupSize),
		tport:         tport,
		storage:       stor,
		stateMachine:  sm,
		status:        REPLICA_FOLLOWER,
		log:           NewLog(),
		currentLeader: 0,
		clientQueue:   make([]queuedCommand, 0),
	}
	if err := r.restore(); err != nil {
		return nil, err
	}
	r.applyChosen()
	return r, nil
}

func (r *Replica) NodeId() node.NodeId { return r.nodeId }

func (r *Replica) Status() ReplicaStatus { return r.status }

func (r *Replica) CurrentLeader() node.NodeId { return r.currentLeader }

func (r *Replica) HighestPromised() Ballot { return r.highestPromised }

func (r *Replica) AppliedUpto() uint64 { return r.appliedUpto }

func (r *Replica) Halted() bool { return r.halted }

// returns the chosen value at the given slot, if any
func (r *Replica) ChosenValue(slot uint64) ([]byte, bool) {
	if slot >= r.log.Len() {
		return nil, false
	}
	entry := r.log.Entry(slot)
	if !entry.Chosen {
		return nil, false
	}
	return entry.Value, true
}

func (r *Replica) SetStatter(stats statsd.Statter) {
	r.stats = stats
}

// performs one cooperative step: drains already available messages,
// then evaluates the lease. Returns promptly, this is the sole entry
// point the scheduler drives
func (r *Replica) Tick() {
	if r.halted {
		return
	}

	r.drainMessages()
	if r.halted {
		return
	}

	if r.status == REPLICA_LEADER {
		// extend proactively before the group's leases run out
		if r.leaseElapsed() >= leaseDuration()/2 {
			r.startElection()
		}
	} else if r.leaseExpired() && r.electionElapsed() >= electionTimeout() {
		r.startElection()
	}
}

// local client submission, identical to receiving a ClientRequest
// from this node
func (r *Replica) Submit(command []byte) {
	if r.halted {
		return
	}
	r.handleClientRequest(r.nodeId, &ClientRequest{Value: command})
}

func (r *Replica) drainMessages() {
	timeout := time.Duration(RECV_TIMEOUT) * time.Millisecond
	for i := 0; i < TICK_MESSAGE_BATCH; i++ {
		src, mes, err := r.tport.Recv(timeout)
		timeout = 0
		if err == transport.ErrTimeout {
			return
		} else if err != nil {
			logger.Warning("Error receiving message: %v", err)
			return
		}
		r.handleMessage(src, mes)
		if r.halted {
			return
		}
	}
}

// dispatches on the message type. Unknown messages are logged and
// dropped, malformed input is never fatal
func (r *Replica) handleMessage(src node.NodeId, mes message.Message) {
	switch m := mes.(type) {
	case *PrepareRequest:
		r.handlePrepare(src, m)
	case *PromiseResponse:
		r.handlePromise(src, m)
	case *ProposeRequest:
		r.handlePropose(src, m)
	case *AcceptResponse:
		r.handleAccept(src, m)
	case *LearnRequest:
		r.handleLearn(src, m)
	case *NackResponse:
		r.handleNack(src, m)
	case *ClientRequest:
		r.handleClientRequest(src, m)
	default:
		logger.Warning("Dropping unexpected message type %T from node %v", mes, src)
	}
}

func leaseDuration() time.Duration {
	return time.Duration(LEASE_DURATION) * time.Millisecond
}

func electionTimeout() time.Duration {
	return time.Duration(ELECTION_TIMEOUT) * time.Millisecond
}

func (r *Replica) leaseElapsed() time.Duration {
	return replicaNow().Sub(r.leaseStart)
}

func (r *Replica) leaseExpired() bool {
	return r.leaseElapsed() >= leaseDuration()
}

func (r *Replica) electionElapsed() time.Duration {
	return replicaNow().Sub(r.electionStart)
}

// records the replica's promise and log durably. Must succeed before
// any Promise or Accept depending on the state leaves this node; on
// failure the replica halts rather than violate its promises
func (r *Replica) persist() error {
	promised, err := encodeBallot(r.highestPromised)
	if err == nil {
		err = r.storage.Store(PERSIST_KEY_PROMISED, promised)
	}
	if err == nil {
		var encoded []byte
		if encoded, err = encodeLog(r.log); err == nil {
			err = r.storage.Store(PERSIST_KEY_LOG, encoded)
		}
	}
	if err != nil {
		logger.Critical("Node %v halting, persistence failure: %v", r.nodeId, err)
		r.statsInc("persist.error.count", 1)
		r.halted = true
		return err
	}
	return nil
}

func (r *Replica) restore() error {
	data, exists, err := r.storage.Load(PERSIST_KEY_PROMISED)
	if err != nil {
		return errors.Wrap(err, "loading promised ballot")
	}
	if exists {
		if r.highestPromised, err = decodeBallot(data); err != nil {
			return errors.Wrap(err, "decoding promised ballot")
		}
	}

	data, exists, err = r.storage.Load(PERSIST_KEY_LOG)
	if err != nil {
		return errors.Wrap(err, "loading log")
	}
	if exists {
		if err = r.log.Deserialize(bufio.NewReader(bytes.NewReader(data))); err != nil {
			return errors.Wrap(err, "decoding log")
		}
		logger.Info("Node %v restored %v log entries, promised %v",
			r.nodeId, r.log.Len(), r.highestPromised)
	}
	return nil
}

func encodeBallot(b Ballot) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := bufio.NewWriter(buf)
	if err := b.Serialize(writer); err != nil {
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBallot(data []byte) (Ballot, error) {
	var b Ballot
	err := b.Deserialize(bufio.NewReader(bytes.NewReader(data)))
	return b, err
}

func encodeLog(l *Log) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := bufio.NewWriter(buf)
	if err := l.Serialize(writer); err != nil {
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Replica) statsInc(stat string, delta int64) {
	if r.stats == nil {
		return
	}
	r.stats.Inc(stat, delta, 1.0)
}

func (r *Replica) statsTiming(stat string, start time.Time) {
	if r.stats == nil {
		return
	}
	delta := int64(time.Now().Sub(start) / time.Millisecond)
	r.stats.Timing(stat, delta, 1.0)
}
