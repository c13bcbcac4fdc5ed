/*
Proposal (phase 2) and client request relaying
*/
package consensus

import (
	"github.com/pborman/uuid"
)

import (
	"github.com/qkniep/multi-paxos/node"
)

// a client command arriving at this replica, locally or relayed.
// A leader with a live lease proposes it at the next slot, anyone
// else forwards to the believed leader
func (r *Replica) handleClientRequest(src node.NodeId, mes *ClientRequest) {
	if r.status == REPLICA_LEADER && !r.leaseExpired() {
		r.proposeValue(mes.Value)
		return
	}

	if r.currentLeader == r.nodeId {
		// believed leader is this node but it holds no regime,
		// hold the command until an election resolves things
		r.enqueueClientCommand(mes.Value)
		return
	}

	logger.Debug("Node %v relaying client request to leader %v", r.nodeId, r.currentLeader)
	if !r.tport.Send(r.currentLeader, mes) {
		logger.Warning("Node %v failed relaying command to leader %v", r.nodeId, r.currentLeader)
		r.statsInc("client.relay.error.count", 1)
		r.enqueueClientCommand(mes.Value)
		return
	}
	r.statsInc("client.relay.count", 1)
	r.drainClientQueue()
}

// assigns the command the next slot and asks the group to accept it.
// The leader is its own first acceptor, that self count is the
// difference between a working 2-of-3 quorum and deadlock
func (r *Replica) proposeValue(value []byte) {
	entry := newLogEntry()
	entry.Value = value
	entry.AcceptedBallot = r.highestPromised
	entry.Acceptances[r.nodeId] = true
	slot := r.log.Append(entry)

	if err := r.persist(); err != nil {
		return
	}

	logger.Debug("Node %v proposing slot %v under ballot %v", r.nodeId, slot, r.highestPromised)
	r.statsInc("propose.count", 1)
	r.tport.Broadcast(&ProposeRequest{Slot: slot, Ballot: r.highestPromised, Value: value})
	r.maybeChoose(slot)
}

func (r *Replica) enqueueClientCommand(value []byte) {
	requestId := uuid.NewRandom()
	logger.Debug("Node %v queueing client command %v until a leader is reachable",
		r.nodeId, requestId)
	r.statsInc("client.queue.count", 1)
	r.clientQueue = append(r.clientQueue, queuedCommand{requestId: requestId, value: value})
}

// retries every queued command. Runs on election and after any
// successful relay; commands that fail again simply re-queue
func (r *Replica) drainClientQueue() {
	if len(r.clientQueue) == 0 {
		return
	}
	queued := r.clientQueue
	r.clientQueue = make([]queuedCommand, 0)
	logger.Debug("Node %v draining %v queued client commands", r.nodeId, len(queued))
	for _, qc := range queued {
		r.handleClientRequest(r.nodeId, &ClientRequest{Value: qc.value})
	}
}

// acceptor side of phase 2
func (r *Replica) handlePropose(src node.NodeId, mes *ProposeRequest) {
	if mes.Ballot.LessThan(r.highestPromised) {
		logger.Debug("Node %v rejecting proposal for slot %v, ballot %v < %v",
			r.nodeId, mes.Slot, mes.Ballot, r.highestPromised)
		r.statsInc("propose.reject.count", 1)
		r.tport.Send(src, &NackResponse{Ballot: r.highestPromised, Slot: mes.Slot})
		return
	}

	entry := r.log.Entry(mes.Slot)
	if entry.Chosen {
		// the slot is frozen, and agreement guarantees the proposal
		// carries the same value. Acknowledge without touching it
		r.tport.Send(src, &AcceptResponse{Slot: mes.Slot, Ballot: mes.Ballot})
		return
	}

	entry.Value = mes.Value
	entry.AcceptedBallot = mes.Ballot
	if err := r.persist(); err != nil {
		return
	}

	r.statsInc("propose.accept.count", 1)
	r.tport.Send(src, &AcceptResponse{Slot: mes.Slot, Ballot: mes.Ballot})
}

// leader side of phase 2, tallies acceptances toward the quorum
func (r *Replica) handleAccept(src node.NodeId, mes *AcceptResponse) {
	// only acceptances for this node's current regime count
	if !mes.Ballot.Equal(r.highestPromised) || mes.Ballot.NodeId != r.nodeId {
		logger.Debug("Node %v dropping acceptance for ballot %v, current is %v",
			r.nodeId, mes.Ballot, r.highestPromised)
		r.statsInc("accept.stale.count", 1)
		return
	}
	if mes.Slot >= r.log.Len() {
		logger.Warning("Node %v got acceptance for unknown slot %v", r.nodeId, mes.Slot)
		return
	}

	entry := r.log.Entry(mes.Slot)
	if entry.Value == nil {
		return
	}
	entry.Acceptances[src] = true
	r.maybeChoose(mes.Slot)
}
