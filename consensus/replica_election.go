/*
Leader election (phase 1) and promise accounting
*/
package consensus

import (
	"github.com/qkniep/multi-paxos/node"
)

// begins a new leader regime attempt under a strictly higher ballot.
// Also used by a sitting leader to extend its lease: the renewal is a
// full phase 1 round, acceptors allow it mid lease because the sender
// is their current leader
func (r *Replica) startElection() {
	ballot := r.highestPromised.IncrementFor(r.nodeId)
	r.highestPromised = ballot
	r.status = REPLICA_CANDIDATE
	r.electionStart = replicaNow()

	// this node's own promise, with everything it has accepted
	r.promises = map[node.NodeId][]acceptedValue{
		r.nodeId: r.log.AcceptedValues(),
	}

	if err := r.persist(); err != nil {
		return
	}

	holes := r.log.Holes()
	logger.Info("Node %v starting election with ballot %v (%v open slots)",
		r.nodeId, ballot, len(holes)-1)
	r.statsInc("election.start.count", 1)

	r.tport.Broadcast(&PrepareRequest{Ballot: ballot, Holes: holes})
	r.maybeBecomeLeader()
}

// acceptor side of phase 1
func (r *Replica) handlePrepare(src node.NodeId, mes *PrepareRequest) {
	if mes.Ballot.LessThan(r.highestPromised) {
		logger.Debug("Node %v rejecting stale prepare %v < %v",
			r.nodeId, mes.Ballot, r.highestPromised)
		r.statsInc("prepare.reject.stale.count", 1)
		r.tport.Send(src, &NackResponse{Ballot: r.highestPromised})
		return
	}

	// lease stability: a live leader cannot be preempted mid lease,
	// only renewed by itself. The candidate's ballot is not stale,
	// so no Nack, it would poison the candidate's next round
	if !r.leaseExpired() && src != r.currentLeader {
		logger.Debug("Node %v ignoring prepare from %v, lease held by %v",
			r.nodeId, src, r.currentLeader)
		r.statsInc("prepare.reject.lease.count", 1)
		return
	}

	r.highestPromised = mes.Ballot
	r.currentLeader = src
	r.leaseStart = replicaNow()
	if src != r.nodeId {
		// a candidacy of our own, if any, is over
		r.status = REPLICA_FOLLOWER
		r.promises = nil
	}

	if err := r.persist(); err != nil {
		return
	}

	accepted := filterAcceptedValues(r.log.AcceptedValues(), mes.Holes)
	logger.Debug("Node %v promising %v, reporting %v accepted values",
		r.nodeId, mes.Ballot, len(accepted))
	r.statsInc("prepare.promise.count", 1)
	r.tport.Send(src, &PromiseResponse{Ballot: mes.Ballot, Accepted: accepted})

	// a granted promise is how this node hears about elections,
	// commands stranded without a leader get another try
	r.drainClientQueue()
}

// keeps only the values the candidate asked about: specific holes,
// plus everything at or beyond the terminal sentinel
func filterAcceptedValues(accepted []acceptedValue, holes []uint64) []acceptedValue {
	if len(holes) == 0 {
		return accepted
	}
	sentinel := holes[len(holes)-1]
	holeSet := make(map[uint64]bool, len(holes))
	for _, hole := range holes {
		holeSet[hole] = true
	}

	requested := make([]acceptedValue, 0, len(accepted))
	for _, av := range accepted {
		if av.Slot >= sentinel || holeSet[av.Slot] {
			requested = append(requested, av)
		}
	}
	return requested
}

// proposer side of phase 1
func (r *Replica) handlePromise(src node.NodeId, mes *PromiseResponse) {
	if r.status != REPLICA_CANDIDATE {
		logger.Debug("Node %v not a candidate, dropping promise from %v", r.nodeId, src)
		r.statsInc("promise.stale.count", 1)
		return
	}
	// out of round response from a prior ballot, or a regime we
	// have already promised away from
	if !mes.Ballot.Equal(r.highestPromised) || mes.Ballot.NodeId != r.nodeId {
		logger.Debug("Node %v dropping promise for %v, current is %v",
			r.nodeId, mes.Ballot, r.highestPromised)
		r.statsInc("promise.stale.count", 1)
		return
	}
	if _, exists := r.promises[src]; exists {
		// duplicate from a flaky transport
		return
	}

	r.promises[src] = mes.Accepted
	r.statsInc("promise.count", 1)
	r.maybeBecomeLeader()
}

// completes the election once a quorum has promised. Every slot not
// yet known chosen is re-proposed with the value accepted under the
// highest ballot any promiser reported; this node's own values were
// seeded into the promise set and act as the fallback. A slot nobody
// has a value for stays absent
func (r *Replica) maybeBecomeLeader() {
	if r.status != REPLICA_CANDIDATE || len(r.promises) < r.quorum {
		return
	}

	ballot := r.highestPromised
	r.status = REPLICA_LEADER
	r.currentLeader = r.nodeId
	r.leaseStart = replicaNow()
	logger.Info("Node %v elected under ballot %v", r.nodeId, ballot)
	r.statsInc("election.won.count", 1)

	// per slot, the value accepted under the highest ballot wins
	recovered := make(map[uint64]acceptedValue)
	for _, accepted := range r.promises {
		for _, av := range accepted {
			best, exists := recovered[av.Slot]
			if !exists || best.Ballot.LessThan(av.Ballot) {
				recovered[av.Slot] = av
			}
			if av.Slot >= r.log.Len() {
				r.log.Extend(av.Slot)
			}
		}
	}

	proposals := make([]*ProposeRequest, 0, len(recovered))
	for slot := uint64(0); slot < r.log.Len(); slot++ {
		entry := r.log.Entry(slot)
		if entry.Chosen {
			continue
		}
		best, exists := recovered[slot]
		if !exists {
			// nobody reported a value, never propose without one
			continue
		}
		entry.Value = best.Value
		entry.AcceptedBallot = ballot
		entry.Acceptances = map[node.NodeId]bool{r.nodeId: true}
		proposals = append(proposals, &ProposeRequest{
			Slot:   slot,
			Ballot: ballot,
			Value:  best.Value,
		})
	}

	if len(proposals) > 0 {
		if err := r.persist(); err != nil {
			return
		}
		logger.Info("Node %v re-proposing %v open slots", r.nodeId, len(proposals))
		for _, proposal := range proposals {
			r.statsInc("propose.recover.count", 1)
			r.tport.Broadcast(proposal)
			r.maybeChoose(proposal.Slot)
		}
	}

	r.retransmitChosen()
	r.drainClientQueue()
}

// a Nack means some acceptor has promised a higher ballot. Adopt it
// so the next election increments past the doomed range, step down,
// and wait for the lease to run out before trying again
func (r *Replica) handleNack(src node.NodeId, mes *NackResponse) {
	logger.Debug("Node %v received nack from %v with ballot %v", r.nodeId, src, mes.Ballot)
	r.statsInc("nack.count", 1)

	if r.highestPromised.LessThan(mes.Ballot) {
		r.highestPromised = mes.Ballot
		if err := r.persist(); err != nil {
			return
		}
	}
	if r.status != REPLICA_FOLLOWER {
		logger.Info("Node %v stepping down, ballot %v is stale", r.nodeId, mes.Ballot)
		r.status = REPLICA_FOLLOWER
		r.promises = nil
	}
}
