/*
Learning chosen values and applying them in order
*/
package consensus

import (
	"bytes"
)

import (
	"github.com/qkniep/multi-paxos/node"
)

// freezes a slot once a quorum has accepted it and tells the group.
// The Learn only ever goes out after quorum acceptances under the
// leader's own current ballot, this node included
func (r *Replica) maybeChoose(slot uint64) {
	entry := r.log.Entry(slot)
	if entry.Chosen || len(entry.Acceptances) < r.quorum {
		return
	}

	entry.Chosen = true
	logger.Info("Node %v: value chosen at slot %v under ballot %v",
		r.nodeId, slot, entry.AcceptedBallot)
	r.statsInc("slot.chosen.count", 1)

	if err := r.persist(); err != nil {
		return
	}
	r.tport.Broadcast(&LearnRequest{Slot: slot, Ballot: entry.AcceptedBallot, Value: entry.Value})
	r.applyChosen()
}

// marks a slot chosen on a learner. Chosen is terminal, a repeat
// Learn for a frozen slot changes nothing. Every Learn is answered
// with an acceptance so the leader's accounting records that this
// node has the slot, and retransmissions stop
func (r *Replica) handleLearn(src node.NodeId, mes *LearnRequest) {
	entry := r.log.Entry(mes.Slot)
	if entry.Chosen {
		if !bytes.Equal(entry.Value, mes.Value) {
			logger.Critical("Node %v: conflicting learn for chosen slot %v from node %v",
				r.nodeId, mes.Slot, src)
			return
		}
		r.tport.Send(src, &AcceptResponse{Slot: mes.Slot, Ballot: mes.Ballot})
		return
	}

	entry.Value = mes.Value
	entry.AcceptedBallot = mes.Ballot
	entry.Chosen = true
	if err := r.persist(); err != nil {
		return
	}

	logger.Debug("Node %v learned slot %v", r.nodeId, mes.Slot)
	r.statsInc("learn.count", 1)
	r.tport.Send(src, &AcceptResponse{Slot: mes.Slot, Ballot: mes.Ballot})
	r.applyChosen()
}

// re-sends Learn for chosen slots to the peers whose acceptance is
// not on record, under the current regime's ballot. Datagrams drop,
// and a learner that missed its Learn has no other way to catch up
// while the leadership is stable; the acceptance sets say exactly
// who still needs what. Runs on every election win, including lease
// extensions
func (r *Replica) retransmitChosen() {
	resent := 0
	for slot := uint64(0); slot < r.log.Len(); slot++ {
		entry := r.log.Entry(slot)
		if !entry.Chosen {
			continue
		}
		for peer := node.NodeId(0); peer < node.NodeId(r.groupSize); peer++ {
			if peer == r.nodeId || entry.Acceptances[peer] {
				continue
			}
			r.tport.Send(peer, &LearnRequest{
				Slot:   slot,
				Ballot: r.highestPromised,
				Value:  entry.Value,
			})
			resent++
		}
	}
	if resent > 0 {
		logger.Debug("Node %v retransmitted %v learns", r.nodeId, resent)
		r.statsInc("learn.retransmit.count", int64(resent))
	}
}

// hands every newly applicable slot to the state machine, strictly in
// order, stopping at the first gap. Application errors are the
// application's business, the command is still consumed exactly once
func (r *Replica) applyChosen() {
	for r.appliedUpto < r.log.Len() {
		entry := r.log.Entry(r.appliedUpto)
		if !entry.Chosen {
			break
		}
		if _, err := r.stateMachine.Apply(entry.Value); err != nil {
			logger.Debug("Node %v: state machine error at slot %v: %v",
				r.nodeId, r.appliedUpto, err)
		}
		r.appliedUpto++
		r.statsInc("apply.count", 1)
	}
}
