package consensus

import (
	gocheck "gopkg.in/check.v1"
)

type ProposeTest struct {
	baseReplicaTest
}

var _ = gocheck.Suite(&ProposeTest{})

func (s *ProposeTest) TestLeaderProposesLocally(c *gocheck.C) {
	leader := s.electLeader(c)
	leader.Submit([]byte("X"))

	entry := leader.log.Entry(0)
	c.Check(string(entry.Value), gocheck.Equals, "X")
	c.Check(entry.AcceptedBallot, gocheck.Equals, leader.HighestPromised())
	c.Check(entry.Chosen, gocheck.Equals, false)

	// the leader is its own first acceptor
	c.Check(entry.Acceptances[leader.nodeId], gocheck.Equals, true)
	c.Check(len(entry.Acceptances), gocheck.Equals, 1)
}

// one more acceptance completes a 2-of-3 quorum thanks to the
// leader's self count
func (s *ProposeTest) TestSelfCountCompletesQuorum(c *gocheck.C) {
	leader := s.electLeader(c)
	var downFollower *Replica
	for _, replica := range s.replicas {
		if replica != leader {
			downFollower = replica
		}
	}
	s.network.crash(downFollower.nodeId)

	leader.Submit([]byte("X"))
	s.runUntil(c, 50, func() bool {
		_, chosen := leader.ChosenValue(0)
		return chosen
	})
	value, _ := leader.ChosenValue(0)
	c.Check(string(value), gocheck.Equals, "X")
}

func (s *ProposeTest) TestAcceptorRecordsProposal(c *gocheck.C) {
	replica := s.replicas[1]
	replica.handlePropose(0, &ProposeRequest{Slot: 2, Ballot: Ballot{1, 0}, Value: []byte("v")})

	// log grown with default entries up to the slot
	c.Assert(replica.log.Len(), gocheck.Equals, uint64(3))
	c.Check(replica.log.Entry(0).Value, gocheck.IsNil)
	c.Check(string(replica.log.Entry(2).Value), gocheck.Equals, "v")
	c.Check(replica.log.Entry(2).AcceptedBallot, gocheck.Equals, Ballot{1, 0})

	// acceptance durably recorded before the reply went out
	c.Check(s.storages[1].numStores > 0, gocheck.Equals, true)

	_, mes, ok := s.network.pop(0)
	c.Assert(ok, gocheck.Equals, true)
	accept, ok := mes.(*AcceptResponse)
	c.Assert(ok, gocheck.Equals, true)
	c.Check(accept.Slot, gocheck.Equals, uint64(2))
	c.Check(accept.Ballot, gocheck.Equals, Ballot{1, 0})
}

func (s *ProposeTest) TestStaleProposalNacked(c *gocheck.C) {
	replica := s.replicas[1]
	replica.highestPromised = Ballot{5, 2}

	replica.handlePropose(0, &ProposeRequest{Slot: 0, Ballot: Ballot{3, 0}, Value: []byte("v")})

	// local state untouched
	c.Check(replica.log.Len(), gocheck.Equals, uint64(0))

	_, mes, ok := s.network.pop(0)
	c.Assert(ok, gocheck.Equals, true)
	nack, ok := mes.(*NackResponse)
	c.Assert(ok, gocheck.Equals, true)
	c.Check(nack.Ballot, gocheck.Equals, Ballot{5, 2})
	c.Check(nack.Slot, gocheck.Equals, uint64(0))
}

// a frozen slot is acknowledged but never overwritten
func (s *ProposeTest) TestChosenSlotIsFrozen(c *gocheck.C) {
	replica := s.replicas[1]
	entry := replica.log.Entry(0)
	entry.Value = []byte("done")
	entry.AcceptedBallot = Ballot{1, 0}
	entry.Chosen = true

	replica.handlePropose(0, &ProposeRequest{Slot: 0, Ballot: Ballot{2, 0}, Value: []byte("done")})

	c.Check(string(replica.log.Entry(0).Value), gocheck.Equals, "done")
	c.Check(replica.log.Entry(0).AcceptedBallot, gocheck.Equals, Ballot{1, 0})
	_, mes, ok := s.network.pop(0)
	c.Assert(ok, gocheck.Equals, true)
	c.Check(mes, gocheck.FitsTypeOf, &AcceptResponse{})
}

func (s *ProposeTest) TestStaleAcceptanceIgnored(c *gocheck.C) {
	leader := s.electLeader(c)
	leader.Submit([]byte("X"))

	stale := Ballot{leader.HighestPromised().Round - 1, leader.nodeId}
	leader.handleAccept(1, &AcceptResponse{Slot: 0, Ballot: stale})
	c.Check(len(leader.log.Entry(0).Acceptances), gocheck.Equals, 1)
	c.Check(leader.log.Entry(0).Chosen, gocheck.Equals, false)
}

type AcceptQuorumTest struct {
	baseReplicaTest
}

var _ = gocheck.Suite(&AcceptQuorumTest{})

func (s *AcceptQuorumTest) SetUpTest(c *gocheck.C) {
	s.numNodes = 5
	s.baseReplicaTest.SetUpTest(c)
}

// duplicated acceptances count once toward the quorum
func (s *AcceptQuorumTest) TestDuplicateAcceptancesIgnored(c *gocheck.C) {
	leader := s.electLeader(c)
	leader.Submit([]byte("X"))
	ballot := leader.HighestPromised()

	leader.handleAccept(1, &AcceptResponse{Slot: 0, Ballot: ballot})
	leader.handleAccept(1, &AcceptResponse{Slot: 0, Ballot: ballot})
	entry := leader.log.Entry(0)
	c.Check(len(entry.Acceptances), gocheck.Equals, 2)
	c.Check(entry.Chosen, gocheck.Equals, false)

	// a third distinct acceptor completes the quorum
	leader.handleAccept(2, &AcceptResponse{Slot: 0, Ballot: ballot})
	c.Check(entry.Chosen, gocheck.Equals, true)
}

// the learn goes out only once the quorum is reached
func (s *AcceptQuorumTest) TestLearnBroadcastOnQuorum(c *gocheck.C) {
	leader := s.electLeader(c)
	// quiesce inboxes before watching for the learn
	s.runUntil(c, 10, func() bool { return s.leader() == leader })
	s.tickAll()

	leader.Submit([]byte("X"))
	ballot := leader.HighestPromised()
	leader.handleAccept(1, &AcceptResponse{Slot: 0, Ballot: ballot})
	c.Check(s.statters[leader.nodeId].counter("slot.chosen.count"), gocheck.Equals, int64(0))

	leader.handleAccept(2, &AcceptResponse{Slot: 0, Ballot: ballot})
	c.Check(s.statters[leader.nodeId].counter("slot.chosen.count"), gocheck.Equals, int64(1))
	c.Check(leader.AppliedUpto(), gocheck.Equals, uint64(1))
}

type ClientRelayTest struct {
	baseReplicaTest
}

var _ = gocheck.Suite(&ClientRelayTest{})

func (s *ClientRelayTest) TestRelayToLeader(c *gocheck.C) {
	leader := s.electLeader(c)
	follower := s.replicas[1]
	if follower == leader {
		follower = s.replicas[0]
	}

	follower.Submit([]byte("A"))
	s.runUntil(c, 100, func() bool { return s.chosenEverywhere(0, "A") })
	c.Check(s.statters[follower.nodeId].counter("client.relay.count"), gocheck.Equals, int64(1))
}

// a failed relay parks the command locally until a leader is
// reachable again
func (s *ClientRelayTest) TestQueueOnRelayFailure(c *gocheck.C) {
	leader := s.electLeader(c)
	follower := s.replicas[1]
	if follower == leader {
		follower = s.replicas[0]
	}

	s.network.failSendsTo(leader.nodeId, true)
	follower.Submit([]byte("A"))
	c.Check(len(follower.clientQueue), gocheck.Equals, 1)
	c.Check(s.statters[follower.nodeId].counter("client.queue.count"), gocheck.Equals, int64(1))

	s.network.failSendsTo(leader.nodeId, false)
	s.runUntil(c, 100, func() bool { return s.chosenEverywhere(0, "A") })
	c.Check(len(follower.clientQueue), gocheck.Equals, 0)
}

// commands submitted while no leader exists are proposed once an
// election resolves one
func (s *ClientRelayTest) TestQueueDrainedAfterElection(c *gocheck.C) {
	replica := s.replicas[1]
	replica.currentLeader = replica.nodeId
	replica.Submit([]byte("A"))
	c.Check(len(replica.clientQueue), gocheck.Equals, 1)

	s.runUntil(c, 200, func() bool { return s.chosenEverywhere(0, "A") })
}
