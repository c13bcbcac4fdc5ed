package consensus

import (
	"bufio"
	"bytes"
)

import (
	gocheck "gopkg.in/check.v1"
)

import (
	"github.com/qkniep/multi-paxos/node"
)

type BallotTest struct{}

var _ = gocheck.Suite(&BallotTest{})

func (s *BallotTest) TestComparison(c *gocheck.C) {
	c.Check(Ballot{5, 2}.Cmp(Ballot{4, 9}), gocheck.Equals, 1)
	c.Check(Ballot{5, 2}.Cmp(Ballot{5, 1}), gocheck.Equals, 1)
	c.Check(Ballot{5, 2}.Cmp(Ballot{5, 2}), gocheck.Equals, 0)
	c.Check(Ballot{4, 9}.LessThan(Ballot{5, 2}), gocheck.Equals, true)
	c.Check(Ballot{5, 2}.LessThan(Ballot{5, 2}), gocheck.Equals, false)
	c.Check(Ballot{5, 2}.Equal(Ballot{5, 2}), gocheck.Equals, true)
}

func (s *BallotTest) TestIncrement(c *gocheck.C) {
	// stored node id at or above our own bumps the round
	c.Check(Ballot{5, 7}.IncrementFor(3), gocheck.Equals, Ballot{6, 3})
	c.Check(Ballot{5, 1}.IncrementFor(3), gocheck.Equals, Ballot{5, 3})
	c.Check(Ballot{5, 3}.IncrementFor(3), gocheck.Equals, Ballot{6, 3})
}

func (s *BallotTest) TestIncrementIsMonotonic(c *gocheck.C) {
	ballot := Ballot{}
	for id := node.NodeId(0); id < 5; id++ {
		next := ballot.IncrementFor(id)
		c.Assert(ballot.LessThan(next), gocheck.Equals, true,
			gocheck.Commentf("%v -> %v", ballot, next))
		ballot = next
	}
}

// distinct nodes can never produce equal ballots from any
// common starting point
func (s *BallotTest) TestIncrementIsUnique(c *gocheck.C) {
	starts := []Ballot{{}, {1, 0}, {3, 2}, {7, 7}}
	for _, start := range starts {
		seen := make(map[Ballot]node.NodeId)
		for id := node.NodeId(0); id < 8; id++ {
			next := start.IncrementFor(id)
			if prev, exists := seen[next]; exists {
				c.Errorf("nodes %v and %v both produced %v from %v", prev, id, next, start)
			}
			seen[next] = id
		}
	}
}

func (s *BallotTest) TestZeroIsSentinel(c *gocheck.C) {
	zero := Ballot{}
	c.Check(zero.IsZero(), gocheck.Equals, true)

	// the first ballot any node ever issues exceeds the sentinel
	for id := node.NodeId(0); id < 5; id++ {
		c.Check(zero.LessThan(zero.IncrementFor(id)), gocheck.Equals, true)
	}
}

func (s *BallotTest) TestSerialization(c *gocheck.C) {
	src := Ballot{Round: 42, NodeId: 3}
	buf := &bytes.Buffer{}
	writer := bufio.NewWriter(buf)
	c.Assert(src.Serialize(writer), gocheck.IsNil)
	c.Assert(writer.Flush(), gocheck.IsNil)

	// fixed width: two unsigned integers
	c.Check(buf.Len(), gocheck.Equals, 12)

	var dst Ballot
	c.Assert(dst.Deserialize(bufio.NewReader(buf)), gocheck.IsNil)
	c.Check(dst, gocheck.Equals, src)
}
