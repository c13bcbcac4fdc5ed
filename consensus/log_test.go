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

type LogTest struct{}

var _ = gocheck.Suite(&LogTest{})

func (s *LogTest) TestEntryGrowsLog(c *gocheck.C) {
	log := NewLog()
	entry := log.Entry(3)
	c.Assert(log.Len(), gocheck.Equals, uint64(4))
	c.Check(entry.Value, gocheck.IsNil)
	c.Check(entry.Chosen, gocheck.Equals, false)
	c.Check(entry.AcceptedBallot.IsZero(), gocheck.Equals, true)
	c.Check(len(entry.Acceptances), gocheck.Equals, 0)

	// re-referencing returns the same entry
	c.Check(log.Entry(3), gocheck.Equals, entry)
}

func (s *LogTest) TestHoles(c *gocheck.C) {
	log := NewLog()

	// empty log: only the sentinel
	c.Check(log.Holes(), gocheck.DeepEquals, []uint64{0})

	log.Entry(0).Chosen = true
	log.Entry(2).Chosen = true
	log.Entry(4)
	c.Check(log.Holes(), gocheck.DeepEquals, []uint64{1, 3, 4, 5})
}

func (s *LogTest) TestAcceptedValues(c *gocheck.C) {
	log := NewLog()
	entry := log.Entry(1)
	entry.Value = []byte("a")
	entry.AcceptedBallot = Ballot{2, 1}
	log.Entry(3)

	accepted := log.AcceptedValues()
	c.Assert(len(accepted), gocheck.Equals, 1)
	c.Check(accepted[0].Slot, gocheck.Equals, uint64(1))
	c.Check(accepted[0].Ballot, gocheck.Equals, Ballot{2, 1})
	c.Check(string(accepted[0].Value), gocheck.Equals, "a")
}

func (s *LogTest) TestSerializationSkipsSoftState(c *gocheck.C) {
	src := NewLog()
	entry := src.Entry(0)
	entry.Value = []byte("cmd")
	entry.AcceptedBallot = Ballot{3, 2}
	entry.Chosen = true
	entry.Acceptances[node.NodeId(1)] = true
	src.Entry(2).Value = []byte("tentative")

	buf := &bytes.Buffer{}
	writer := bufio.NewWriter(buf)
	c.Assert(src.Serialize(writer), gocheck.IsNil)
	c.Assert(writer.Flush(), gocheck.IsNil)

	dst := NewLog()
	c.Assert(dst.Deserialize(bufio.NewReader(buf)), gocheck.IsNil)
	c.Assert(dst.Len(), gocheck.Equals, uint64(3))
	c.Check(string(dst.Entry(0).Value), gocheck.Equals, "cmd")
	c.Check(dst.Entry(0).AcceptedBallot, gocheck.Equals, Ballot{3, 2})
	c.Check(dst.Entry(0).Chosen, gocheck.Equals, true)
	c.Check(dst.Entry(1).Value, gocheck.IsNil)
	c.Check(string(dst.Entry(2).Value), gocheck.Equals, "tentative")
	c.Check(dst.Entry(2).Chosen, gocheck.Equals, false)

	// acceptance tallies are soft state and start fresh
	c.Check(len(dst.Entry(0).Acceptances), gocheck.Equals, 0)
}
