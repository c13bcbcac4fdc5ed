package consensus

import (
	"math/rand"
	"sync"
	"time"
)

import (
	"github.com/cactus/go-statsd-client/statsd"
)

import (
	"github.com/qkniep/multi-paxos/message"
	"github.com/qkniep/multi-paxos/node"
	"github.com/qkniep/multi-paxos/transport"
)

// a state machine recording every applied command
type mockStateMachine struct {
	applied [][]byte
}

func newMockStateMachine() *mockStateMachine {
	return &mockStateMachine{applied: make([][]byte, 0)}
}

func (m *mockStateMachine) Apply(command []byte) ([]byte, error) {
	value := make([]byte, len(command))
	copy(value, command)
	m.applied = append(m.applied, value)
	return value, nil
}

func (m *mockStateMachine) appliedStrings() []string {
	applied := make([]string, len(m.applied))
	for i, command := range m.applied {
		applied[i] = string(command)
	}
	return applied
}

// in memory storage, with controllable failures
type mockStorage struct {
	data      map[string][]byte
	numStores int
	failing   bool
}

func newMockStorage() *mockStorage {
	return &mockStorage{data: make(map[string][]byte)}
}

func (s *mockStorage) Store(key string, value []byte) error {
	if s.failing {
		return NewReplicaError("mock storage failure")
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	s.numStores++
	return nil
}

func (s *mockStorage) Load(key string) ([]byte, bool, error) {
	value, exists := s.data[key]
	return value, exists, nil
}

func (s *mockStorage) Close() error { return nil }

// a message sitting in a node's inbox
type mockDatagram struct {
	src     node.NodeId
	payload []byte
}

// an in process datagram network connecting mock transports.
// Supports random drops, partitions, downed nodes, and forced send
// failures. Deliveries run every message through the real codec
type mockNetwork struct {
	lock       sync.Mutex
	queues     map[node.NodeId][]mockDatagram
	rng        *rand.Rand
	dropRate   float64
	partitions map[node.NodeId]int
	down       map[node.NodeId]bool
	failSends  map[node.NodeId]bool
}

func newMockNetwork(seed int64) *mockNetwork {
	return &mockNetwork{
		queues:     make(map[node.NodeId][]mockDatagram),
		rng:        rand.New(rand.NewSource(seed)),
		partitions: make(map[node.NodeId]int),
		down:       make(map[node.NodeId]bool),
		failSends:  make(map[node.NodeId]bool),
	}
}

func (n *mockNetwork) setDropRate(rate float64) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.dropRate = rate
}

// places nodes into disjoint partition groups; messages only flow
// within a group
func (n *mockNetwork) partition(groups ...[]node.NodeId) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.partitions = make(map[node.NodeId]int)
	for i, group := range groups {
		for _, id := range group {
			n.partitions[id] = i
		}
	}
}

func (n *mockNetwork) heal() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.partitions = make(map[node.NodeId]int)
}

func (n *mockNetwork) crash(id node.NodeId) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.down[id] = true
}

func (n *mockNetwork) isDown(id node.NodeId) bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.down[id]
}

// makes sends to the given node report failure instead of silently
// dropping, the way a closed socket would
func (n *mockNetwork) failSendsTo(id node.NodeId, failing bool) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.failSends[id] = failing
}

func (n *mockNetwork) deliver(src, dst node.NodeId, mes message.Message) bool {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.failSends[dst] {
		return false
	}

	// encode up front, a datagram that cannot be serialized is a
	// send failure rather than a drop
	payload, err := message.Encode(mes)
	if err != nil {
		logger.Warning("mock network failed encoding %T: %v", mes, err)
		return false
	}

	// best effort semantics: losses are invisible to the sender
	if n.down[src] || n.down[dst] {
		return true
	}
	if n.partitions[src] != n.partitions[dst] {
		return true
	}
	if n.dropRate > 0 && n.rng.Float64() < n.dropRate {
		return true
	}

	n.queues[dst] = append(n.queues[dst], mockDatagram{src: src, payload: payload})
	return true
}

func (n *mockNetwork) pop(id node.NodeId) (node.NodeId, message.Message, bool) {
	n.lock.Lock()
	defer n.lock.Unlock()

	queue := n.queues[id]
	if len(queue) == 0 {
		return 0, nil, false
	}
	datagram := queue[0]
	n.queues[id] = queue[1:]

	mes, err := message.Decode(datagram.payload)
	if err != nil {
		logger.Warning("mock network failed decoding datagram: %v", err)
		return 0, nil, false
	}
	return datagram.src, mes, true
}

// transport endpoint attached to a mock network
type mockTransport struct {
	network *mockNetwork
	id      node.NodeId
	peers   []node.NodeId
}

var _ = transport.Transport(&mockTransport{})

func (n *mockNetwork) transport(id node.NodeId) *mockTransport {
	return &mockTransport{network: n, id: id}
}

func (t *mockTransport) NodeId() node.NodeId { return t.id }

func (t *mockTransport) Discover(peers []node.NodeId) {
	t.peers = make([]node.NodeId, len(peers))
	copy(t.peers, peers)
}

func (t *mockTransport) Send(dst node.NodeId, mes message.Message) bool {
	return t.network.deliver(t.id, dst, mes)
}

func (t *mockTransport) Broadcast(mes message.Message) {
	for _, peer := range t.peers {
		if peer == t.id {
			continue
		}
		t.network.deliver(t.id, peer, mes)
	}
}

func (t *mockTransport) Recv(timeout time.Duration) (node.NodeId, message.Message, error) {
	src, mes, ok := t.network.pop(t.id)
	if !ok {
		return 0, nil, transport.ErrTimeout
	}
	return src, mes, nil
}

// a controllable clock, substituted for the replica clock in tests
type testClock struct {
	lock sync.Mutex
	now  time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// implements the statter interface
// used for testing things were called internally
// gauges and timers only keep the most recent value
type mockStatter struct {
	mutex    sync.RWMutex
	counters map[string]int64
	timers   map[string]int64
	gauges   map[string]int64
}

func newMockStatter() *mockStatter {
	return &mockStatter{
		counters: make(map[string]int64),
		timers:   make(map[string]int64),
		gauges:   make(map[string]int64),
	}
}

var _ = statsd.Statter(&mockStatter{})

func (s *mockStatter) Inc(stat string, value int64, rate float32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.counters[stat] += value
	return nil
}

func (s *mockStatter) Dec(stat string, value int64, rate float32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.counters[stat] -= value
	return nil
}

func (s *mockStatter) Gauge(stat string, value int64, rate float32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.gauges[stat] = value
	return nil
}

func (s *mockStatter) GaugeDelta(stat string, value int64, rate float32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.gauges[stat] += value
	return nil
}

func (s *mockStatter) Timing(stat string, delta int64, rate float32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.timers[stat] = delta
	return nil
}

func (s *mockStatter) TimingDuration(stat string, delta time.Duration, rate float32) error {
	return s.Timing(stat, int64(delta/time.Millisecond), rate)
}

func (s *mockStatter) Set(stat string, value string, rate float32) error { return nil }

func (s *mockStatter) SetInt(stat string, value int64, rate float32) error { return nil }

func (s *mockStatter) Raw(stat string, value string, rate float32) error { return nil }

func (s *mockStatter) NewSubStatter(sub string) statsd.SubStatter { return nil }

func (s *mockStatter) SetPrefix(prefix string) {}

func (s *mockStatter) Close() error { return nil }

func (s *mockStatter) counter(stat string) int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.counters[stat]
}
