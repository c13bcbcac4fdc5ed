package transport

import (
	"bytes"
	"net"
	"time"
)

import (
	"github.com/pkg/errors"
)

import (
	"github.com/qkniep/multi-paxos/message"
	"github.com/qkniep/multi-paxos/node"
)

// a single protocol message must fit in one datagram
const MAX_DATAGRAM_SIZE = 64 * 1024

// node ids map onto consecutive loopback ports starting here.
// Overridable for tests running multiple groups on one machine
var BASE_PORT = 64000

// UdpTransport delivers messages over UDP on the loopback interface.
// The socket is owned exclusively by its replica
type UdpTransport struct {
	nodeId   node.NodeId
	basePort int
	socket   *net.UDPConn
	peers    []node.NodeId
}

var _ = Transport(&UdpTransport{})

// binds the socket derived from the given node id
func NewUdpTransport(nodeId node.NodeId, basePort int) (*UdpTransport, error) {
	if basePort <= 0 {
		basePort = BASE_PORT
	}
	socket, err := net.ListenUDP("udp", NodeIdToAddr(nodeId, basePort))
	if err != nil {
		return nil, errors.Wrapf(err, "binding socket for node %v", nodeId)
	}
	return &UdpTransport{
		nodeId:   nodeId,
		basePort: basePort,
		socket:   socket,
		peers:    make([]node.NodeId, 0),
	}, nil
}

// returns the loopback address a node id maps onto
func NodeIdToAddr(nodeId node.NodeId, basePort int) *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: basePort + int(nodeId),
	}
}

// recovers the node id from a well-formed peer address. The mapping
// round-trips with NodeIdToAddr
func AddrToNodeId(addr *net.UDPAddr, basePort int) (node.NodeId, bool) {
	if addr == nil || addr.Port < basePort {
		return 0, false
	}
	return node.NodeId(addr.Port - basePort), true
}

func (t *UdpTransport) NodeId() node.NodeId { return t.nodeId }

func (t *UdpTransport) Discover(peers []node.NodeId) {
	t.peers = make([]node.NodeId, len(peers))
	copy(t.peers, peers)
}

func (t *UdpTransport) Send(dst node.NodeId, mes message.Message) bool {
	buf := &bytes.Buffer{}
	if err := message.WriteMessage(buf, mes); err != nil {
		logger.Warning("Error serializing %T: %v", mes, err)
		return false
	}
	if buf.Len() > MAX_DATAGRAM_SIZE {
		logger.Warning("Refusing to send oversized %T (%v bytes)", mes, buf.Len())
		return false
	}
	if _, err := t.socket.WriteToUDP(buf.Bytes(), NodeIdToAddr(dst, t.basePort)); err != nil {
		logger.Warning("Error sending %T to node %v: %v", mes, dst, err)
		return false
	}
	return true
}

func (t *UdpTransport) Broadcast(mes message.Message) {
	for _, peer := range t.peers {
		if peer == t.nodeId {
			continue
		}
		t.Send(peer, mes)
	}
}

// blocks until a well-formed message arrives or the timeout elapses.
// Malformed datagrams are logged and discarded without consuming the
// caller's patience beyond the deadline
func (t *UdpTransport) Recv(timeout time.Duration) (node.NodeId, message.Message, error) {
	deadline := time.Now().Add(timeout)
	if err := t.socket.SetReadDeadline(deadline); err != nil {
		return 0, nil, errors.Wrap(err, "setting read deadline")
	}

	data := make([]byte, MAX_DATAGRAM_SIZE)
	for {
		n, addr, err := t.socket.ReadFromUDP(data)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return 0, nil, ErrTimeout
			}
			return 0, nil, errors.Wrap(err, "reading datagram")
		}

		src, ok := AddrToNodeId(addr, t.basePort)
		if !ok {
			logger.Warning("Discarding datagram from unmappable address %v", addr)
			continue
		}
		mes, err := message.Decode(data[:n])
		if err != nil {
			logger.Warning("Discarding malformed datagram from node %v: %v", src, err)
			continue
		}
		return src, mes, nil
	}
}

func (t *UdpTransport) Close() error {
	return t.socket.Close()
}
