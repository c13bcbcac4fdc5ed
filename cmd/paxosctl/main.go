/*
Client command submitter

Encodes a key/value instruction and hands it to a replica as a
ClientRequest; the cluster relays it to the leader and replicates it.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

import (
	"github.com/qkniep/multi-paxos/consensus"
	"github.com/qkniep/multi-paxos/node"
	"github.com/qkniep/multi-paxos/store"
	"github.com/qkniep/multi-paxos/transport"
)

// the well-known id client sockets bind, outside any replica group
const CLIENT_NODE_ID = node.NodeId(99)

func run() error {
	dst := flag.Uint("node", 0, "replica to submit to")
	basePort := flag.Int("base-port", 64000, "first port of the replica group")
	cmd := flag.String("cmd", "set", "instruction: set, get or del")
	key := flag.String("key", "", "key to operate on")
	value := flag.String("value", "", "value for set")
	flag.Parse()

	if *key == "" {
		return fmt.Errorf("a key is required")
	}

	args := []string{}
	if *cmd == "set" {
		args = append(args, *value)
	}
	instr := store.NewInstruction(*cmd, *key, args, time.Now())
	encoded, err := instr.Encode()
	if err != nil {
		return err
	}

	tport, err := transport.NewUdpTransport(CLIENT_NODE_ID, *basePort)
	if err != nil {
		return err
	}
	defer tport.Close()

	if !tport.Send(node.NodeId(*dst), &consensus.ClientRequest{Value: encoded}) {
		return fmt.Errorf("could not hand the datagram to the OS")
	}
	fmt.Printf("submitted %v %v to replica %v\n", *cmd, *key, *dst)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "paxosctl: %v\n", err)
		os.Exit(1)
	}
}
