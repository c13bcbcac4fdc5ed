/*
Replica daemon

Runs a single Paxos replica over UDP, applying chosen commands to a
replicated key/value store.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

import (
	"github.com/cactus/go-statsd-client/statsd"
	logging "github.com/op/go-logging"
)

import (
	"github.com/qkniep/multi-paxos/config"
	"github.com/qkniep/multi-paxos/consensus"
	"github.com/qkniep/multi-paxos/node"
	"github.com/qkniep/multi-paxos/storage"
	"github.com/qkniep/multi-paxos/store"
	"github.com/qkniep/multi-paxos/transport"
)

var logger = logging.MustGetLogger("paxosd")

func setupLogging(levelName string) error {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	format := logging.MustStringFormatter(
		"%{time:15:04:05.000} %{module} %{level:.4s} %{message}",
	)
	logging.SetBackend(logging.NewBackendFormatter(backend, format))

	level, err := logging.LogLevel(levelName)
	if err != nil {
		return err
	}
	logging.SetLevel(level, "")
	return nil
}

func openStorage(conf *config.Config) (storage.Storage, error) {
	dir := filepath.Join(conf.DataDir, fmt.Sprintf("replica-%v", conf.NodeId))
	switch conf.StorageBackend {
	case "disk":
		return storage.NewDiskStorage(dir)
	default:
		return storage.NewLevelDBStorage(dir)
	}
}

func run(confPath string) error {
	conf, err := config.Load(confPath)
	if err != nil {
		return err
	}
	if err := setupLogging(conf.LogLevel); err != nil {
		return err
	}

	consensus.LEASE_DURATION = conf.LeaseMs
	consensus.RECV_TIMEOUT = conf.RecvTimeoutMs

	stor, err := openStorage(conf)
	if err != nil {
		return err
	}
	defer stor.Close()

	tport, err := transport.NewUdpTransport(node.NodeId(conf.NodeId), conf.BasePort)
	if err != nil {
		return err
	}
	defer tport.Close()
	peers := make([]node.NodeId, conf.GroupSize)
	for i := range peers {
		peers[i] = node.NodeId(i)
	}
	tport.Discover(peers)

	replica, err := consensus.NewReplica(tport, stor, store.NewKVStore(),
		node.NodeId(conf.NodeId), conf.GroupSize)
	if err != nil {
		return err
	}

	if conf.StatsdAddr != "" {
		stats, err := statsd.NewBufferedClient(conf.StatsdAddr, conf.StatsdPrefix,
			time.Second, 0)
		if err != nil {
			return err
		}
		defer stats.Close()
		replica.SetStatter(stats)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	logger.Notice("Replica %v of %v starting on port %v",
		conf.NodeId, conf.GroupSize, conf.BasePort+int(conf.NodeId))
	for {
		select {
		case sig := <-stop:
			logger.Notice("Received %v, shutting down", sig)
			return nil
		default:
			replica.Tick()
			if replica.Halted() {
				return fmt.Errorf("replica halted on persistence failure")
			}
		}
	}
}

func main() {
	confPath := flag.String("config", "paxos.yaml", "path to the config file")
	flag.Parse()

	if err := run(*confPath); err != nil {
		fmt.Fprintf(os.Stderr, "paxosd: %v\n", err)
		os.Exit(1)
	}
}
