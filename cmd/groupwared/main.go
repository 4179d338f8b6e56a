// Package main wires the storage core into a runnable process: the
// storage driver, the lease store, the purge job, the mail queue control
// loop, and the cluster broadcast subscriber (spec.md §1's components).
// Protocol wire framing, parsers, TLS, and an account directory are out
// of this module's scope (spec.md's Non-goals); this entrypoint only
// constructs and runs the pieces spec.md actually names.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"github.com/groupwave/corestore/blobstore"
	"github.com/groupwave/corestore/broadcast"
	"github.com/groupwave/corestore/broadcast/localpubsub"
	"github.com/groupwave/corestore/broadcast/redispubsub"
	"github.com/groupwave/corestore/cache"
	"github.com/groupwave/corestore/cmn"
	"github.com/groupwave/corestore/lease"
	"github.com/groupwave/corestore/purge"
	"github.com/groupwave/corestore/queue"
	"github.com/groupwave/corestore/searchindex"
	"github.com/groupwave/corestore/searchindex/embedded"
	"github.com/groupwave/corestore/stats"
	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storedrv/buntdb"
	"github.com/groupwave/corestore/storedrv/memory"
)

// NOTE: these variables are set by ldflags, following the teacher's own
// cmd/aisnodeprofile convention.
var (
	version string
	build   string
)

var (
	configFile  = flag.String("config", "", "path to a JSON config file (overrides DefaultConfig)")
	dataPath    = flag.String("data", "", "buntdb file path; empty uses an in-memory driver")
	redisAddr   = flag.String("redis-addr", "", "Redis address for the broadcast transport; empty uses an in-process bus")
	nodeID      = flag.Uint64("node-id", 0, "this process's broadcast node id, for loopback suppression")
	broadcastTo = flag.String("broadcast-topic", "", "override cfg.BroadcastTopic")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	glog.Infof("groupwared %s (build %s) starting", version, build)

	cfg, err := loadConfig()
	if err != nil {
		glog.Errorf("groupwared: %v", err)
		return 1
	}
	if *broadcastTo != "" {
		cfg.BroadcastTopic = *broadcastTo
	}
	cmn.GCO.Put(cfg)

	drv, closeDrv, err := openDriver()
	if err != nil {
		glog.Errorf("groupwared: opening storage driver: %v", err)
		return 1
	}
	defer closeDrv()

	metrics := stats.NewRegistry()

	leases := lease.New(time.Minute)
	caches := cache.NewRegistry()
	fts := embedded.New(drv)
	blobs := blobstore.New(drv, cfg)

	// Email is the only collection spec.md's worked examples (S5 in
	// spec.md §8) tombstone through auto-expunge; a deployment adding
	// Calendar/Contacts/File purge would construct one Job per Kind.
	purgeJob := purge.NewJob(drv, leases, ftsRemover{fts: fts, kind: searchindex.Email}, blobs, cfg)
	purgeJob.SetMetrics(metrics)

	ps, err := openPubSub()
	if err != nil {
		glog.Errorf("groupwared: opening broadcast transport: %v", err)
		return 1
	}
	handler := broadcast.DefaultHandler(caches, func() {
		glog.Infof("groupwared: settings reloaded via broadcast")
	})
	subscriber := broadcast.New(ps, cfg.BroadcastTopic, *nodeID, handler, cfg.BroadcastMaxBackoff)
	subscriber.SetMetrics(metrics)

	q := queue.New(drv, cfg, queue.DriverMessageLoader(drv), loopbackDispatcher())
	q.SetMetrics(metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go subscriber.Run(ctx)
	go q.Start(ctx)

	// purgeJob is constructed and ready; deciding which account to purge
	// and when is the account directory's job, out of this module's scope.
	_ = purgeJob

	return waitForSignal(cancel)
}

func loadConfig() (*cmn.Config, error) {
	if *configFile == "" {
		return cmn.DefaultConfig(), nil
	}
	return cmn.LoadFile(*configFile)
}

func openDriver() (storedrv.Driver, func(), error) {
	if *dataPath == "" {
		drv := memory.New()
		return drv, func() { drv.Close() }, nil
	}
	drv, err := buntdb.Open(*dataPath)
	if err != nil {
		return nil, nil, err
	}
	return drv, func() { drv.Close() }, nil
}

func openPubSub() (broadcast.PubSub, error) {
	if *redisAddr == "" {
		return localpubsub.New(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: *redisAddr})
	return redispubsub.New(client), nil
}

// loopbackDispatcher is a placeholder Dispatcher: actual SMTP delivery is
// a protocol adapter outside this module's scope (spec.md's Non-goals).
// It reports every message as deferred so the control loop's retry path
// runs without a transport attached.
func loopbackDispatcher() queue.Dispatcher {
	return func(_ context.Context, _ *queue.Message, virtualQueue string, report func(queue.WorkerOutcome)) {
		glog.V(4).Infof("groupwared: no delivery transport configured, deferring virtual queue %q", virtualQueue)
		report(queue.OutcomeDeferred)
	}
}

func waitForSignal(cancel context.CancelFunc) int {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	glog.Infof("groupwared: received %s, shutting down", sig)
	cancel()
	return 0
}

// ftsRemover adapts a fixed-Kind searchindex.Driver into purge.FTSRemover:
// purge only ever needs to delete a document's derived index keys, never
// to pick a Kind per call, so the Kind is bound once at construction.
type ftsRemover struct {
	fts  searchindex.Driver
	kind searchindex.Kind
}

func (f ftsRemover) Remove(ctx context.Context, accountID uint32, documentIDs []uint32) error {
	for _, id := range documentIDs {
		if err := f.fts.DeleteIndex(ctx, accountID, f.kind, id); err != nil {
			return err
		}
	}
	return nil
}
