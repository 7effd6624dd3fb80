/*
 * Copyright (c) 2023 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/pkg/errors"

	chk "github.com/vmware/vmware-go-checkpointer/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/config"
	kcl "github.com/vmware/vmware-go-checkpointer/clientlibrary/interfaces"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/metrics"
)

// ApplicationName namespaces the metrics published by the worker.
const ApplicationName = "checkpointer"

/**
 * Worker reads a Kinesis stream directly, one PollingShardConsumer per shard. It lists the shards periodically
 * and starts a consumer for every shard that has none. Progress is kept by the CheckpointController, so a
 * restarted worker resumes after the stored checkpoints.
 */
type Worker struct {
	streamName string
	regionName string
	consumerID string

	handler      kcl.IRecordHandler
	cfg          *config.CheckpointerConfiguration
	kc           kinesisiface.KinesisAPI
	checkpointer chk.Checkpointer
	controller   *CheckpointController
	mService     metrics.MonitoringService

	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	waitGroup *sync.WaitGroup
	done      bool

	rng *rand.Rand

	mux       sync.Mutex
	consumers map[string]bool
	closed    map[string]bool
}

func NewWorker(handler kcl.IRecordHandler, cfg *config.CheckpointerConfiguration) *Worker {
	mService := cfg.MonitoringService
	if mService == nil {
		// Replaces nil with noop monitor service (not emitting any metrics).
		mService = metrics.NoopMonitoringService{}
	}

	// Create a pseudo-random number generator and seed it.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	return &Worker{
		streamName: cfg.StreamName,
		regionName: cfg.RegionName,
		consumerID: cfg.ConsumerID,
		handler:    handler,
		cfg:        cfg,
		mService:   mService,
		done:       false,
		rng:        rng,
	}
}

func (w *Worker) WithKinesis(svc kinesisiface.KinesisAPI) *Worker {
	w.kc = svc
	return w
}

func (w *Worker) WithCheckpointer(checker chk.Checkpointer) *Worker {
	w.checkpointer = checker
	return w
}

// Controller returns the controller shared by the shard consumers, nil before Start.
func (w *Worker) Controller() *CheckpointController {
	return w.controller
}

func (w *Worker) Start() error {
	log := w.cfg.Logger
	if err := w.initialize(); err != nil {
		log.Errorf("Failed to initialize Worker: %+v", err)
		return err
	}

	// Start monitoring service
	log.Infof("Starting monitoring service.")
	if err := w.mService.Start(); err != nil {
		log.Errorf("Failed to start monitoring service: %+v", err)
		return err
	}

	log.Infof("Starting worker event loop.")
	w.waitGroup.Add(1)
	go func() {
		defer w.waitGroup.Done()
		// entering event loop
		w.eventLoop()
	}()
	return nil
}

func (w *Worker) Shutdown() {
	log := w.cfg.Logger
	log.Infof("Worker shutdown in requested.")

	if w.done || w.stop == nil {
		return
	}

	close(w.stop)
	w.done = true
	w.waitGroup.Wait()
	w.cancel()

	w.mService.Shutdown()
	log.Infof("Worker loop is complete. Exiting from worker.")
}

func (w *Worker) initialize() error {
	log := w.cfg.Logger
	log.Infof("Worker initialization in progress...")

	if w.streamName == "" {
		return errors.New("stream name is required by the polling worker")
	}

	// Create default Kinesis session
	if w.kc == nil {
		// create session for Kinesis
		log.Infof("Creating Kinesis session")

		s, err := session.NewSession(&aws.Config{
			Region:      aws.String(w.regionName),
			Endpoint:    &w.cfg.KinesisEndpoint,
			Credentials: w.cfg.KinesisCredentials,
		})
		if err != nil {
			return errors.Wrap(err, "failed in getting Kinesis session for creating Worker")
		}
		w.kc = kinesis.New(s)
	} else {
		log.Infof("Use custom Kinesis service.")
	}

	// Create default dynamodb based checkpointer implementation
	if w.checkpointer == nil {
		log.Infof("Creating DynamoDB based checkpointer")
		w.checkpointer = chk.NewDynamoCheckpoint(w.cfg)
	} else {
		log.Infof("Use custom checkpointer implementation.")
	}

	err := w.mService.Init(ApplicationName, w.consumerID)
	if err != nil {
		log.Errorf("Failed to start monitoring service: %+v", err)
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())

	log.Infof("Provisioning lease store")
	if err := w.checkpointer.EnsureProvisioned(w.ctx); err != nil {
		log.Errorf("Failed to provision lease store: %+v", err)
		w.cancel()
		return err
	}

	w.controller = NewCheckpointController(w.cfg, w.checkpointer, w.handler)
	w.consumers = make(map[string]bool)
	w.closed = make(map[string]bool)
	w.stop = make(chan struct{})
	w.waitGroup = &sync.WaitGroup{}

	log.Infof("Initialization complete.")

	return nil
}

func (w *Worker) newShardConsumer(shardID string) *PollingShardConsumer {
	return &PollingShardConsumer{
		shardID:    shardID,
		streamName: w.streamName,
		kc:         w.kc,
		controller: w.controller,
		cfg:        w.cfg,
		stop:       w.stop,
	}
}

func (w *Worker) eventLoop() {
	log := w.cfg.Logger

	for {
		// Add [-50%, +50%] random jitter to ShardSyncIntervalMillis so that workers started together do not
		// list shards at the same time.
		shardSyncSleep := w.cfg.ShardSyncIntervalMillis/2 + w.rng.Intn(w.cfg.ShardSyncIntervalMillis)

		shardIDs, err := w.getShardIDs(w.ctx)
		if err != nil {
			log.Errorf("Error syncing shards: %+v, Retrying in %d ms...", err, shardSyncSleep)
		} else {
			w.startConsumers(shardIDs)
		}

		select {
		case <-w.stop:
			log.Infof("Shutting down...")
			return
		case <-time.After(time.Duration(shardSyncSleep) * time.Millisecond):
			log.Debugf("Waited %d ms to sync shards...", shardSyncSleep)
		}
	}
}

// startConsumers starts a consumer for every shard that is neither consumed nor closed.
func (w *Worker) startConsumers(shardIDs []string) {
	log := w.cfg.Logger

	w.mux.Lock()
	defer w.mux.Unlock()

	for _, shardID := range shardIDs {
		if w.consumers[shardID] || w.closed[shardID] {
			continue
		}
		w.consumers[shardID] = true

		log.Infof("Start Shard Consumer for shard: %v", shardID)
		sc := w.newShardConsumer(shardID)
		w.waitGroup.Add(1)
		go func(shardID string) {
			defer w.waitGroup.Done()
			err := sc.getRecords(w.ctx)

			w.mux.Lock()
			defer w.mux.Unlock()
			delete(w.consumers, shardID)
			if err != nil {
				// picked up again on the next shard sync
				log.Errorf("Error in getRecords of shard %s: %+v", shardID, err)
				return
			}
			select {
			case <-w.stop:
			default:
				w.closed[shardID] = true
			}
		}(shardID)
	}
}

func (w *Worker) getShardIDs(ctx context.Context) ([]string, error) {
	var shardIDs []string
	args := &kinesis.ListShardsInput{
		StreamName: aws.String(w.streamName),
	}

	for {
		listShards, err := w.kc.ListShardsWithContext(ctx, args)
		if err != nil {
			return nil, errors.Wrapf(err, "listing shards of %s", w.streamName)
		}

		for _, s := range listShards.Shards {
			shardIDs = append(shardIDs, aws.StringValue(s.ShardId))
		}

		if listShards.NextToken == nil {
			return shardIDs, nil
		}
		// When you have a nextToken, you can't set the streamName
		args = &kinesis.ListShardsInput{NextToken: listShards.NextToken}
	}
}
