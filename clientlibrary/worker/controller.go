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
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	chk "github.com/vmware/vmware-go-checkpointer/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/config"
	kcl "github.com/vmware/vmware-go-checkpointer/clientlibrary/interfaces"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/metrics"
	par "github.com/vmware/vmware-go-checkpointer/clientlibrary/partition"
	"github.com/vmware/vmware-go-checkpointer/clientlibrary/utils"
	"github.com/vmware/vmware-go-checkpointer/logger"
)

// ShardState is where the processing of one shard ended.
type ShardState int

const (
	// LoadFailed: the lease could not be read, no record was touched.
	LoadFailed ShardState = iota + 1
	// Committed: the checkpoint advanced and was written, possibly after a failure.
	Committed
	// WithheldOnFailure: nothing was applied before a failure, the lease is left as is.
	WithheldOnFailure
	// NoOpCommitted: nothing new and no failure, the lease is left as is.
	NoOpCommitted
	// CommitSkipped: the checkpoint advanced but dry-run kept it from being written.
	CommitSkipped
	// CommitFailed: the checkpoint advanced but the write failed.
	CommitFailed
)

var shardStateNames = map[ShardState]string{
	LoadFailed:        "LoadFailed",
	Committed:         "Committed",
	WithheldOnFailure: "WithheldOnFailure",
	NoOpCommitted:     "NoOpCommitted",
	CommitSkipped:     "CommitSkipped",
	CommitFailed:      "CommitFailed",
}

func (s ShardState) String() string {
	if name, ok := shardStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ShardState(%d)", int(s))
}

type (
	// ShardResult reports what one invocation did to one shard.
	ShardResult struct {
		ShardID string
		State   ShardState

		// PreviousCheckpoint is the checkpoint loaded at the start, empty when loading failed.
		PreviousCheckpoint string

		// CommittedCheckpoint is the checkpoint written, empty when nothing was written.
		CommittedCheckpoint string

		Outcome *kcl.BatchOutcome
		Err     error
	}

	// InvocationResult reports a whole delivery. Shards are in order of first appearance.
	InvocationResult struct {
		InvocationID   string
		Shards         []*ShardResult
		RecordsApplied int
		Summary        kcl.InvocationSummary
	}
)

type invocationIDKey struct{}

// WithInvocationID attaches the id logged for the invocation run with ctx.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

func invocationIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(invocationIDKey{}).(string); ok && id != "" {
		return id
	}
	return utils.MustNewUUID()
}

// CheckpointController loads the lease of every shard in a delivery, runs the batch and commits the progress.
// It keeps no state between invocations.
type CheckpointController struct {
	cfg          *config.CheckpointerConfiguration
	checkpointer chk.Checkpointer
	processor    *BatchProcessor
	mService     metrics.MonitoringService
	log          logger.Logger
}

func NewCheckpointController(cfg *config.CheckpointerConfiguration, checkpointer chk.Checkpointer, handler kcl.IRecordHandler) *CheckpointController {
	mService := cfg.MonitoringService
	if mService == nil {
		// Replaces nil with noop monitor service (not emitting any metrics).
		mService = metrics.NoopMonitoringService{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &CheckpointController{
		cfg:          cfg,
		checkpointer: checkpointer,
		processor:    NewBatchProcessor(handler, cfg.PositionOrdering, cfg.OriginField, log),
		mService:     mService,
		log:          log,
	}
}

// Checkpointer returns the lease store used by the controller.
func (c *CheckpointController) Checkpointer() chk.Checkpointer {
	return c.checkpointer
}

// Invoke processes one delivery. Records are partitioned by shard; shards run concurrently, the records of a
// shard strictly in order. The returned error combines the failure of every shard, nil when all succeeded.
func (c *CheckpointController) Invoke(ctx context.Context, records []*kcl.Record) (*InvocationResult, error) {
	result := &InvocationResult{InvocationID: invocationIDFrom(ctx)}
	log := c.log.WithFields(logger.Fields{"consumer": c.cfg.ConsumerID, "invocation": result.InvocationID})

	if c.cfg.InvocationTimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.InvocationTimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	if c.cfg.DebugLogging {
		c.dumpLeases(ctx, log)
	}

	shardIDs, batches := partitionByShard(records)
	result.Shards = make([]*ShardResult, len(shardIDs))

	var g errgroup.Group
	if c.cfg.MaxConcurrentShards > 0 {
		g.SetLimit(c.cfg.MaxConcurrentShards)
	}
	for i, shardID := range shardIDs {
		i, shardID := i, shardID
		g.Go(func() error {
			result.Shards[i] = c.processShard(ctx, log.WithFields(logger.Fields{"shard": shardID}), shardID, batches[shardID])
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	origins := map[string]struct{}{}
	for _, shard := range result.Shards {
		errs = multierr.Append(errs, shard.Err)
		if shard.Outcome == nil {
			continue
		}
		result.RecordsApplied += shard.Outcome.RecordsApplied
		for origin := range shard.Outcome.Origins {
			origins[origin] = struct{}{}
		}
		if shard.Outcome.LastPositionObserved != "" {
			result.Summary.LastPositionObserved = shard.Outcome.LastPositionObserved
		}
		if shard.Outcome.LastActionTimestamp != NotAvailable {
			result.Summary.LastActionTimestamp = shard.Outcome.LastActionTimestamp
		}
	}
	result.Summary.UniqueOriginsSeen = len(origins)

	log.Infof("Saw %d unique origins in batch ending with %s (last action at %s)", result.Summary.UniqueOriginsSeen,
		orNotAvailable(result.Summary.LastPositionObserved), orNotAvailable(result.Summary.LastActionTimestamp))

	return result, errs
}

// ProcessShard runs the batch of a single shard. records must all belong to shardID.
func (c *CheckpointController) ProcessShard(ctx context.Context, shardID string, records []*kcl.Record) *ShardResult {
	log := c.log.WithFields(logger.Fields{
		"consumer":   c.cfg.ConsumerID,
		"shard":      shardID,
		"invocation": invocationIDFrom(ctx),
	})
	return c.processShard(ctx, log, shardID, records)
}

func (c *CheckpointController) processShard(ctx context.Context, log logger.Logger, shardID string, records []*kcl.Record) *ShardResult {
	result := &ShardResult{ShardID: shardID}
	startTime := time.Now()

	if shardID == "" {
		result.State = WithheldOnFailure
		malformed := ErrMalformedRecord{Reason: "shard cannot be determined"}
		if len(records) > 0 {
			malformed.EventID = records[0].EventID
		}
		result.Err = malformed
		log.Errorf("Withholding %d records without shard: %+v", len(records), result.Err)
		return result
	}

	if c.cfg.RewindBeforeRun {
		log.Infof("Rewinding to checkpoint %s", par.InitialCheckpoint)
		if err := c.checkpointer.Rewind(ctx, c.cfg.ConsumerID, shardID); err != nil {
			return c.loadFailed(log, result, chk.OpRewind, err)
		}
	}

	lease, err := c.checkpointer.Load(ctx, c.cfg.ConsumerID, shardID)
	if errors.Is(err, chk.ErrLeaseNotFound) {
		lease = par.NewInitialLease(c.cfg.ConsumerID, shardID)
		err = nil
	}
	if err != nil {
		return c.loadFailed(log, result, chk.OpLoad, err)
	}
	if err := c.cfg.PositionOrdering.Validate(lease.Checkpoint); err != nil {
		return c.loadFailed(log, result, chk.OpLoad, chk.ErrStoreUnavailable{Op: chk.OpLoad, Err: err})
	}
	result.PreviousCheckpoint = lease.Checkpoint
	log.Debugf("Loaded lease %s", lease)

	outcome := c.processor.Run(ctx, lease, records)
	result.Outcome = outcome

	c.mService.RecordProcessBatchTime(shardID, float64(time.Since(startTime).Milliseconds()))
	c.mService.IncrRecordsApplied(shardID, outcome.RecordsApplied)
	c.mService.IncrRecordsReplayed(shardID, outcome.RecordsReplayed)
	c.mService.IncrBytesApplied(shardID, outcome.BytesApplied)

	if outcome.Failure != nil {
		log.Errorf("Batch stopped after %d applied records: %+v", outcome.RecordsApplied, outcome.Failure)
	}

	switch {
	case outcome.HasAdvanced() && c.cfg.DryRunCommit:
		result.State = CommitSkipped
		result.Err = outcome.Failure
		log.Infof("Dry run: not committing checkpoint %s", outcome.LastCommittedPosition)

	case outcome.HasAdvanced():
		next := lease.WithCheckpoint(outcome.LastCommittedPosition)

		// the commit must be attempted even when the invocation ran out of time
		commitTimeout := c.cfg.CommitTimeoutMillis
		if commitTimeout <= 0 {
			commitTimeout = config.DefaultCommitTimeoutMillis
		}
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(commitTimeout)*time.Millisecond)
		defer cancel()

		if err := c.checkpointer.Commit(commitCtx, next); err != nil {
			c.mService.StoreFailure(chk.OpCommit)
			result.State = CommitFailed
			result.Err = multierr.Append(outcome.Failure, err)
			log.Errorf("Failed to commit checkpoint %s: %+v", next.Checkpoint, err)
			return result
		}
		c.mService.CheckpointCommitted(shardID)
		result.State = Committed
		result.CommittedCheckpoint = next.Checkpoint
		result.Err = outcome.Failure
		log.Debugf("Committed lease %s after %d records", next, outcome.RecordsApplied)

	case outcome.Failure != nil:
		c.mService.CommitWithheld(shardID)
		result.State = WithheldOnFailure
		result.Err = outcome.Failure
		log.Warnf("Withholding commit, checkpoint stays at %s", lease.Checkpoint)

	default:
		result.State = NoOpCommitted
		log.Debugf("Nothing new after checkpoint %s (%d replayed)", lease.Checkpoint, outcome.RecordsReplayed)
	}

	return result
}

func (c *CheckpointController) loadFailed(log logger.Logger, result *ShardResult, op string, err error) *ShardResult {
	c.mService.StoreFailure(op)
	result.State = LoadFailed
	result.Err = err
	log.Errorf("Lease store failed on %s, no record processed: %+v", op, err)
	return result
}

// Rewind deletes the lease of the consumer on shardID so the next delivery starts from the initial checkpoint.
func (c *CheckpointController) Rewind(ctx context.Context, shardID string) error {
	c.log.Infof("Rewinding consumer %s on shard %s to checkpoint %s", c.cfg.ConsumerID, shardID, par.InitialCheckpoint)
	if err := c.checkpointer.Rewind(ctx, c.cfg.ConsumerID, shardID); err != nil {
		c.mService.StoreFailure(chk.OpRewind)
		return err
	}
	return nil
}

// Leases lists the consumer's leases.
func (c *CheckpointController) Leases(ctx context.Context) ([]*par.Lease, error) {
	return c.checkpointer.ListLeases(ctx, c.cfg.ConsumerID)
}

func (c *CheckpointController) dumpLeases(ctx context.Context, log logger.Logger) {
	leases, err := c.Leases(ctx)
	if err != nil {
		log.Warnf("Unable to list leases: %+v", err)
		return
	}
	log.Infof("Active leases: %d", len(leases))
	for _, lease := range leases {
		log.Infof("Lease %s", lease)
	}
}

// partitionByShard groups records per shard, keeping the delivery order within a shard.
func partitionByShard(records []*kcl.Record) ([]string, map[string][]*kcl.Record) {
	var shardIDs []string
	batches := map[string][]*kcl.Record{}
	for _, r := range records {
		shardID := shardOf(r)
		if _, ok := batches[shardID]; !ok {
			shardIDs = append(shardIDs, shardID)
		}
		batches[shardID] = append(batches[shardID], r)
	}
	return shardIDs, batches
}

func orNotAvailable(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
