package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/database"
	"github.com/NicholasBarkolias/job-booking-expo/internal/domain"
	"github.com/NicholasBarkolias/job-booking-expo/internal/events"
	"github.com/NicholasBarkolias/job-booking-expo/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options tune the engine loops.
type Options struct {
	UploadLimit   int
	DownloadLimit int
	PollInterval  time.Duration
	Retry         RetryPolicy
}

// Engine keeps the local store and the remote backend converging. Two loops
// run concurrently for the lifetime of a sync session: the uploader drains
// the pending-operation log, the downloader streams authoritative changes in
// and advances the checkpoint. They share nothing but the store; each
// transaction they issue is isolated from the other.
type Engine struct {
	db        *database.DB
	connector domain.Connector
	eventBus  domain.EventPublisher
	redis     *redis.Client // optional dead-letter sink
	opts      Options
	logger    *zerolog.Logger

	wakeCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	deadLetterKey string
}

func NewEngine(db *database.DB, connector domain.Connector, eventBus domain.EventPublisher, redisClient *redis.Client, opts Options, logger *zerolog.Logger) *Engine {
	if opts.UploadLimit <= 0 {
		opts.UploadLimit = 50
	}
	if opts.DownloadLimit <= 0 {
		opts.DownloadLimit = 500
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Retry.InitialDelay <= 0 {
		opts.Retry.InitialDelay = time.Second
	}
	if opts.Retry.MaxDelay <= 0 {
		opts.Retry.MaxDelay = time.Minute
	}

	return &Engine{
		db:            db,
		connector:     connector,
		eventBus:      eventBus,
		redis:         redisClient,
		opts:          opts,
		logger:        logger,
		wakeCh:        make(chan struct{}, 1),
		deadLetterKey: "sync:deadletter",
	}
}

// Start launches the upload and download loops. They run until Stop is
// called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.uploaderLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.downloaderLoop(ctx)
	}()

	e.logger.Info().Msg("sync engine started")
}

// Stop cancels the session and waits for both loops. In-flight transactions
// finish or roll back whole; the pending log and checkpoint stay consistent.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info().Msg("sync engine stopped")
}

// Nudge wakes the upload loop ahead of its next poll. Called by the data
// service after every captured mutation.
func (e *Engine) Nudge() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

func (e *Engine) uploaderLoop(ctx context.Context) {
	backoff := e.opts.Retry.InitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := e.UploadOnce(ctx)
		switch {
		case err != nil:
			e.logger.Warn().Err(err).Msg("upload batch failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = backoff * 2
			if backoff > e.opts.Retry.MaxDelay {
				backoff = e.opts.Retry.MaxDelay
			}
		case processed > 0:
			backoff = e.opts.Retry.InitialDelay
		default:
			backoff = e.opts.Retry.InitialDelay
			select {
			case <-ctx.Done():
				return
			case <-e.wakeCh:
			case <-time.After(e.opts.PollInterval):
			}
		}
	}
}

// UploadOnce uploads one batch of queued mutations and settles each per-op
// verdict. Returns the number of operations whose state advanced.
func (e *Engine) UploadOnce(ctx context.Context) (int, error) {
	ops, err := e.db.GetUploadableOps(ctx, e.opts.UploadLimit)
	if err != nil {
		return 0, err
	}
	defer e.reportQueueDepth(ctx)
	if len(ops) == 0 {
		return 0, nil
	}

	results, err := e.connector.Upload(ctx, ops)
	if err != nil {
		// The batch never completed; every op stays durable and retries
		// after backoff. A timeout lands here too.
		metrics.IncUpload("transport_error")
		for i := range ops {
			nextRetry := time.Now().Add(e.opts.Retry.NextDelay(ops[i].AttemptCount + 1))
			if markErr := e.db.MarkOpRetry(ctx, ops[i].ID, err.Error(), nextRetry); markErr != nil {
				e.logger.Error().Err(markErr).Int64("op_id", ops[i].ID).Msg("failed to mark op for retry")
			}
		}
		return 0, err
	}

	verdicts := make(map[int64]domain.OpResult, len(results))
	for _, r := range results {
		verdicts[r.OpID] = r
	}

	processed := 0
	for i := range ops {
		op := &ops[i]
		verdict, ok := verdicts[op.ID]
		if !ok {
			// Remote did not account for the op; keep it queued.
			nextRetry := time.Now().Add(e.opts.Retry.NextDelay(op.AttemptCount + 1))
			if err := e.db.MarkOpRetry(ctx, op.ID, "no verdict from remote", nextRetry); err != nil {
				e.logger.Error().Err(err).Int64("op_id", op.ID).Msg("failed to mark op for retry")
			}
			continue
		}

		if verdict.Accepted {
			if err := e.db.AckPendingOp(ctx, op.ID); err != nil {
				e.logger.Error().Err(err).Int64("op_id", op.ID).Msg("failed to ack op")
				continue
			}
			metrics.IncUpload("acked")
			e.publish(events.EventOpAcknowledged, op)
		} else {
			if err := e.db.MarkOpFailed(ctx, op.ID, verdict.Reason); err != nil {
				e.logger.Error().Err(err).Int64("op_id", op.ID).Msg("failed to mark op as failed")
				continue
			}
			metrics.IncUpload("rejected")
			e.logger.Warn().
				Int64("op_id", op.ID).
				Str("entity", op.EntityKind).
				Str("entity_id", op.EntityID).
				Str("reason", verdict.Reason).
				Msg("pending operation rejected by remote")
			e.publish(events.EventOpRejected, op)
			e.pushDeadLetter(ctx, op)
		}
		processed++
	}
	return processed, nil
}

func (e *Engine) downloaderLoop(ctx context.Context) {
	backoff := e.opts.Retry.InitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		applied, err := e.DownloadOnce(ctx)
		switch {
		case err != nil:
			e.logger.Warn().Err(err).Msg("change poll failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = backoff * 2
			if backoff > e.opts.Retry.MaxDelay {
				backoff = e.opts.Retry.MaxDelay
			}
		case applied > 0:
			backoff = e.opts.Retry.InitialDelay
		default:
			backoff = e.opts.Retry.InitialDelay
			if !sleepOrDone(ctx, e.opts.PollInterval) {
				return
			}
		}
	}
}

// DownloadOnce polls one page of remote changes and applies it together with
// the checkpoint advance in a single store transaction.
func (e *Engine) DownloadOnce(ctx context.Context) (int, error) {
	lastSeq, err := e.db.GetCheckpoint(ctx)
	if err != nil {
		return 0, err
	}

	page, err := e.connector.PollChanges(ctx, lastSeq, e.opts.DownloadLimit)
	if err != nil {
		return 0, err
	}
	if len(page.Changes) == 0 && page.NextSeq <= lastSeq {
		return 0, nil
	}

	applied, err := e.db.ApplyRemoteChanges(ctx, page.Changes, page.NextSeq)
	if err != nil {
		return 0, err
	}

	if applied > 0 {
		metrics.AddChangesApplied(applied)
		e.publish(events.EventChangesApplied, map[string]int64{
			"applied":  int64(applied),
			"next_seq": page.NextSeq,
		})
		e.logger.Debug().Int("applied", applied).Int64("next_seq", page.NextSeq).Msg("applied remote changes")
	}
	return applied, nil
}

func (e *Engine) reportQueueDepth(ctx context.Context) {
	depth, err := e.db.CountPendingOps(ctx)
	if err != nil {
		return
	}
	metrics.SetPendingDepth(depth)
}

func (e *Engine) pushDeadLetter(ctx context.Context, op interface{}) {
	if e.redis == nil {
		return
	}
	data, err := json.Marshal(op)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to encode dead letter")
		return
	}
	if err := e.redis.LPush(ctx, e.deadLetterKey, data).Err(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to push dead letter")
	}
}

func (e *Engine) publish(eventType string, payload interface{}) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
