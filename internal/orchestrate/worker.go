// Package orchestrate runs one search's pipeline end to end. A Worker
// owns the search's state machine: it marks the row running, streams
// retrieved messages into the store, scores each stored message against
// the real question, synthesizes a verdict for evaluation searches, and
// lands the row on completed or failed.
//
// The pipeline inside a worker is strictly sequential. Parallelism
// across searches comes from running multiple worker processes that
// share the store.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caaasearch/internal/logging"
	"caaasearch/internal/retrieve"
	"caaasearch/internal/score"
	"caaasearch/internal/searchspec"
	"caaasearch/internal/store"
	"caaasearch/internal/synthesize"
)

const (
	// Pause before the second attempt of a failed store write.
	storeRetryDelay = 250 * time.Millisecond

	// Pause before re-attaching after a login redirect, long enough for a
	// jar rotation in progress to land on disk.
	cookieRetryDelay = 2 * time.Second
)

// Retriever pulls matching messages out of the archive and hands each
// one to emit in upstream table order.
type Retriever interface {
	Run(ctx context.Context, spec searchspec.SearchSpec, emit retrieve.EmitFunc) (int, error)
}

// Scorer judges one stored message against the real question.
type Scorer interface {
	Score(ctx context.Context, msg score.Message, realQuestion string) score.Result
}

// Synthesizer aggregates relevant messages into a final verdict.
type Synthesizer interface {
	Synthesize(ctx context.Context, realQuestion string, msgs []synthesize.RelevantMessage) synthesize.Outcome
}

// Worker runs the pipeline for a single search.
type Worker struct {
	store       *store.Store
	retriever   Retriever
	scorer      Scorer
	synthesizer Synthesizer

	wait func(ctx context.Context, d time.Duration) error
}

// NewWorker wires a worker. All collaborators are required.
func NewWorker(st *store.Store, r Retriever, sc Scorer, syn Synthesizer) *Worker {
	return &Worker{store: st, retriever: r, scorer: sc, synthesizer: syn, wait: waitCtx}
}

// Run executes the pipeline for one search. The stored row is the
// authoritative source for the spec; realQuestion and queryType fall
// back to the row's values when the caller passes them empty.
//
// Run returns the error that failed the search, after recording it on
// the row. A nil return means the search reached completed.
func (w *Worker) Run(ctx context.Context, searchID, realQuestion string, queryType searchspec.QueryType) error {
	search, err := w.store.GetSearch(ctx, searchID)
	if err != nil {
		return fmt.Errorf("failed to load search %s: %w", searchID, err)
	}
	if realQuestion == "" {
		realQuestion = search.RealQuestion
	}
	if !queryType.Valid() {
		queryType = search.Type()
	}

	log := logging.ForSearch(logging.CategoryPipeline, searchID)
	log.Info("Worker starting: type=%s question=%q", queryType, realQuestion)

	params, err := search.Params()
	if err != nil {
		return w.fail(searchID, log, err)
	}
	spec := params.Spec()

	if err := w.store.SetStatus(ctx, searchID, searchspec.StatusRunning, ""); err != nil {
		return fmt.Errorf("failed to mark search %s running: %w", searchID, err)
	}

	messageIDs, found, err := w.retrieveAll(ctx, searchID, spec)
	if err != nil {
		return w.fail(searchID, log, err)
	}
	if err := w.retryOnce("record messages_found", func() error {
		return w.store.SetMessagesFound(ctx, searchID, found)
	}); err != nil {
		return w.fail(searchID, log, err)
	}
	log.Info("Retrieval done: %d messages stored", found)

	if found == 0 && queryType.Synthesizes() {
		if err := w.saveSynthesis(ctx, searchID, synthesize.NoMessages(realQuestion)); err != nil {
			return w.fail(searchID, log, err)
		}
		return w.complete(ctx, searchID, log, 0, 0)
	}

	relevant, err := w.scoreAll(ctx, searchID, realQuestion, messageIDs, log)
	if err != nil {
		return w.fail(searchID, log, err)
	}
	if err := w.retryOnce("record relevant_count", func() error {
		return w.store.SetRelevantCount(ctx, searchID, relevant)
	}); err != nil {
		return w.fail(searchID, log, err)
	}
	log.Info("Scoring done: %d of %d relevant", relevant, found)

	if queryType.Synthesizes() {
		outcome, err := w.synthesizeVerdict(ctx, searchID, realQuestion)
		if err != nil {
			return w.fail(searchID, log, err)
		}
		log.Info("Synthesis done: %d/100 (%s)", outcome.Score, outcome.Evaluation)
	}

	return w.complete(ctx, searchID, log, found, relevant)
}

// retrieveAll streams the retriever's records into the store and
// returns the linked message ids in upstream order. Store failures
// inside the stream are retried once and then abort retrieval.
func (w *Worker) retrieveAll(ctx context.Context, searchID string, spec searchspec.SearchSpec) ([]string, int, error) {
	var messageIDs []string

	emit := func(rec retrieve.Record) error {
		msg := &store.Message{
			UpstreamID:    rec.UpstreamID,
			Subject:       rec.Subject,
			FromName:      rec.FromName,
			FromEmail:     rec.FromEmail,
			Listserv:      rec.Listserv,
			PostedDate:    rec.PostedDate,
			HasAttachment: rec.HasAttachment,
			Body:          rec.Body,
		}

		var msgID string
		err := w.retryOnce("upsert message", func() error {
			var err error
			msgID, err = w.store.UpsertMessage(ctx, msg)
			return err
		})
		if err != nil {
			return err
		}
		if err := w.retryOnce("link result", func() error {
			return w.store.LinkResult(ctx, searchID, msgID, rec.Position, rec.Page)
		}); err != nil {
			return err
		}

		messageIDs = append(messageIDs, msgID)
		return nil
	}

	found, err := w.retriever.Run(ctx, spec, emit)
	if errors.Is(err, retrieve.ErrCookieExpired) && ctx.Err() == nil {
		// The jar may have been mid-rotation when the session attached;
		// the next page open rereads it. One retry covers that window
		// without masking a genuinely dead session.
		logging.PipelineWarn("Archive session rejected, retrying once after jar reload")
		if werr := w.wait(ctx, cookieRetryDelay); werr != nil {
			return nil, 0, err
		}
		messageIDs = nil
		found, err = w.retriever.Run(ctx, spec, emit)
	}
	if err != nil {
		return nil, 0, err
	}
	return messageIDs, found, nil
}

// scoreAll runs the scorer over the linked messages in order, skipping
// pairs that already have an analysis, and returns the relevant count
// as persisted (so skipped re-scores still count).
func (w *Worker) scoreAll(ctx context.Context, searchID, realQuestion string, messageIDs []string, log *logging.SearchLogger) (int, error) {
	for i, msgID := range messageIDs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var exists bool
		if err := w.retryOnce("check analysis", func() error {
			var err error
			exists, err = w.store.AnalysisExists(ctx, searchID, msgID)
			return err
		}); err != nil {
			return 0, err
		}
		if exists {
			log.Debug("Message %d/%d already scored, skipping", i+1, len(messageIDs))
			continue
		}

		var msg *store.Message
		if err := w.retryOnce("load message", func() error {
			var err error
			msg, err = w.store.GetMessage(ctx, msgID)
			return err
		}); err != nil {
			return 0, err
		}

		res := w.scorer.Score(ctx, score.Message{
			Subject:  msg.Subject,
			FromName: msg.FromName,
			Body:     msg.Body,
		}, realQuestion)

		a := &store.Analysis{
			SearchID:     searchID,
			MessageID:    msgID,
			IsRelevant:   res.IsRelevant,
			Confidence:   res.Confidence,
			AIReasoning:  res.Reasoning,
			AIModel:      res.Model,
			AITokensUsed: res.TokensUsed,
			AICostUSD:    res.CostUSD,
		}
		if err := w.retryOnce("save analysis", func() error {
			return w.store.SaveAnalysis(ctx, a)
		}); err != nil {
			return 0, err
		}
		log.Debug("Scored message %d/%d: relevant=%v", i+1, len(messageIDs), res.IsRelevant)
	}

	var relevant int
	err := w.retryOnce("count relevant", func() error {
		var err error
		relevant, err = w.store.CountRelevant(ctx, searchID)
		return err
	})
	return relevant, err
}

// synthesizeVerdict builds and persists the aggregate verdict from the
// relevant messages on record.
func (w *Worker) synthesizeVerdict(ctx context.Context, searchID, realQuestion string) (synthesize.Outcome, error) {
	var rows []store.ResultRow
	if err := w.retryOnce("load relevant results", func() error {
		var err error
		rows, err = w.store.RelevantResults(ctx, searchID)
		return err
	}); err != nil {
		return synthesize.Outcome{}, err
	}

	msgs := make([]synthesize.RelevantMessage, len(rows))
	for i, r := range rows {
		msgs[i] = synthesize.RelevantMessage{
			Subject:  r.Subject,
			FromName: r.FromName,
			Body:     r.Body,
		}
	}

	outcome := w.synthesizer.Synthesize(ctx, realQuestion, msgs)
	if err := w.saveSynthesis(ctx, searchID, outcome); err != nil {
		return synthesize.Outcome{}, err
	}
	return outcome, nil
}

func (w *Worker) saveSynthesis(ctx context.Context, searchID string, outcome synthesize.Outcome) error {
	return w.retryOnce("save synthesis", func() error {
		return w.store.SaveSynthesis(ctx, &store.Synthesis{
			SearchID:   searchID,
			Score:      outcome.Score,
			Evaluation: outcome.Evaluation,
			Reasoning:  outcome.Reasoning,
		})
	})
}

func (w *Worker) complete(ctx context.Context, searchID string, log *logging.SearchLogger, found, relevant int) error {
	if err := w.retryOnce("mark completed", func() error {
		return w.store.SetStatus(ctx, searchID, searchspec.StatusCompleted, "")
	}); err != nil {
		return w.fail(searchID, log, err)
	}
	log.Info("Search completed: %d messages, %d relevant", found, relevant)
	return nil
}

// fail lands the search on failed and returns the cause. The status
// write uses its own context so a cancelled pipeline context cannot
// keep the row stuck in running.
func (w *Worker) fail(searchID string, log *logging.SearchLogger, cause error) error {
	log.Error("Search failed: %v", cause)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.SetStatus(ctx, searchID, searchspec.StatusFailed, cause.Error()); err != nil {
		logging.StoreError("Could not mark search %s failed: %v", searchID, err)
	}
	return cause
}

// retryOnce runs a store operation, retrying one time after a short pause
// before giving up.
func (w *Worker) retryOnce(what string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	logging.StoreWarn("%s failed, retrying once: %v", what, err)
	time.Sleep(storeRetryDelay)
	if err := op(); err != nil {
		return fmt.Errorf("%s failed twice: %w", what, err)
	}
	return nil
}

// waitCtx pauses for d unless ctx ends first.
func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
