package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/halcyonlabs/oraclebridge/internal/blob/s3"
	"github.com/halcyonlabs/oraclebridge/internal/domain"
	"github.com/halcyonlabs/oraclebridge/internal/resolver"
)

// cycleLockTTL bounds how long a crashed instance can block its peers.
const cycleLockTTL = 10 * time.Minute

// runLoop runs cycles forever, sleeping the configured delay between them.
// A failed cycle is reported and the loop continues; only context
// cancellation stops it.
func (a *App) runLoop(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering scan loop", slog.Duration("delay", a.cfg.Delay.Duration))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := a.runOnce(ctx, deps); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
			if deps.Notifier != nil {
				deps.Notifier.CycleFailed(ctx, err)
			}
		}
		timer.Reset(a.cfg.Delay.Duration)
	}
}

// runOnce executes a single cycle, holding the distributed run lock when one
// is configured. A cycle skipped because a peer holds the lock is not an
// error.
func (a *App) runOnce(ctx context.Context, deps *Dependencies) error {
	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, "cycle", cycleLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.InfoContext(ctx, "cycle lock held by another instance, skipping")
				return nil
			}
			return fmt.Errorf("acquire cycle lock: %w", err)
		}
		defer unlock()
	}
	return a.cycle(ctx, deps)
}

// cycle is one full pass: scan for answerable choices, resolve their prices,
// join the two, build and submit transactions, then record the results.
func (a *App) cycle(ctx context.Context, deps *Dependencies) error {
	started := time.Now().UTC()

	requests, err := deps.Scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if len(requests) == 0 {
		a.logger.DebugContext(ctx, "no answerable choices this cycle")
		return nil
	}

	names := resolver.DistinctChoiceNames(requests)
	prices := deps.Resolver.Resolve(ctx, names)

	applies, drops := a.join(ctx, requests, prices)
	a.logger.InfoContext(ctx, "cycle discovery complete",
		slog.Int("requests", len(requests)),
		slog.Int("resolved", len(prices)),
		slog.Int("applicable", len(applies)),
		slog.Int("dropped", len(drops)),
	)

	submissions, err := deps.Builder.BuildAndSubmit(ctx, applies)
	if err != nil {
		return fmt.Errorf("build and submit: %w", err)
	}

	a.finishCycle(ctx, deps, started, len(requests), len(prices), submissions, drops)
	return nil
}

// join pairs each request with its resolved price, dropping requests whose
// price is absent, out of bounds, or whose feed validity cannot cover a
// usable transaction window. Drop reasons are returned for the cycle report.
func (a *App) join(ctx context.Context, requests []domain.OracleRequest, prices map[string]domain.ResolvedPrice) ([]domain.ApplyRequest, []string) {
	applies := make([]domain.ApplyRequest, 0, len(requests))
	var drops []string
	for _, req := range requests {
		price, ok := prices[req.Choice.Name]
		if !ok {
			drops = append(drops, fmt.Sprintf("%s %s: price unresolved", req.ContractID, req.Choice.Name))
			continue
		}
		if !req.Bounds.Contain(price.Value) {
			a.logger.InfoContext(ctx, "resolved value outside contract bounds",
				slog.String("contract_id", req.ContractID),
				slog.String("choice", req.Choice.Name),
				slog.Int64("value", price.Value),
			)
			drops = append(drops, fmt.Sprintf("%s %s: value %d outside bounds", req.ContractID, req.Choice.Name, price.Value))
			continue
		}

		apply := domain.ApplyRequest{
			ContractID:  req.ContractID,
			Choice:      req.Choice,
			ChosenValue: price.Value,
			ValidFrom:   req.ValidFrom,
			ValidUntil:  req.ValidUntil,
		}
		if req.BridgeUTxO != nil {
			apply.Reference = append(apply.Reference, *req.BridgeUTxO)
		}
		if price.Feed != nil {
			// The transaction window must sit inside the feed's declared
			// validity or the on-chain check rejects the evidence.
			if price.Feed.ValidFrom.After(apply.ValidFrom) {
				apply.ValidFrom = price.Feed.ValidFrom
			}
			if price.Feed.ValidThrough.Before(apply.ValidUntil) {
				apply.ValidUntil = price.Feed.ValidThrough
			}
			if !apply.ValidFrom.Before(apply.ValidUntil) {
				a.logger.WarnContext(ctx, "feed validity leaves no usable transaction window",
					slog.String("contract_id", req.ContractID),
					slog.String("choice", req.Choice.Name),
				)
				drops = append(drops, fmt.Sprintf("%s %s: feed validity leaves no transaction window", req.ContractID, req.Choice.Name))
				continue
			}
			apply.Reference = append(apply.Reference, price.Feed.UTxO)
		}
		applies = append(applies, apply)
	}
	return applies, drops
}

// finishCycle records, announces and archives the cycle's submissions.
// Failures here are logged, never fatal: the transactions are already on
// chain.
func (a *App) finishCycle(ctx context.Context, deps *Dependencies, started time.Time, requests, resolved int, submissions []domain.Submission, drops []string) {
	for _, sub := range submissions {
		if deps.Store != nil {
			if err := deps.Store.Record(ctx, sub); err != nil {
				a.logger.ErrorContext(ctx, "record submission",
					slog.String("tx_id", sub.TxID),
					slog.String("error", err.Error()),
				)
			}
		}
		if deps.Notifier != nil {
			deps.Notifier.Submitted(ctx, sub)
		}
	}

	if deps.Archiver != nil {
		report := s3blob.CycleReport{
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Requests:   requests,
			Resolved:   resolved,
			Submitted:  submissions,
			Errors:     drops,
		}
		if err := deps.Archiver.Archive(ctx, report); err != nil {
			a.logger.ErrorContext(ctx, "archive cycle report", slog.String("error", err.Error()))
		}
	}
}
