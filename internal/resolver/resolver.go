// Package resolver turns distinct choice names into prices. Each choice name
// is resolved at most once per cycle regardless of how many pending requests
// share it, and a failure for one name never aborts the others.
package resolver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halcyonlabs/oraclebridge/internal/datum"
	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// restScale is the fixed-point scale applied to REST-sourced prices.
const restScale = 100_000_000

// Provider is the slice of the ledger provider the resolver consumes.
type Provider interface {
	UTxOByUnit(ctx context.Context, unit string) (domain.UTxO, error)
	UTxOsAt(ctx context.Context, address string) ([]domain.UTxO, error)
}

// PriceAPI is the REST price feed.
type PriceAPI interface {
	Price(ctx context.Context, baseID, quoteID string) (float64, error)
}

// Resolver resolves prices for one cycle at a time. It holds no per-cycle
// state; the result map returned by Resolve is the cycle's cache, owned by
// the driving loop and never reused across cycles.
type Resolver struct {
	registry Registry
	api      PriceAPI
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Resolver over the given source registry.
func New(registry Registry, api PriceAPI, provider Provider, logger *slog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		api:      api,
		provider: provider,
		logger:   logger.With(slog.String("component", "resolver")),
		now:      time.Now,
	}
}

// DistinctChoiceNames extracts the deduplicated choice names of a request
// batch, sorted for deterministic resolution order.
func DistinctChoiceNames(requests []domain.OracleRequest) []string {
	seen := make(map[string]bool, len(requests))
	var names []string
	for _, r := range requests {
		if !seen[r.Choice.Name] {
			seen[r.Choice.Name] = true
			names = append(names, r.Choice.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve produces a price per distinct choice name. Names that fail to
// resolve are absent from the returned map; the failure is logged, never
// propagated. Resolution is sequential across names to bound external API
// load.
func (r *Resolver) Resolve(ctx context.Context, names []string) map[string]domain.ResolvedPrice {
	out := make(map[string]domain.ResolvedPrice, len(names))
	for _, name := range names {
		price, err := r.resolveOne(ctx, name)
		if err != nil {
			r.logger.Warn("choice resolution failed",
				slog.String("choice", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		out[name] = price
		r.logger.Info("choice resolved",
			slog.String("choice", name),
			slog.Int64("value", price.Value),
		)
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, name string) (domain.ResolvedPrice, error) {
	source, ok := r.registry[name]
	if !ok {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "no source configured"}
	}

	switch s := source.(type) {
	case RestSource:
		return r.resolveRest(ctx, name, s)
	case Charli3Source:
		return r.resolveCharli3(ctx, name, s)
	case OrcfaxSource:
		return r.resolveOrcfax(ctx, name, s)
	default:
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: fmt.Sprintf("unhandled source kind %T", source)}
	}
}

// resolveRest fetches the pair from the price API and scales it to a
// fixed-point integer, inverting first for pairs quoted against the API's
// native direction.
func (r *Resolver) resolveRest(ctx context.Context, name string, s RestSource) (domain.ResolvedPrice, error) {
	raw, err := r.api.Price(ctx, s.BaseID, s.QuoteID)
	if err != nil {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "price API", Err: err}
	}
	if raw <= 0 {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: fmt.Sprintf("non-positive price %v", raw)}
	}

	d := decimal.NewFromFloat(raw)
	if s.Invert {
		d = decimal.New(1, 0).DivRound(d, 18)
	}
	value := d.Mul(decimal.New(restScale, 0)).Round(0)
	if !value.IsInteger() || !value.BigInt().IsInt64() {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: fmt.Sprintf("scaled price %s out of range", value)}
	}
	return domain.ResolvedPrice{Value: value.IntPart()}, nil
}

// resolveCharli3 reads the unique feed-token UTxO and decodes its datum.
func (r *Resolver) resolveCharli3(ctx context.Context, name string, s Charli3Source) (domain.ResolvedPrice, error) {
	utxo, err := r.provider.UTxOByUnit(ctx, s.FeedUnit)
	if err != nil {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed utxo lookup", Err: err}
	}
	if !utxo.HasDatum() {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed utxo", Err: domain.ErrNoDatum}
	}

	raw, err := hex.DecodeString(utxo.DatumHex)
	if err != nil {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed datum hex", Err: err}
	}
	rec, err := datum.DecodeCharli3(raw, r.now().UTC())
	if err != nil {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed datum", Err: err}
	}
	if !rec.Price.IsInt64() {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed price out of int64 range"}
	}

	return domain.ResolvedPrice{
		Value: rec.Price.Int64(),
		Feed: &domain.FeedEvidence{
			UTxO:         utxo,
			ValidFrom:    rec.ValidFrom,
			ValidThrough: rec.ValidThrough,
		},
	}, nil
}

// resolveOrcfax scans the feed address for statement UTxOs under the policy,
// decodes each candidate, and selects the freshest record matching the feed
// name.
func (r *Resolver) resolveOrcfax(ctx context.Context, name string, s OrcfaxSource) (domain.ResolvedPrice, error) {
	utxos, err := r.provider.UTxOsAt(ctx, s.FeedAddress)
	if err != nil {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed address lookup", Err: err}
	}

	var (
		best     *datum.FeedRecord
		bestUTxO domain.UTxO
		ties     int
	)
	for _, utxo := range utxos {
		if !utxo.Value.HasPolicy(s.PolicyID) || !utxo.HasDatum() {
			continue
		}
		raw, err := hex.DecodeString(utxo.DatumHex)
		if err != nil {
			continue
		}
		rec, err := datum.DecodeOrcfax(raw, s.FeedName)
		if err != nil {
			if errors.Is(err, domain.ErrFeedNameMismatch) {
				// Another feed's statement at the shared address; not ours.
				continue
			}
			r.logger.Debug("unreadable feed record",
				slog.String("choice", name),
				slog.String("utxo", utxo.Ref.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch {
		case best == nil, rec.ValidFrom.After(best.ValidFrom):
			best, bestUTxO, ties = rec, utxo, 0
		case rec.ValidFrom.Equal(best.ValidFrom):
			ties++
			// Deterministic tiebreak on the UTxO reference; the feed does
			// not define an ordering for simultaneous statements.
			if utxo.Ref.String() < bestUTxO.Ref.String() {
				best, bestUTxO = rec, utxo
			}
		}
	}

	if best == nil {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: fmt.Sprintf("no readable %q record at feed address", s.FeedName)}
	}
	if ties > 0 {
		r.logger.Warn("multiple feed records share the greatest valid-from",
			slog.String("choice", name),
			slog.Int("ties", ties),
			slog.String("selected", bestUTxO.Ref.String()),
		)
	}
	if !best.Price.IsInt64() {
		return domain.ResolvedPrice{}, &domain.FeedError{Choice: name, Reason: "feed price out of int64 range"}
	}

	return domain.ResolvedPrice{
		Value: best.Price.Int64(),
		Feed: &domain.FeedEvidence{
			UTxO:         bestUTxO,
			ValidFrom:    best.ValidFrom,
			ValidThrough: best.ValidThrough,
		},
	}, nil
}
