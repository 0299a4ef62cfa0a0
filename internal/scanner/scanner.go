// Package scanner discovers the choices this service is authorized and
// configured to answer. It enumerates contract headers, queries each
// contract's applicable actions, filters by resolve method, and emits one
// OracleRequest per eligible choice.
package scanner

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
	"github.com/halcyonlabs/oraclebridge/internal/platform/runtime"
)

// scanWindow is the validity half-window applied to next-action queries and
// carried onto the emitted requests. Wide enough that a submission slipping
// relative to scan time is not rejected, no wider so inputs do not go stale.
const scanWindow = 5 * time.Minute

// nextConcurrency bounds the number of in-flight next-action queries.
const nextConcurrency = 8

// RuntimeClient is the slice of the runtime API the scanner consumes.
type RuntimeClient interface {
	ListContracts(ctx context.Context, filter runtime.ListFilter, cursor string) (runtime.ContractsPage, error)
	Next(ctx context.Context, contractID string, validFrom, validUntil time.Time) (runtime.NextResponse, error)
}

// Provider is the slice of the ledger provider the scanner consumes.
type Provider interface {
	UTxOsAt(ctx context.Context, address string) ([]domain.UTxO, error)
}

// RoleMethod is one configured decentralized-oracle resolve method.
type RoleMethod struct {
	ChoiceName    string
	RoleToken     string
	BridgeAddress string
}

// Scanner emits OracleRequests for the current cycle.
type Scanner struct {
	rt         RuntimeClient
	provider   Provider
	filter     runtime.ListFilter
	ownAddress string
	allowlist  map[string]bool
	roles      []RoleMethod
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Scanner. allowlist holds the choice names the address method
// answers; an empty allowlist disables the address method.
func New(
	rt RuntimeClient,
	provider Provider,
	filter runtime.ListFilter,
	ownAddress string,
	allowlist []string,
	roles []RoleMethod,
	logger *slog.Logger,
) *Scanner {
	allowed := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		allowed[name] = true
	}
	return &Scanner{
		rt:         rt,
		provider:   provider,
		filter:     filter,
		ownAddress: ownAddress,
		allowlist:  allowed,
		roles:      roles,
		logger:     logger.With(slog.String("component", "scanner")),
		now:        time.Now,
	}
}

// pendingRoleMatch is a role-owned choice waiting for its bridge UTxO.
type pendingRoleMatch struct {
	header  runtime.ContractHeader
	choice  runtime.ApplicableChoice
	methodI int
}

// Scan runs one discovery pass. A not-found-class error on the enumeration
// path is fatal and returned; every other failure is logged and the affected
// header skipped.
func (s *Scanner) Scan(ctx context.Context) ([]domain.OracleRequest, error) {
	headers, err := s.allHeaders(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	validFrom := now.Add(-scanWindow)
	validUntil := now.Add(scanWindow)

	// Per-header next-action queries are independent; fan out and settle all.
	results := make([]*runtime.NextResponse, len(headers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nextConcurrency)
	for i, h := range headers {
		i, h := i, h
		g.Go(func() error {
			next, err := s.rt.Next(gctx, h.ContractID, validFrom, validUntil)
			if err != nil {
				s.logger.Warn("next actions query failed, skipping contract",
					slog.String("contract_id", h.ContractID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = &next
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &domain.ScanError{Err: err}
	}

	var requests []domain.OracleRequest
	var pending []pendingRoleMatch
	for i, h := range headers {
		if results[i] == nil {
			continue
		}
		for _, choice := range results[i].ApplicableInputs.Choices {
			owner := choice.ForChoice.ChoiceOwner
			switch {
			case owner.Address != "":
				if owner.Address != s.ownAddress || !s.allowlist[choice.ForChoice.ChoiceName] {
					continue
				}
				requests = append(requests, s.toRequest(h, choice, validFrom, validUntil, nil))
			case owner.RoleToken != "":
				mi := s.roleMethodFor(owner.RoleToken)
				if mi < 0 {
					continue
				}
				pending = append(pending, pendingRoleMatch{header: h, choice: choice, methodI: mi})
			}
		}
	}

	matched, err := s.matchBridges(ctx, pending, validFrom, validUntil)
	if err != nil {
		return nil, err
	}
	requests = append(requests, matched...)

	s.logger.Info("scan complete",
		slog.Int("headers", len(headers)),
		slog.Int("requests", len(requests)),
	)
	return requests, nil
}

// allHeaders pages through the contract listing until the cursor is
// exhausted. Pages are sequential: each cursor depends on the previous
// response.
func (s *Scanner) allHeaders(ctx context.Context) ([]runtime.ContractHeader, error) {
	var headers []runtime.ContractHeader
	cursor := ""
	for {
		page, err := s.rt.ListContracts(ctx, s.filter, cursor)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, &domain.ScanError{Err: err}
			}
			// Without a cursor the listing cannot continue; work with what
			// we have.
			s.logger.Warn("contract listing page failed",
				slog.String("cursor", cursor),
				slog.String("error", err.Error()),
			)
			return headers, nil
		}
		headers = append(headers, page.Results...)
		if page.NextCursor == "" {
			return headers, nil
		}
		cursor = page.NextCursor
	}
}

// roleMethodFor returns the index of the role method configured for the given
// role token, or -1.
func (s *Scanner) roleMethodFor(roleToken string) int {
	for i, r := range s.roles {
		if r.RoleToken == roleToken {
			return i
		}
	}
	return -1
}

// matchBridges locates, for each pending role-owned choice, the bridge UTxO
// holding the role token minted by that contract's own policy. Bridge UTxOs
// are fetched once per method, not per match. Unmatched choices are dropped:
// the bridge has not yet delivered the expected token.
func (s *Scanner) matchBridges(ctx context.Context, pending []pendingRoleMatch, validFrom, validUntil time.Time) ([]domain.OracleRequest, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	bridgeUTxOs := make(map[int][]domain.UTxO, len(s.roles))
	for _, p := range pending {
		if _, done := bridgeUTxOs[p.methodI]; done {
			continue
		}
		utxos, err := s.provider.UTxOsAt(ctx, s.roles[p.methodI].BridgeAddress)
		if err != nil {
			return nil, &domain.ScanError{Err: fmt.Errorf("bridge utxos at %s: %w", s.roles[p.methodI].BridgeAddress, err)}
		}
		bridgeUTxOs[p.methodI] = utxos
	}

	var requests []domain.OracleRequest
	for _, p := range pending {
		method := s.roles[p.methodI]
		unit := p.header.RoleTokenMintingPolicyID + hex.EncodeToString([]byte(method.RoleToken))

		var bridge *domain.UTxO
		for i := range bridgeUTxOs[p.methodI] {
			if bridgeUTxOs[p.methodI][i].Value[unit] > 0 {
				bridge = &bridgeUTxOs[p.methodI][i]
				break
			}
		}
		if bridge == nil {
			s.logger.Info("no bridge utxo for role token yet, skipping",
				slog.String("contract_id", p.header.ContractID),
				slog.String("role_token", method.RoleToken),
			)
			continue
		}
		requests = append(requests, s.toRequest(p.header, p.choice, validFrom, validUntil, bridge))
	}
	return requests, nil
}

func (s *Scanner) toRequest(h runtime.ContractHeader, choice runtime.ApplicableChoice, validFrom, validUntil time.Time, bridge *domain.UTxO) domain.OracleRequest {
	bounds := make(domain.Bounds, 0, len(choice.CanChooseBetween))
	for _, b := range choice.CanChooseBetween {
		bounds = append(bounds, domain.Bound{From: b.From, To: b.To})
	}
	owner := domain.Party{
		Address: choice.ForChoice.ChoiceOwner.Address,
		Role:    choice.ForChoice.ChoiceOwner.RoleToken,
	}
	return domain.OracleRequest{
		ContractID: h.ContractID,
		Choice:     domain.ChoiceID{Name: choice.ForChoice.ChoiceName, Owner: owner},
		Bounds:     bounds,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		BridgeUTxO: bridge,
	}
}
