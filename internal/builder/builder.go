package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
	"github.com/halcyonlabs/oraclebridge/internal/platform/applysvc"
	"github.com/halcyonlabs/oraclebridge/internal/platform/runtime"
	"github.com/halcyonlabs/oraclebridge/internal/wallet"
)

const submitConcurrency = 4

// RuntimeClient locates the current on-chain state of a contract.
type RuntimeClient interface {
	GetContract(ctx context.Context, contractID string) (runtime.ContractDetails, error)
}

// Provider resolves UTxO references to full outputs.
type Provider interface {
	UTxOsByRef(ctx context.Context, refs []domain.UTxORef) ([]domain.UTxO, error)
}

// ApplyService computes the continuation datum and redeemer for a choice.
type ApplyService interface {
	Apply(ctx context.Context, params applysvc.ApplyParams) (applysvc.ApplyResult, error)
}

// Signer is the wallet surface the builder needs.
type Signer interface {
	Address() string
	FundingUTxOs(ctx context.Context) ([]domain.UTxO, error)
	Sign(body domain.TxBody) (domain.SignedTx, error)
	Submit(ctx context.Context, tx domain.SignedTx) (string, error)
}

// Builder turns apply requests into signed, submitted transactions. Requests
// move through the stages together so a single funding set can be threaded
// through balancing; a request that fails any stage is dropped from the batch
// with a logged reason, never failing the batch.
type Builder struct {
	rt       RuntimeClient
	provider Provider
	apply    ApplyService
	wallet   Signer
	logger   *slog.Logger
	now      func() time.Time
}

func New(rt RuntimeClient, provider Provider, apply ApplyService, w Signer, logger *slog.Logger) *Builder {
	return &Builder{
		rt:       rt,
		provider: provider,
		apply:    apply,
		wallet:   w,
		logger:   logger.With("component", "builder"),
		now:      time.Now,
	}
}

// job carries one request through the stages.
type job struct {
	req      domain.ApplyRequest
	contract domain.UTxO
	datumHex string
	result   applysvc.ApplyResult
	body     domain.TxBody
}

// BuildAndSubmit runs the full pipeline for a batch of requests and returns
// the submissions that made it on chain. It errors only when the batch as a
// whole cannot proceed, such as the wallet's funding UTxOs being unreachable.
func (b *Builder) BuildAndSubmit(ctx context.Context, requests []domain.ApplyRequest) ([]domain.Submission, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	jobs := b.locate(ctx, requests)
	jobs = b.applyInputs(ctx, jobs)
	jobs = b.skeletons(jobs)
	if len(jobs) == 0 {
		return nil, nil
	}

	funding, err := b.wallet.FundingUTxOs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch funding utxos: %w", err)
	}
	jobs = b.balanceAll(jobs, NewFundingSet(funding))

	return b.signAndSubmit(ctx, jobs), nil
}

// locate fetches each contract's current UTxO and datum. A contract that has
// already moved past the choice is dropped quietly.
func (b *Builder) locate(ctx context.Context, requests []domain.ApplyRequest) []job {
	jobs := make([]job, 0, len(requests))
	for _, req := range requests {
		details, err := b.rt.GetContract(ctx, req.ContractID)
		if err != nil {
			if domain.IsNotFound(err) {
				b.logger.Info("contract no longer awaiting input",
					"contract_id", req.ContractID, "reason", domain.ErrContractMoved)
				continue
			}
			b.dropped(req.ContractID, "fetch", err)
			continue
		}

		ref, err := domain.ParseUTxORef(details.UTxO)
		if err != nil {
			b.dropped(req.ContractID, "fetch", err)
			continue
		}
		utxos, err := b.provider.UTxOsByRef(ctx, []domain.UTxORef{ref})
		if err != nil || len(utxos) == 0 {
			if err == nil {
				err = fmt.Errorf("contract utxo %s not found on chain", ref)
			}
			b.dropped(req.ContractID, "fetch", err)
			continue
		}

		datumHex := utxos[0].DatumHex
		if datumHex == "" {
			datumHex = details.CurrentDatumHex
		}
		if datumHex == "" {
			b.dropped(req.ContractID, "fetch", errors.New("contract utxo carries no datum"))
			continue
		}
		jobs = append(jobs, job{req: req, contract: utxos[0], datumHex: datumHex})
	}
	return jobs
}

// applyInputs asks the apply service for the continuation of each contract.
// Applications that release payments are skipped: paying out from the bridge
// wallet is a manual decision, not one this service takes on its own.
func (b *Builder) applyInputs(ctx context.Context, jobs []job) []job {
	kept := jobs[:0]
	for _, j := range jobs {
		owner := j.req.Choice.Owner.String()
		result, err := b.apply.Apply(ctx, applysvc.ApplyParams{
			ContractID:      j.req.ContractID,
			CurrentDatumHex: j.datumHex,
			ChoiceName:      j.req.Choice.Name,
			ChoiceOwner:     owner,
			Value:           j.req.ChosenValue,
			ValidFrom:       j.req.ValidFrom,
			ValidUntil:      j.req.ValidUntil,
		})
		if err != nil {
			b.dropped(j.req.ContractID, "apply", err)
			continue
		}
		if len(result.Payments) > 0 {
			b.logger.Warn("skipping contract whose continuation releases payments",
				"contract_id", j.req.ContractID, "payments", len(result.Payments))
			continue
		}
		j.result = result
		kept = append(kept, j)
	}
	return kept
}

// skeletons assembles the unbalanced body for each job: the contract UTxO is
// spent with the apply redeemer and recreated at the same address with the
// same value and the continuation datum.
func (b *Builder) skeletons(jobs []job) []job {
	kept := jobs[:0]
	for _, j := range jobs {
		body := domain.TxBody{
			Inputs: []domain.TxInput{{
				UTxO:        j.contract,
				RedeemerHex: j.result.RedeemerHex,
			}},
			Outputs: []domain.TxOutput{{
				Address:  j.contract.Address,
				Value:    j.contract.Value.Clone(),
				DatumHex: j.result.NewDatumHex,
			}},
			ValidFrom:  j.req.ValidFrom,
			ValidUntil: j.req.ValidUntil,
		}
		for _, ref := range j.req.Reference {
			body.ReferenceInputs = append(body.ReferenceInputs, ref.Ref)
		}
		if j.req.Choice.Owner.IsAddress() {
			keyHash, err := wallet.PaymentKeyHash(j.req.Choice.Owner.Address)
			if err != nil {
				b.dropped(j.req.ContractID, "skeleton", err)
				continue
			}
			body.RequiredSigners = []string{keyHash}
		}
		j.body = body
		kept = append(kept, j)
	}
	return kept
}

// balanceAll threads the funding set through the jobs one at a time. A job
// that fails to balance leaves the set untouched, so later jobs still see
// every UTxO it would have held.
func (b *Builder) balanceAll(jobs []job, funding FundingSet) []job {
	kept := jobs[:0]
	for _, j := range jobs {
		changeAddr := j.req.ChangeAddress
		if changeAddr == "" {
			changeAddr = b.wallet.Address()
		}
		balanced, rest, err := balance(j.body, funding, changeAddr)
		if err != nil {
			b.dropped(j.req.ContractID, "balance", err)
			continue
		}
		j.body = balanced
		funding = rest
		kept = append(kept, j)
	}
	return kept
}

// signAndSubmit signs and submits the balanced transactions concurrently.
// Every job either yields a submission or a logged drop; one rejected
// transaction never blocks the rest of the batch.
func (b *Builder) signAndSubmit(ctx context.Context, jobs []job) []domain.Submission {
	var (
		mu          sync.Mutex
		submissions []domain.Submission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(submitConcurrency)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			signed, err := b.wallet.Sign(j.body)
			if err != nil {
				b.dropped(j.req.ContractID, "sign", err)
				return nil
			}
			txID, err := b.wallet.Submit(gctx, signed)
			if err != nil {
				b.dropped(j.req.ContractID, "submit", err)
				return nil
			}
			sub := domain.Submission{
				TxID:        txID,
				ContractID:  j.req.ContractID,
				ChoiceName:  j.req.Choice.Name,
				Value:       j.req.ChosenValue,
				SubmittedAt: b.now().UTC(),
			}
			if len(j.req.Reference) > 0 {
				sub.FeedUTxO = j.req.Reference[0].Ref.String()
			}
			b.logger.Info("transaction submitted",
				"tx_id", txID,
				"contract_id", j.req.ContractID,
				"choice", j.req.Choice.Name,
				"value", j.req.ChosenValue)
			mu.Lock()
			submissions = append(submissions, sub)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return submissions
}

func (b *Builder) dropped(contractID, stage string, err error) {
	berr := &domain.BuildError{ContractID: contractID, Stage: stage, Err: err}
	b.logger.Warn("dropping contract from batch", "contract_id", contractID, "stage", stage, "error", berr.Err)
}
