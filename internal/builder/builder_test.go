package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
	"github.com/halcyonlabs/oraclebridge/internal/platform/applysvc"
	"github.com/halcyonlabs/oraclebridge/internal/platform/runtime"
)

type fakeRuntime struct {
	contracts map[string]runtime.ContractDetails
}

func (f *fakeRuntime) GetContract(_ context.Context, id string) (runtime.ContractDetails, error) {
	d, ok := f.contracts[id]
	if !ok {
		return runtime.ContractDetails{}, &domain.RequestError{Op: "GET /contracts/" + id, Status: 404}
	}
	return d, nil
}

type fakeChainProvider struct {
	utxos map[string]domain.UTxO
}

func (f *fakeChainProvider) UTxOsByRef(_ context.Context, refs []domain.UTxORef) ([]domain.UTxO, error) {
	var out []domain.UTxO
	for _, ref := range refs {
		if u, ok := f.utxos[ref.String()]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeApply struct {
	payments map[string][]applysvc.Payment
}

func (f *fakeApply) Apply(_ context.Context, params applysvc.ApplyParams) (applysvc.ApplyResult, error) {
	return applysvc.ApplyResult{
		NewDatumHex: "d0d0",
		RedeemerHex: "e0e0",
		Payments:    f.payments[params.ContractID],
	}, nil
}

type fakeWallet struct {
	mu      sync.Mutex
	funding []domain.UTxO
	signed  []domain.TxBody
	seq     int
}

func (f *fakeWallet) Address() string { return "addr_test1wallet" }

func (f *fakeWallet) FundingUTxOs(context.Context) ([]domain.UTxO, error) {
	return f.funding, nil
}

func (f *fakeWallet) Sign(body domain.TxBody) (domain.SignedTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.signed = append(f.signed, body)
	return domain.SignedTx{ID: fmt.Sprintf("tx%02d", f.seq), Body: body}, nil
}

func (f *fakeWallet) Submit(_ context.Context, tx domain.SignedTx) (string, error) {
	return tx.ID, nil
}

func fundingUTxO(txID string, lovelace int64) domain.UTxO {
	return domain.UTxO{
		Ref:     domain.UTxORef{TxID: txID, Index: 0},
		Address: "addr_test1wallet",
		Value:   domain.Value{domain.Lovelace: lovelace},
	}
}

func contractFixture(id, txID string) (runtime.ContractDetails, domain.UTxO) {
	utxo := domain.UTxO{
		Ref:      domain.UTxORef{TxID: txID, Index: 1},
		Address:  "addr_test1script",
		Value:    domain.Value{domain.Lovelace: 3_000_000},
		DatumHex: "c0ffee",
	}
	return runtime.ContractDetails{ContractID: id, UTxO: utxo.Ref.String()}, utxo
}

func applyRequest(id string) domain.ApplyRequest {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.ApplyRequest{
		ContractID:  id,
		Choice:      domain.ChoiceID{Name: "ADAUSD", Owner: domain.Party{Role: "Oracle"}},
		ChosenValue: 45_000_000,
		ValidFrom:   now,
		ValidUntil:  now.Add(5 * time.Minute),
	}
}

func newTestBuilder(rt RuntimeClient, provider Provider, apply ApplyService, w Signer) *Builder {
	return New(rt, provider, apply, w, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuildAndSubmitDisjointFunding(t *testing.T) {
	d1, u1 := contractFixture("c1", "1111")
	d2, u2 := contractFixture("c2", "2222")

	rt := &fakeRuntime{contracts: map[string]runtime.ContractDetails{"c1": d1, "c2": d2}}
	provider := &fakeChainProvider{utxos: map[string]domain.UTxO{
		u1.Ref.String(): u1,
		u2.Ref.String(): u2,
	}}
	w := &fakeWallet{funding: []domain.UTxO{
		fundingUTxO("f1", 5_000_000),
		fundingUTxO("f2", 5_000_000),
		fundingUTxO("f3", 5_000_000),
	}}

	b := newTestBuilder(rt, provider, &fakeApply{}, w)
	subs, err := b.BuildAndSubmit(context.Background(), []domain.ApplyRequest{
		applyRequest("c1"), applyRequest("c2"),
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	// No funding UTxO may be consumed by more than one transaction.
	consumed := make(map[string]int)
	for _, body := range w.signed {
		for _, ref := range body.ConsumedRefs() {
			consumed[ref.String()]++
		}
	}
	for ref, n := range consumed {
		require.Equal(t, 1, n, "utxo %s consumed by %d transactions", ref, n)
	}
}

func TestBuildAndSubmitBalances(t *testing.T) {
	d1, u1 := contractFixture("c1", "1111")
	rt := &fakeRuntime{contracts: map[string]runtime.ContractDetails{"c1": d1}}
	provider := &fakeChainProvider{utxos: map[string]domain.UTxO{u1.Ref.String(): u1}}
	w := &fakeWallet{funding: []domain.UTxO{fundingUTxO("f1", 5_000_000)}}

	b := newTestBuilder(rt, provider, &fakeApply{}, w)
	subs, err := b.BuildAndSubmit(context.Background(), []domain.ApplyRequest{applyRequest("c1")})
	require.NoError(t, err)
	require.Len(t, subs, 1)

	body := w.signed[0]
	require.Positive(t, body.Fee)

	// First input spends the contract with the apply redeemer; funding inputs
	// carry none.
	require.Equal(t, u1.Ref, body.Inputs[0].UTxO.Ref)
	require.Equal(t, "e0e0", body.Inputs[0].RedeemerHex)
	for _, in := range body.Inputs[1:] {
		require.Empty(t, in.RedeemerHex)
	}

	// The contract output recreates the same value with the new datum.
	require.Equal(t, "addr_test1script", body.Outputs[0].Address)
	require.Equal(t, u1.Value.Lovelace(), body.Outputs[0].Value.Lovelace())
	require.Equal(t, "d0d0", body.Outputs[0].DatumHex)

	// Change plus fee account for the full funding input.
	change := body.Outputs[len(body.Outputs)-1]
	require.Equal(t, "addr_test1wallet", change.Address)
	require.Equal(t, int64(5_000_000), change.Value.Lovelace()+body.Fee)
	require.GreaterOrEqual(t, change.Value.Lovelace(), int64(minUTxOLovelace))
}

func TestBuildAndSubmitSkipsPayments(t *testing.T) {
	d1, u1 := contractFixture("c1", "1111")
	d2, u2 := contractFixture("c2", "2222")

	rt := &fakeRuntime{contracts: map[string]runtime.ContractDetails{"c1": d1, "c2": d2}}
	provider := &fakeChainProvider{utxos: map[string]domain.UTxO{
		u1.Ref.String(): u1,
		u2.Ref.String(): u2,
	}}
	apply := &fakeApply{payments: map[string][]applysvc.Payment{
		"c2": {{Address: "addr_test1payee", Lovelace: 10_000_000}},
	}}
	w := &fakeWallet{funding: []domain.UTxO{fundingUTxO("f1", 5_000_000), fundingUTxO("f2", 5_000_000)}}

	b := newTestBuilder(rt, provider, apply, w)
	subs, err := b.BuildAndSubmit(context.Background(), []domain.ApplyRequest{
		applyRequest("c1"), applyRequest("c2"),
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "c1", subs[0].ContractID)
}

func TestBuildAndSubmitDropsMovedContract(t *testing.T) {
	d1, u1 := contractFixture("c1", "1111")
	rt := &fakeRuntime{contracts: map[string]runtime.ContractDetails{"c1": d1}}
	provider := &fakeChainProvider{utxos: map[string]domain.UTxO{u1.Ref.String(): u1}}
	w := &fakeWallet{funding: []domain.UTxO{fundingUTxO("f1", 5_000_000)}}

	b := newTestBuilder(rt, provider, &fakeApply{}, w)
	subs, err := b.BuildAndSubmit(context.Background(), []domain.ApplyRequest{
		applyRequest("c1"), applyRequest("gone"),
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "c1", subs[0].ContractID)
}

func TestBuildAndSubmitInsufficientFunds(t *testing.T) {
	d1, u1 := contractFixture("c1", "1111")
	d2, u2 := contractFixture("c2", "2222")

	rt := &fakeRuntime{contracts: map[string]runtime.ContractDetails{"c1": d1, "c2": d2}}
	provider := &fakeChainProvider{utxos: map[string]domain.UTxO{
		u1.Ref.String(): u1,
		u2.Ref.String(): u2,
	}}
	// One funding UTxO covers the first transaction only.
	w := &fakeWallet{funding: []domain.UTxO{fundingUTxO("f1", 5_000_000)}}

	b := newTestBuilder(rt, provider, &fakeApply{}, w)
	subs, err := b.BuildAndSubmit(context.Background(), []domain.ApplyRequest{
		applyRequest("c1"), applyRequest("c2"),
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestFundingSetExcludesTokenUTxOs(t *testing.T) {
	withToken := domain.UTxO{
		Ref:   domain.UTxORef{TxID: "t1", Index: 0},
		Value: domain.Value{domain.Lovelace: 9_000_000, "policytoken": 1},
	}
	fs := NewFundingSet([]domain.UTxO{withToken, fundingUTxO("f1", 5_000_000)})
	require.Equal(t, 1, fs.Size())

	selected, rest, err := fs.take(1_000_000)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	require.Equal(t, "f1", selected[0].Ref.TxID)
	require.Zero(t, rest.Size())
}

func TestFundingSetInsufficient(t *testing.T) {
	fs := NewFundingSet([]domain.UTxO{fundingUTxO("f1", 1_000)})
	_, rest, err := fs.take(2_000)
	require.Error(t, err)
	require.Equal(t, 1, rest.Size())
}
