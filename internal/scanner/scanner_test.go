package scanner

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
	"github.com/halcyonlabs/oraclebridge/internal/platform/runtime"
)

type fakeRuntime struct {
	pages    []runtime.ContractsPage
	pageErr  error
	next     map[string]runtime.NextResponse
	listCall int
}

func (f *fakeRuntime) ListContracts(_ context.Context, _ runtime.ListFilter, cursor string) (runtime.ContractsPage, error) {
	if f.pageErr != nil {
		return runtime.ContractsPage{}, f.pageErr
	}
	i := f.listCall
	f.listCall++
	if i >= len(f.pages) {
		return runtime.ContractsPage{}, errors.New("no more pages")
	}
	return f.pages[i], nil
}

func (f *fakeRuntime) Next(_ context.Context, contractID string, _, _ time.Time) (runtime.NextResponse, error) {
	next, ok := f.next[contractID]
	if !ok {
		return runtime.NextResponse{}, errors.New("no next actions")
	}
	return next, nil
}

type fakeProvider struct {
	at map[string][]domain.UTxO
}

func (f *fakeProvider) UTxOsAt(_ context.Context, address string) ([]domain.UTxO, error) {
	return f.at[address], nil
}

func choiceFor(name string, owner runtime.PartyJSON) runtime.NextResponse {
	return runtime.NextResponse{
		ApplicableInputs: runtime.ApplicableInputs{
			Choices: []runtime.ApplicableChoice{{
				ForChoice: runtime.ChoiceRef{
					ChoiceName:  name,
					ChoiceOwner: owner,
				},
				CanChooseBetween: []runtime.BoundJSON{{From: 1, To: 100_000_000_000}},
			}},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const ownAddr = "addr_test1own"

func TestScanAddressMethod(t *testing.T) {
	rt := &fakeRuntime{
		pages: []runtime.ContractsPage{{
			Results: []runtime.ContractHeader{{ContractID: "c1"}, {ContractID: "c2"}},
		}},
		next: map[string]runtime.NextResponse{
			"c1": choiceFor("ADAUSD", runtime.PartyJSON{Address: ownAddr}),
			// Owned by someone else; filtered out.
			"c2": choiceFor("ADAUSD", runtime.PartyJSON{Address: "addr_test1other"}),
		},
	}

	s := New(rt, &fakeProvider{}, runtime.ListFilter{}, ownAddr, []string{"ADAUSD"}, nil, testLogger())
	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 1)

	req := requests[0]
	require.Equal(t, "c1", req.ContractID)
	require.Equal(t, "ADAUSD", req.Choice.Name)
	require.True(t, req.Choice.Owner.IsAddress())
	require.Nil(t, req.BridgeUTxO)
	require.True(t, req.Bounds.Contain(45_000_000))
	require.True(t, req.ValidFrom.Before(req.ValidUntil))
}

func TestScanAllowlistFiltersChoiceNames(t *testing.T) {
	rt := &fakeRuntime{
		pages: []runtime.ContractsPage{{
			Results: []runtime.ContractHeader{{ContractID: "c1"}},
		}},
		next: map[string]runtime.NextResponse{
			"c1": choiceFor("BTCUSD", runtime.PartyJSON{Address: ownAddr}),
		},
	}

	s := New(rt, &fakeProvider{}, runtime.ListFilter{}, ownAddr, []string{"ADAUSD"}, nil, testLogger())
	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, requests)
}

func TestScanPaging(t *testing.T) {
	rt := &fakeRuntime{
		pages: []runtime.ContractsPage{
			{Results: []runtime.ContractHeader{{ContractID: "c1"}}, NextCursor: "p2"},
			{Results: []runtime.ContractHeader{{ContractID: "c2"}}},
		},
		next: map[string]runtime.NextResponse{
			"c1": choiceFor("ADAUSD", runtime.PartyJSON{Address: ownAddr}),
			"c2": choiceFor("ADAUSD", runtime.PartyJSON{Address: ownAddr}),
		},
	}

	s := New(rt, &fakeProvider{}, runtime.ListFilter{}, ownAddr, []string{"ADAUSD"}, nil, testLogger())
	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 2)
	require.Equal(t, 2, rt.listCall)
}

func TestScanRoleMethodMatchesBridge(t *testing.T) {
	policy := "deadbeef"
	roleToken := "Charli3 Oracle"
	unit := policy + hex.EncodeToString([]byte(roleToken))

	rt := &fakeRuntime{
		pages: []runtime.ContractsPage{{
			Results: []runtime.ContractHeader{{ContractID: "c1", RoleTokenMintingPolicyID: policy}},
		}},
		next: map[string]runtime.NextResponse{
			"c1": choiceFor("Charli3 ADAUSD", runtime.PartyJSON{RoleToken: roleToken}),
		},
	}
	bridge := domain.UTxO{
		Ref:     domain.UTxORef{TxID: "bb", Index: 0},
		Address: "addr_test1bridge",
		Value:   domain.Value{domain.Lovelace: 2_000_000, unit: 1},
	}
	provider := &fakeProvider{at: map[string][]domain.UTxO{
		"addr_test1bridge": {bridge},
	}}

	roles := []RoleMethod{{
		ChoiceName:    "Charli3 ADAUSD",
		RoleToken:     roleToken,
		BridgeAddress: "addr_test1bridge",
	}}
	s := New(rt, provider, runtime.ListFilter{}, ownAddr, nil, roles, testLogger())

	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.NotNil(t, requests[0].BridgeUTxO)
	require.Equal(t, bridge.Ref, requests[0].BridgeUTxO.Ref)
	require.True(t, requests[0].Choice.Owner.IsRole())
}

func TestScanRoleMethodNoBridgeYet(t *testing.T) {
	rt := &fakeRuntime{
		pages: []runtime.ContractsPage{{
			Results: []runtime.ContractHeader{{ContractID: "c1", RoleTokenMintingPolicyID: "deadbeef"}},
		}},
		next: map[string]runtime.NextResponse{
			"c1": choiceFor("Charli3 ADAUSD", runtime.PartyJSON{RoleToken: "Charli3 Oracle"}),
		},
	}
	provider := &fakeProvider{at: map[string][]domain.UTxO{}}

	roles := []RoleMethod{{
		ChoiceName:    "Charli3 ADAUSD",
		RoleToken:     "Charli3 Oracle",
		BridgeAddress: "addr_test1bridge",
	}}
	s := New(rt, provider, runtime.ListFilter{}, ownAddr, nil, roles, testLogger())

	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, requests)
}

func TestScanNotFoundIsFatal(t *testing.T) {
	rt := &fakeRuntime{pageErr: &domain.RequestError{Op: "GET /contracts", Status: 404}}

	s := New(rt, &fakeProvider{}, runtime.ListFilter{}, ownAddr, []string{"ADAUSD"}, nil, testLogger())
	_, err := s.Scan(context.Background())
	require.Error(t, err)

	var serr *domain.ScanError
	require.True(t, errors.As(err, &serr))
	require.True(t, domain.IsNotFound(serr.Err))
}

func TestScanPageFailureKeepsPartialResults(t *testing.T) {
	rt := &fakeRuntime{pageErr: &domain.RequestError{Op: "GET /contracts", Status: 500}}

	s := New(rt, &fakeProvider{}, runtime.ListFilter{}, ownAddr, []string{"ADAUSD"}, nil, testLogger())
	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, requests)
}

func TestScanNextFailureSkipsContract(t *testing.T) {
	rt := &fakeRuntime{
		pages: []runtime.ContractsPage{{
			Results: []runtime.ContractHeader{{ContractID: "c1"}, {ContractID: "c2"}},
		}},
		next: map[string]runtime.NextResponse{
			// c1 missing: its Next query fails.
			"c2": choiceFor("ADAUSD", runtime.PartyJSON{Address: ownAddr}),
		},
	}

	s := New(rt, &fakeProvider{}, runtime.ListFilter{}, ownAddr, []string{"ADAUSD"}, nil, testLogger())
	requests, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, "c2", requests[0].ContractID)
}
