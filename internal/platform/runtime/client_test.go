package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

func TestListContracts(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contracts", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"contractId": "aa11#1", "roleTokenMintingPolicyId": "deadbeef", "status": "confirmed", "tags": {"oracle": "v1"}},
				{"contractId": "bb22#0", "status": "confirmed"}
			],
			"nextCursor": "page-2"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 25)
	filter := ListFilter{
		PartyAddresses: []string{"addr_test1alpha", "addr_test1beta"},
		Tags:           []string{"oracle"},
	}
	page, err := client.ListContracts(context.Background(), filter, "page-1")
	require.NoError(t, err)

	require.Equal(t, []string{"25"}, gotQuery["limit"])
	require.Equal(t, []string{"page-1"}, gotQuery["cursor"])
	require.Equal(t, []string{"addr_test1alpha", "addr_test1beta"}, gotQuery["partyAddress"])
	require.Equal(t, []string{"oracle"}, gotQuery["tag"])

	require.Equal(t, "page-2", page.NextCursor)
	require.Len(t, page.Results, 2)
	require.Equal(t, "aa11#1", page.Results[0].ContractID)
	require.Equal(t, "deadbeef", page.Results[0].RoleTokenMintingPolicyID)
	require.Equal(t, "v1", page.Results[0].Tags["oracle"])
}

func TestListContractsFirstPageOmitsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["cursor"]
		require.False(t, present)
		w.Write([]byte(`{"results": [], "nextCursor": ""}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, 10).ListContracts(context.Background(), ListFilter{}, "")
	require.NoError(t, err)
	require.Empty(t, page.Results)
	require.Empty(t, page.NextCursor)
}

func TestNext(t *testing.T) {
	validFrom := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validUntil := validFrom.Add(5 * time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contracts/aa11%231/next", r.URL.EscapedPath())
		q := r.URL.Query()
		require.Equal(t, "2026-03-01T12:00:00Z", q.Get("validityStart"))
		require.Equal(t, "2026-03-01T12:05:00Z", q.Get("validityEnd"))
		w.Write([]byte(`{
			"applicable_inputs": {
				"choices": [
					{
						"for_choice": {
							"choice_name": "ADAUSD",
							"choice_owner": {"role_token": "Oracle"}
						},
						"can_choose_between": [{"from": 1, "to": 100000000000}]
					}
				]
			}
		}`))
	}))
	defer srv.Close()

	next, err := NewClient(srv.URL, 10).Next(context.Background(), "aa11#1", validFrom, validUntil)
	require.NoError(t, err)

	require.Len(t, next.ApplicableInputs.Choices, 1)
	choice := next.ApplicableInputs.Choices[0]
	require.Equal(t, "ADAUSD", choice.ForChoice.ChoiceName)
	require.Equal(t, "Oracle", choice.ForChoice.ChoiceOwner.RoleToken)
	require.Empty(t, choice.ForChoice.ChoiceOwner.Address)
	require.Equal(t, []BoundJSON{{From: 1, To: 100000000000}}, choice.CanChooseBetween)
}

func TestGetContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contracts/aa11%231", r.URL.EscapedPath())
		w.Write([]byte(`{"contractId": "aa11#1", "utxo": "cc33#0", "currentDatum": "d8799f00ff"}`))
	}))
	defer srv.Close()

	details, err := NewClient(srv.URL, 10).GetContract(context.Background(), "aa11#1")
	require.NoError(t, err)
	require.Equal(t, "aa11#1", details.ContractID)
	require.Equal(t, "cc33#0", details.UTxO)
	require.Equal(t, "d8799f00ff", details.CurrentDatumHex)
}

func TestGetContractNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "contract not found", "details": "aa11#1"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 10).GetContract(context.Background(), "aa11#1")
	require.Error(t, err)
	require.True(t, domain.IsNotFound(err))

	var reqErr *domain.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusNotFound, reqErr.Status)
	require.Equal(t, "contract not found", reqErr.Body)
}

func TestCheckStatusPlainBody(t *testing.T) {
	err := checkStatus("runtime /contracts", http.StatusBadGateway, []byte("upstream unavailable"))
	require.Error(t, err)

	var reqErr *domain.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusBadGateway, reqErr.Status)
	require.Equal(t, "upstream unavailable", reqErr.Body)
	require.False(t, domain.IsNotFound(err))
}

func TestListContractsBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 10).ListContracts(context.Background(), ListFilter{}, "")
	require.Error(t, err)

	var reqErr *domain.RequestError
	require.False(t, errors.As(err, &reqErr))
}
