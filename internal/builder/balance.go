package builder

import (
	"fmt"
	"sort"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// Linear fee parameters and the minimum lovelace a change output must carry.
const (
	feePerByte      = 44
	feeBase         = 155_381
	minUTxOLovelace = 1_000_000
)

// FundingSet is the ledger of available funding inputs for one batch. It is
// threaded linearly through the balancing stage: Take returns the remaining
// set as a new value, so a UTxO consumed by one transaction can never be
// offered to the next. Balancing must stay strictly sequential for the same
// reason.
type FundingSet struct {
	utxos []domain.UTxO
}

// NewFundingSet builds a funding set from the wallet's UTxOs, largest
// lovelace first. Outputs carrying non-lovelace assets are kept out of fee
// selection so native tokens are never churned through change.
func NewFundingSet(utxos []domain.UTxO) FundingSet {
	eligible := make([]domain.UTxO, 0, len(utxos))
	for _, u := range utxos {
		if len(u.Value) == 1 && u.Value.Lovelace() > 0 {
			eligible = append(eligible, u)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Value.Lovelace() != eligible[j].Value.Lovelace() {
			return eligible[i].Value.Lovelace() > eligible[j].Value.Lovelace()
		}
		return eligible[i].Ref.String() < eligible[j].Ref.String()
	})
	return FundingSet{utxos: eligible}
}

// Size returns the number of available funding UTxOs.
func (fs FundingSet) Size() int { return len(fs.utxos) }

// take selects funding UTxOs covering at least amount and returns the
// selection together with the remaining set.
func (fs FundingSet) take(amount int64) ([]domain.UTxO, FundingSet, error) {
	var (
		selected []domain.UTxO
		total    int64
	)
	for i, u := range fs.utxos {
		selected = append(selected, u)
		total += u.Value.Lovelace()
		if total >= amount {
			rest := make([]domain.UTxO, 0, len(fs.utxos)-i-1)
			rest = append(rest, fs.utxos[i+1:]...)
			return selected, FundingSet{utxos: rest}, nil
		}
	}
	return nil, fs, fmt.Errorf("insufficient funds: need %d lovelace, have %d across %d utxos",
		amount, total, len(fs.utxos))
}

// balance turns a skeleton into a fee-paid transaction: it selects funding
// inputs from fs, sets the fee, and appends a change output to changeAddress.
// It returns the balanced body and the reduced funding set. On error the
// original set is returned untouched so the batch can continue.
func balance(skeleton domain.TxBody, fs FundingSet, changeAddress string) (domain.TxBody, FundingSet, error) {
	// The contract input and output carry the same assets, so the only
	// lovelace the wallet must cover is the fee. Fee depends on the number
	// of funding inputs, so iterate until the selection is stable.
	need := estimateFee(&skeleton, 1) + minUTxOLovelace
	var (
		selected []domain.UTxO
		rest     FundingSet
		err      error
	)
	for i := 0; i < 10; i++ {
		selected, rest, err = fs.take(need)
		if err != nil {
			return domain.TxBody{}, fs, err
		}

		trial := skeleton
		trial.Inputs = append(append([]domain.TxInput{}, skeleton.Inputs...), fundingInputs(selected)...)
		fee := estimateFee(&trial, 1)
		if total(selected) >= fee+minUTxOLovelace {
			trial.Fee = fee
			change := total(selected) - fee
			trial.Outputs = append(append([]domain.TxOutput{}, skeleton.Outputs...), domain.TxOutput{
				Address: changeAddress,
				Value:   domain.Value{domain.Lovelace: change},
			})
			return trial, rest, nil
		}
		need = fee + minUTxOLovelace
	}
	return domain.TxBody{}, fs, fmt.Errorf("fee selection did not converge after 10 rounds")
}

func fundingInputs(utxos []domain.UTxO) []domain.TxInput {
	ins := make([]domain.TxInput, 0, len(utxos))
	for _, u := range utxos {
		ins = append(ins, domain.TxInput{UTxO: u})
	}
	return ins
}

func total(utxos []domain.UTxO) int64 {
	var sum int64
	for _, u := range utxos {
		sum += u.Value.Lovelace()
	}
	return sum
}

// estimateFee computes the linear fee from an estimated serialized size.
func estimateFee(body *domain.TxBody, numWitnesses int) int64 {
	size := 180
	for _, in := range body.Inputs {
		size += 44 + len(in.RedeemerHex)/2
	}
	for _, out := range body.Outputs {
		size += 72 + len(out.DatumHex)/2 + 16*len(out.Value)
	}
	size += 40 * len(body.ReferenceInputs)
	size += 32 * len(body.RequiredSigners)
	size += 102 * numWitnesses
	return feeBase + int64(feePerByte*size)
}
