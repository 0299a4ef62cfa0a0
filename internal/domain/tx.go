package domain

import "time"

// TxInput spends one UTxO. RedeemerHex is set for script spends (the contract
// input); it is carried opaquely from the apply-computation service.
type TxInput struct {
	UTxO        UTxO
	RedeemerHex string
}

// TxOutput creates one UTxO.
type TxOutput struct {
	Address  string
	Value    Value
	DatumHex string
}

// TxBody is an unsigned transaction. It starts as a skeleton produced by the
// builder (contract input/output only, zero fee) and becomes balanced once the
// balancer has set the fee and added funding inputs and a change output.
type TxBody struct {
	Inputs          []TxInput
	Outputs         []TxOutput
	ReferenceInputs []UTxORef
	Fee             int64
	ValidFrom       time.Time
	ValidUntil      time.Time

	// RequiredSigners lists the payment key hashes (hex) that must witness
	// the transaction beyond the fee payer.
	RequiredSigners []string
}

// ConsumedRefs returns the references of every UTxO the transaction spends.
func (b *TxBody) ConsumedRefs() []UTxORef {
	refs := make([]UTxORef, 0, len(b.Inputs))
	for _, in := range b.Inputs {
		refs = append(refs, in.UTxO.Ref)
	}
	return refs
}

// SignedTx is a witnessed transaction ready for submission.
type SignedTx struct {
	ID         string
	Body       TxBody
	WitnessHex string
}
