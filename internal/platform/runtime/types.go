package runtime

// ContractHeader is one entry of the paginated contract listing.
type ContractHeader struct {
	ContractID               string            `json:"contractId"`
	RoleTokenMintingPolicyID string            `json:"roleTokenMintingPolicyId"`
	Status                   string            `json:"status"`
	Tags                     map[string]string `json:"tags"`
}

// ContractDetails describes a contract's current on-ledger position.
type ContractDetails struct {
	ContractID      string `json:"contractId"`
	UTxO            string `json:"utxo"`
	CurrentDatumHex string `json:"currentDatum"`
}

// NextResponse lists the actions currently applicable to a contract over the
// requested validity window.
type NextResponse struct {
	ApplicableInputs ApplicableInputs `json:"applicable_inputs"`
}

// ApplicableInputs groups the applicable actions by kind. The bridge only
// consumes choices.
type ApplicableInputs struct {
	Choices []ApplicableChoice `json:"choices"`
}

// ApplicableChoice is one choice a party may currently answer.
type ApplicableChoice struct {
	ForChoice        ChoiceRef   `json:"for_choice"`
	CanChooseBetween []BoundJSON `json:"can_choose_between"`
}

// ChoiceRef names the choice and its owner.
type ChoiceRef struct {
	ChoiceName  string    `json:"choice_name"`
	ChoiceOwner PartyJSON `json:"choice_owner"`
}

// PartyJSON is the wire form of a party: exactly one of the fields is set.
type PartyJSON struct {
	Address   string `json:"address,omitempty"`
	RoleToken string `json:"role_token,omitempty"`
}

// BoundJSON is an inclusive integer interval.
type BoundJSON struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ContractsPage is one page of the contract listing.
type ContractsPage struct {
	Results    []ContractHeader `json:"results"`
	NextCursor string           `json:"nextCursor"`
}

// errorResponse is the runtime's error envelope.
type errorResponse struct {
	Message string `json:"message"`
	Details string `json:"details"`
}
