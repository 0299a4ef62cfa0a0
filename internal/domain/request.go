package domain

import "time"

// OracleRequest is one answerable choice discovered by the scanner. Immutable
// once created; it lives for a single scan cycle.
type OracleRequest struct {
	ContractID string
	Choice     ChoiceID
	Bounds     Bounds
	ValidFrom  time.Time
	ValidUntil time.Time

	// BridgeUTxO is set only when the choice owner is a decentralized-oracle
	// role token; it is the bridge output proving this service may answer.
	// It is referenced read-only by the resulting transaction, never spent.
	BridgeUTxO *UTxO
}

// FeedEvidence is the on-ledger backing of a resolved price: the feed UTxO and
// the validity window its datum declares.
type FeedEvidence struct {
	UTxO         UTxO
	ValidFrom    time.Time
	ValidThrough time.Time
}

// ResolvedPrice is the outcome of resolving one choice name: a fixed-point
// scaled integer plus, for ledger-backed sources, the feed evidence. Cached
// per choice name for one cycle only; feed validity windows are time-sensitive
// so nothing survives across cycles.
type ResolvedPrice struct {
	Value int64
	Feed  *FeedEvidence
}

// ApplyRequest joins an OracleRequest with its resolved value; it is the unit
// of work handed to the transaction builder.
type ApplyRequest struct {
	ContractID    string
	ChangeAddress string
	Choice        ChoiceID
	ChosenValue   int64
	ValidFrom     time.Time
	ValidUntil    time.Time

	// Reference lists UTxOs (bridge, feed evidence) the transaction must
	// reference without spending.
	Reference []UTxO
}

// Submission records one submitted transaction for the audit trail.
type Submission struct {
	TxID        string
	ContractID  string
	ChoiceName  string
	Value       int64
	FeedUTxO    string
	SubmittedAt time.Time
}
