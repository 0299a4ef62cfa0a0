package resolver

// Source is one member of the closed set of price source strategies. The
// dispatch in Resolve is an exhaustive type switch, so adding a member here
// forces every dispatch point to handle it.
type Source interface{ isSource() }

// RestSource answers a choice from the public REST price API.
type RestSource struct {
	BaseID  string
	QuoteID string

	// Invert is set when the choice's pair is quoted in the opposite
	// direction from the API's native quoting; the resolved value is then
	// round(1/raw * scale).
	Invert bool
}

// Charli3Source answers a choice from a Charli3 oracle feed: the unique UTxO
// holding the feed token.
type Charli3Source struct {
	// FeedUnit is the feed token's asset unit (policy id + hex asset name).
	FeedUnit string
}

// OrcfaxSource answers a choice from an Orcfax oracle feed: the freshest
// matching statement UTxO at the feed address.
type OrcfaxSource struct {
	FeedAddress string
	PolicyID    string
	FeedName    string
}

func (RestSource) isSource()    {}
func (Charli3Source) isSource() {}
func (OrcfaxSource) isSource()  {}

// Registry is the static choice-name → source mapping built from
// configuration at startup.
type Registry map[string]Source
