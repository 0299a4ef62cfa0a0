// Package domain holds the core types shared across the oracle bridge:
// choices, ledger values, oracle requests, and transaction shapes. It has no
// dependencies on the platform clients so every other package can import it.
package domain

import "fmt"

// Party identifies a choice owner. Exactly one of Address or Role is set:
// an on-ledger address, or a role token name minted by the contract.
type Party struct {
	Address string
	Role    string
}

// IsAddress reports whether the party is an address party.
func (p Party) IsAddress() bool { return p.Address != "" }

// IsRole reports whether the party is a role-token party.
func (p Party) IsRole() bool { return p.Role != "" }

func (p Party) String() string {
	if p.IsRole() {
		return "role:" + p.Role
	}
	return p.Address
}

// ChoiceID uniquely identifies one answerable slot in a contract's current
// state: the choice name plus the party allowed to answer it.
type ChoiceID struct {
	Name  string
	Owner Party
}

func (c ChoiceID) String() string {
	return fmt.Sprintf("%s/%s", c.Name, c.Owner)
}

// Bound is an inclusive integer interval [From, To].
type Bound struct {
	From int64
	To   int64
}

// Contains reports whether v lies within the bound.
func (b Bound) Contains(v int64) bool { return b.From <= v && v <= b.To }

// Bounds is the set of disjoint intervals a choice declares. A candidate
// value is acceptable if it falls in at least one of them.
type Bounds []Bound

// Contain reports whether v falls inside at least one bound.
func (bs Bounds) Contain(v int64) bool {
	for _, b := range bs {
		if b.Contains(v) {
			return true
		}
	}
	return false
}
