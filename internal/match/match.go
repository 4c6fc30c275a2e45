// Package match decides whether a riven listing satisfies a user's match criteria.
//
// Every field of Criteria is optional. Present fields are combined
// conjunctively; an empty Criteria matches any candidate.
package match

// Attribute is one rolled stat on a riven.
type Attribute struct {
	URLName  string  `json:"url_name"`
	Value    float64 `json:"value"`
	Positive bool    `json:"positive"`
	Match    bool    `json:"match"` // user wants this attribute (and polarity) matched
}

// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Contains reports whether v lies in [Min, Max]. An inverted range contains nothing.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

// Criteria constrains which listings count as equivalent to a stock riven.
type Criteria struct {
	ReRolls     *Range      `json:"re_rolls,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	MasteryRank *Range      `json:"mastery_rank,omitempty"`
	Polarity    string      `json:"polarity,omitempty"`
}

// IsEmpty reports whether c imposes no constraint.
func (c Criteria) IsEmpty() bool {
	return c.ReRolls == nil && len(c.Attributes) == 0 && c.MasteryRank == nil && c.Polarity == ""
}

// Candidate is the subset of a riven listing that criteria are evaluated against.
type Candidate struct {
	MasteryRank int64       `json:"mastery_rank"`
	ReRolls     int64       `json:"re_rolls"`
	Polarity    string      `json:"polarity"`
	Attributes  []Attribute `json:"attributes"`
}

// Matches reports whether candidate satisfies every present field of c.
// The result does not depend on the order of candidate.Attributes.
func Matches(candidate Candidate, c Criteria) bool {
	if c.ReRolls != nil && !c.ReRolls.Contains(candidate.ReRolls) {
		return false
	}
	if c.MasteryRank != nil && !c.MasteryRank.Contains(candidate.MasteryRank) {
		return false
	}
	if c.Polarity != "" && c.Polarity != candidate.Polarity {
		return false
	}
	if len(c.Attributes) == 0 {
		return true
	}

	// url_name -> set of match flags seen on the candidate
	seen := make(map[string][2]bool, len(candidate.Attributes))
	for _, a := range candidate.Attributes {
		flags := seen[a.URLName]
		if a.Match {
			flags[1] = true
		} else {
			flags[0] = true
		}
		seen[a.URLName] = flags
	}

	for _, want := range c.Attributes {
		flags, ok := seen[want.URLName]
		if !ok {
			return false
		}
		if want.Match && !flags[1] || !want.Match && !flags[0] {
			return false
		}
	}
	return true
}

// Merge returns c with the attributes flagged Match on the riven itself added
// to the attribute subset. Attributes already named in c keep c's flag.
func Merge(c Criteria, own []Attribute) Criteria {
	named := make(map[string]struct{}, len(c.Attributes))
	for _, a := range c.Attributes {
		named[a.URLName] = struct{}{}
	}

	out := c
	out.Attributes = append([]Attribute(nil), c.Attributes...)
	for _, a := range own {
		if !a.Match {
			continue
		}
		if _, dup := named[a.URLName]; dup {
			continue
		}
		named[a.URLName] = struct{}{}
		out.Attributes = append(out.Attributes, a)
	}
	if len(out.Attributes) == 0 {
		out.Attributes = nil
	}
	return out
}
