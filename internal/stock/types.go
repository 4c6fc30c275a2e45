package stock

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/rickgao/stocksync/internal/match"
)

// Errors
var (
	ErrUnknownEntry = errors.New("unknown stock entry")
	ErrInvalidEntry = errors.New("invalid stock entry")
	ErrUnknownKind  = errors.New("unknown stock kind")
)

// Kind distinguishes the two stock books.
type Kind string

const (
	KindItem  Kind = "item"
	KindRiven Kind = "riven"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindItem, KindRiven:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Status is the derived listing state of a stock entry.
type Status string

const (
	StatusPending     Status = "pending"
	StatusLive        Status = "live"
	StatusToLowProfit Status = "to_low_profit"
	StatusNoSellers   Status = "no_sellers"
	StatusNoBuyers    Status = "no_buyers"
	StatusInactive    Status = "inactive"
	StatusSMALimit    Status = "sma_limit"
	StatusOrderLimit  Status = "order_limit"
	StatusOverpriced  Status = "overpriced"
	StatusUnderpriced Status = "underpriced"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{
	StatusPending, StatusLive, StatusToLowProfit, StatusNoSellers, StatusNoBuyers,
	StatusInactive, StatusSMALimit, StatusOrderLimit, StatusOverpriced, StatusUnderpriced,
}

// Listed reports whether an entry in this status holds a live order slot.
func (s Status) Listed() bool {
	return s == StatusLive || s == StatusOverpriced || s == StatusUnderpriced
}

// Probe is the outcome of the last marketplace probe for an entry.
type Probe string

const (
	ProbeUnknown   Probe = ""
	ProbeOK        Probe = "ok"
	ProbeNoSellers Probe = "no_sellers"
	ProbeNoBuyers  Probe = "no_buyers"
)

// PricePoint is one valuation produced by the backend.
type PricePoint struct {
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// SubType narrows an item to a variant (rank, relic refinement, stars).
type SubType struct {
	Rank       *int64  `json:"rank,omitempty"`
	Variant    *string `json:"variant,omitempty"`
	AmberStars *int64  `json:"amber_stars,omitempty"`
	CyanStars  *int64  `json:"cyan_stars,omitempty"`
}

// Key returns a stable string for grouping entries of the same variant.
func (s *SubType) Key() string {
	if s == nil {
		return ""
	}
	key := ""
	if s.Rank != nil {
		key += "r" + strconv.FormatInt(*s.Rank, 10)
	}
	if s.Variant != nil {
		key += "v" + *s.Variant
	}
	if s.AmberStars != nil {
		key += "a" + strconv.FormatInt(*s.AmberStars, 10)
	}
	if s.CyanStars != nil {
		key += "c" + strconv.FormatInt(*s.CyanStars, 10)
	}
	return key
}

// Entry holds the fields shared by items and rivens.
type Entry struct {
	ID           int64        `json:"id"`
	Bought       int64        `json:"bought"`
	MinimumPrice *int64       `json:"minimum_price,omitempty"`
	ListPrice    *int64       `json:"list_price,omitempty"` // derived
	SubType      *SubType     `json:"sub_type,omitempty"`
	Owned        int64        `json:"owned"`
	Disabled     bool         `json:"is_hidden"`
	Probe        Probe        `json:"probe,omitempty"`
	Status       Status       `json:"status"` // derived
	PriceHistory []PricePoint `json:"price_history"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// LatestPrice returns the most recent price point, if any.
func (e *Entry) LatestPrice() (PricePoint, bool) {
	if len(e.PriceHistory) == 0 {
		return PricePoint{}, false
	}
	return e.PriceHistory[len(e.PriceHistory)-1], true
}

func (e *Entry) base() *Entry { return e }

// Item is a plain tradable item held in stock.
type Item struct {
	Entry
	WFMID          string `json:"wfm_id"`
	WFMURL         string `json:"wfm_url"`
	ItemName       string `json:"item_name"`
	ItemUniqueName string `json:"item_unique_name"`
}

func (i *Item) groupKey() string { return i.WFMURL + "|" + i.SubType.Key() }

// Name returns the display name.
func (i Item) Name() string { return i.ItemName }

// Riven is a riven mod held in stock.
type Riven struct {
	Entry
	WeaponURL   string            `json:"weapon_url"`
	WeaponName  string            `json:"weapon_name"`
	ModName     string            `json:"mod_name"`
	Rank        int64             `json:"mod_rank"`
	MasteryRank int64             `json:"mastery_rank"`
	ReRolls     int64             `json:"re_rolls"`
	Polarity    string            `json:"polarity"`
	Attributes  []match.Attribute `json:"attributes"`
	MatchRiven  match.Criteria    `json:"match_riven"`
}

func (r *Riven) groupKey() string { return r.WeaponURL }

// Name returns the display name ("<weapon> <mod>").
func (r Riven) Name() string { return r.WeaponName + " " + r.ModName }

// Candidate projects the riven onto the fields listings are matched on.
func (r Riven) Candidate() match.Candidate {
	return match.Candidate{
		MasteryRank: r.MasteryRank,
		ReRolls:     r.ReRolls,
		Polarity:    r.Polarity,
		Attributes:  r.Attributes,
	}
}

// Criteria returns the effective match criteria: MatchRiven plus every own
// attribute the user flagged for matching.
func (r Riven) Criteria() match.Criteria {
	return match.Merge(r.MatchRiven, r.Attributes)
}

// Accepts reports whether a marketplace listing is equivalent to this riven.
func (r Riven) Accepts(listing match.Candidate) bool {
	return match.Matches(listing, r.Criteria())
}

// MatchPatch builds the update patch that replaces the riven's match
// criteria. flags maps attribute url names to their new match flag; names
// not in flags keep their flag. A nil flags leaves attributes out of the patch.
func (r Riven) MatchPatch(criteria match.Criteria, flags map[string]bool) map[string]any {
	patch := map[string]any{"match_riven": criteria}
	if flags == nil {
		return patch
	}
	attrs := slices.Clone(r.Attributes)
	for i := range attrs {
		if flag, ok := flags[attrs[i].URLName]; ok {
			attrs[i].Match = flag
		}
	}
	patch["attributes"] = attrs
	return patch
}

// entryPtr is satisfied by *Item and *Riven.
type entryPtr[T any] interface {
	*T
	base() *Entry
	groupKey() string
}
