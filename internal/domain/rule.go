package domain

// RuleKind discriminates the reward rule union.
type RuleKind string

const (
	RuleCategoryRate RuleKind = "category_rate"
	RuleExclusion    RuleKind = "exclusion"
	RuleCap          RuleKind = "cap"
	RuleMilestone    RuleKind = "milestone"
)

// RewardRule is one clause of a card's reward program. It is a tagged
// union: Kind selects which fields are meaningful.
//
//   - category_rate: Category, RatePer100 (units per ₹100 of spend)
//   - exclusion:     Category (never earns, regardless of rate rules)
//   - cap:           MaxUnits, Period, optional Category (absent = global)
//   - milestone:     Threshold, Period, DeclaredReward, optional RewardUnits
//
// List order follows the source catalog and is preserved; first match wins
// for rate and cap lookups.
type RewardRule struct {
	Kind RuleKind `json:"type"`

	// category_rate / exclusion / cap (cap: empty = global scope)
	Category SpendCategory `json:"category,omitempty"`

	// category_rate
	RatePer100 float64 `json:"ratePer100,omitempty"`

	// cap
	MaxUnits int64 `json:"maxUnits,omitempty"`

	// cap / milestone
	Period PeriodType `json:"period,omitempty"`

	// milestone
	Threshold      int64  `json:"threshold,omitempty"`
	DeclaredReward string `json:"declaredReward,omitempty"`
	RewardUnits    int64  `json:"rewardUnits,omitempty"`

	// SourceIndex points back to the originating catalog constraint for
	// audit. -1 when unknown.
	SourceIndex int `json:"sourceIndex"`
}

// CardRuleSet is a card's complete declared reward program.
type CardRuleSet struct {
	CardID string       `json:"cardId"`
	Rules  []RewardRule `json:"rules"`
}
