package domain

import "fmt"

// PeriodType scopes caps and milestones to a calendar period.
type PeriodType string

const (
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

// PeriodContext is the caller-supplied computation window. Bounds are
// inclusive ISO dates; calendar-based, not statement-cycle-based.
type PeriodContext struct {
	Type  PeriodType `json:"type"`
	Start string     `json:"start"`
	End   string     `json:"end"`
}

// Contains reports whether an ISO date falls inside the window. Dates are
// YYYY-MM-DD, so string order and chronological order coincide.
func (p PeriodContext) Contains(dateISO string) bool {
	return dateISO >= p.Start && dateISO <= p.End
}

// PeriodKey derives the period instance key for a transaction date:
// "2025-01" (monthly), "2025-Q1" (quarterly), "2025" (yearly).
// Returns "" for dates too short to carry a year and month.
func PeriodKey(dateISO string, pt PeriodType) string {
	if len(dateISO) < 7 {
		return ""
	}
	year := dateISO[0:4]
	switch pt {
	case PeriodMonthly:
		return dateISO[0:7]
	case PeriodQuarterly:
		month := int(dateISO[5]-'0')*10 + int(dateISO[6]-'0')
		if month < 1 || month > 12 {
			return ""
		}
		return fmt.Sprintf("%s-Q%d", year, (month+2)/3)
	case PeriodYearly:
		return year
	default:
		return ""
	}
}

// RuleRef records which rule decided a transaction's outcome, with a
// pointer back to the originating catalog rule for audit.
type RuleRef struct {
	Kind RuleKind `json:"ruleType"`
	// SourceIndex is the catalog constraint index, -1 when not applicable.
	SourceIndex int `json:"sourceIndex"`
}

// PerTransactionReward is the audit-grade outcome for one transaction.
// RewardAmount is provisional (pre-cap); CappedAmount is what counted
// after period cap allocation, always <= RewardAmount.
type PerTransactionReward struct {
	TransactionID   string        `json:"transactionId"`
	CardID          string        `json:"cardId"`
	Category        SpendCategory `json:"category"`
	AppliedRule     RuleRef       `json:"appliedRule"`
	BaseAmount      int64         `json:"baseAmount"`
	RewardAmount    int64         `json:"rewardAmount"`
	CappedAmount    int64         `json:"cappedAmount"`
	Excluded        bool          `json:"excluded"`
	Explanation     string        `json:"explanation"`
	TransactionDate string        `json:"transactionDate"`
}

// CapScope distinguishes card-wide and category-scoped caps.
type CapScope string

const (
	CapScopeCard     CapScope = "card"
	CapScopeCategory CapScope = "category"
)

// CapHit reports one cap bucket that had contributing transactions.
type CapHit struct {
	Scope       CapScope      `json:"scope"`
	Category    SpendCategory `json:"category,omitempty"`
	PeriodKey   string        `json:"periodKey"`
	PeriodType  PeriodType    `json:"periodType"`
	TotalEarned int64         `json:"totalEarned"`
	CapValue    int64         `json:"capValue"`
	CappedValue int64         `json:"cappedValue"`
	OverCap     int64         `json:"overCap"`
}

// MilestoneEvent reports a milestone rule evaluated against period spend.
// Milestones are independent: several can be crossed in the same period.
type MilestoneEvent struct {
	Threshold      int64  `json:"threshold"`
	SpendInPeriod  int64  `json:"spendInPeriod"`
	Crossed        bool   `json:"crossed"`
	DeclaredReward string `json:"declaredReward"`
	RewardUnits    int64  `json:"rewardUnits,omitempty"`
	SourceIndex    int    `json:"sourceIndex"`
}

// PeriodRewardSummary is the per-period rollup the comparison layer and
// the UI consume. Totals are summed from capped amounts, never from
// provisional rewards.
type PeriodRewardSummary struct {
	Period              PeriodContext           `json:"period"`
	TotalReward         int64                   `json:"totalReward"`
	ByCategory          map[SpendCategory]int64 `json:"byCategory"`
	CapsHit             []CapHit                `json:"capsHit"`
	MilestonesTriggered []MilestoneEvent        `json:"milestonesTriggered"`
}
