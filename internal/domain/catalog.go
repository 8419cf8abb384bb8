package domain

// CatalogSource records where a catalog fact was sourced from.
type CatalogSource string

const (
	SourceBankSite  CatalogSource = "bank_site"
	SourceMITC      CatalogSource = "mitc"
	SourceStatement CatalogSource = "statement"
)

// RewardCurrency is the card's native reward unit. The engine is
// currency-agnostic; this is display/catalog metadata only.
type RewardCurrency string

const (
	CurrencyPoints   RewardCurrency = "points"
	CurrencyCashback RewardCurrency = "cashback"
	CurrencyMiles    RewardCurrency = "miles"
	CurrencyOther    RewardCurrency = "other"
)

// FeeAmount is a declared fee with source attribution.
type FeeAmount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Fees holds a card's declared fee structure.
type Fees struct {
	Joining    *FeeAmount `json:"joining,omitempty"`
	Annual     *FeeAmount `json:"annual,omitempty"`
	WaiverText string     `json:"waiverText,omitempty"`
}

// Benefit is a customer-facing declared benefit. Declaration only; never
// consulted by reward computation.
type Benefit struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// DeclaredMilestone is the catalog's verbatim milestone declaration. The
// executable milestone rule lives in the card's rule set.
type DeclaredMilestone struct {
	Threshold      int64      `json:"threshold"`
	Period         PeriodType `json:"period"`
	DeclaredReward string     `json:"declaredReward"`
}

// CardVariant is one catalog entry: declarative fee/benefit data with no
// computation. source and sourceRef are mandatory for audit.
type CardVariant struct {
	ID             string              `json:"id"`
	Bank           string              `json:"bank"`
	Family         string              `json:"family"`
	VariantName    string              `json:"variantName"`
	Network        string              `json:"network"`
	RewardCurrency RewardCurrency      `json:"rewardCurrency"`
	Fees           Fees                `json:"fees"`
	Milestones     []DeclaredMilestone `json:"milestones,omitempty"`
	Benefits       []Benefit           `json:"benefits,omitempty"`
	Tags           []string            `json:"tags,omitempty"`
	EffectiveFrom  string              `json:"effectiveFrom"`
	EffectiveTo    string              `json:"effectiveTo,omitempty"`
	Source         CatalogSource       `json:"source"`
	SourceRef      string              `json:"sourceRef"`
	VerifiedAt     string              `json:"verifiedAt"`
}
