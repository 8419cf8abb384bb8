package domain

// TransactionType classifies a statement line. Only credit-type
// transactions are reward-eligible; debit and refund never earn.
type TransactionType string

const (
	TypeCredit TransactionType = "credit"
	TypeDebit  TransactionType = "debit"
	TypeRefund TransactionType = "refund"
)

// CategorizedTransaction is the engine's transaction input: normalized,
// categorized and deduplicated upstream. Immutable once constructed.
type CategorizedTransaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	CardID     string          `json:"cardId"`
	Date       string          `json:"date"` // ISO YYYY-MM-DD
	Amount     int64           `json:"amount"`
	Currency   string          `json:"currency"`
	Type       TransactionType `json:"type"`
	Merchant   string          `json:"merchant"`
	Category   SpendCategory   `json:"spendCategory"`
	Statement  string          `json:"statementId,omitempty"`
	CreatedAt  string          `json:"createdAt,omitempty"`
	ImportedBy string          `json:"importedBy,omitempty"`
}

// TransactionRequest is the API payload for batch ingest.
type TransactionRequest struct {
	CardID   string          `json:"cardId"`
	Date     string          `json:"date"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Type     TransactionType `json:"type"`
	Merchant string          `json:"merchant"`
	// MerchantCategory is the upstream merchant classification, used by
	// the categorizer when Category is empty.
	MerchantCategory string        `json:"merchantCategory,omitempty"`
	Category         SpendCategory `json:"spendCategory,omitempty"`
}
