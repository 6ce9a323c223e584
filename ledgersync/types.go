package ledgersync

import "github.com/shopspring/decimal"

// JournalRequest is the external ledger's expected shape for a stock-count
// adjustment journal.
type JournalRequest struct {
	Reference   string        `json:"reference"`
	JournalName string        `json:"journal_name"`
	JournalDate string        `json:"journal_date"`
	BusinessId  string        `json:"business_id"`
	Lines       []JournalLine `json:"lines"`
}

type JournalLine struct {
	LocationId  int             `json:"location_id"`
	ProductId   int             `json:"product_id"`
	SystemQty   decimal.Decimal `json:"system_qty"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	VarianceQty decimal.Decimal `json:"variance_qty"`
}

type JournalResponse struct {
	JournalId string `json:"journal_id"`
}
