package domain

// Quote is one market snapshot entry for a symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Volume        float64 `json:"volume"`
	ChangePercent float64 `json:"change_percent"` // 24h change, in percent
}
