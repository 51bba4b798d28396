package model

// Vault event payloads as read back from journal attributes. Amounts are
// decimal strings in registered token order.

type PoolRegisteredData struct {
	Pool   string `json:"pool"`
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	FeeBps string `json:"fee_bps"`
}

type SwapEventData struct {
	Pool       string `json:"pool"`
	Sender     string `json:"sender"`
	Recipient  string `json:"recipient"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
	FeeBps     string `json:"fee_bps"`
}

// MintEventData is the payload of a liquidity addition.
type MintEventData struct {
	Pool      string `json:"pool"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Liquidity string `json:"liquidity"`
}

// BurnEventData is the payload of a liquidity removal.
type BurnEventData struct {
	Pool      string `json:"pool"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Liquidity string `json:"liquidity"`
}

// SyncEventData carries the reserves after a commit.
type SyncEventData struct {
	Pool     string `json:"pool"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}
