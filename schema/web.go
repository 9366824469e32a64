package schema

import "time"

type GetStatusResponse struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Asset           string `json:"asset"`
	AssetSymbol     string `json:"assetSymbol"`
	Decimals        int32  `json:"decimals"`
	Address         string `json:"address"`
	TotalAssets     string `json:"totalAssets"`
	TotalDepositors uint64 `json:"totalDepositors"`
	JournalSequence int64  `json:"journalSequence"`
}

type GetLeaderboardResponse LeaderboardCache

type GetDepositorRequest struct {
	Address string `param:"address"`
}

type GetDepositorResponse struct {
	Address          string `json:"address"`
	Balance          string `json:"balance"`
	BalanceFormatted string `json:"balanceFormatted"`
	Rank             int    `json:"rank"`
}

type GetWalletRequest struct {
	Address string `param:"address"`
}

type GetWalletResponse struct {
	Address            string `json:"address"`
	Balance            string `json:"balance"`
	BalanceFormatted   string `json:"balanceFormatted"`
	Allowance          string `json:"allowance"`
	AllowanceFormatted string `json:"allowanceFormatted"`
}

type ApproveRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type DepositRequest struct {
	Caller      string `json:"caller"`
	Amount      string `json:"amount"`
	Beneficiary string `json:"beneficiary"`
}

type WithdrawRequest struct {
	Caller    string `json:"caller"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// ReceiptResponse is returned by every mutating endpoint.
type ReceiptResponse struct {
	ID               string    `json:"id"`
	Sequence         int64     `json:"sequence"`
	Kind             string    `json:"kind"`
	Caller           string    `json:"caller"`
	Counterparty     string    `json:"counterparty"`
	Amount           string    `json:"amount"`
	Balance          string    `json:"balance"`
	BalanceFormatted string    `json:"balanceFormatted"`
	Timestamp        time.Time `json:"timestamp"`
}
