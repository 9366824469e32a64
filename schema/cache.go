package schema

import "time"

type LeaderboardCache struct {
	JournalSequence      int64                   `json:"journalSequence"`
	TotalAssets          string                  `json:"totalAssets"`
	TotalAssetsFormatted string                  `json:"totalAssetsFormatted"`
	TotalDepositors      uint64                  `json:"totalDepositors"`
	Top                  []LeaderboardCacheEntry `json:"top"`
	UpdatedAt            time.Time               `json:"updatedAt"`
}

type LeaderboardCacheEntry struct {
	Rank             int    `json:"rank"`
	Address          string `json:"address"`
	Balance          string `json:"balance"`
	BalanceFormatted string `json:"balanceFormatted"`
}
