package launchpad

import (
	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

const (
	bonkFunScrapeURL  = "https://api.bonk.fun/tokens/latest"
	bonkFunIndexerURL = "https://indexer.bonk.fun/v1/tokens/recent"
)

// NewBonkFun builds the bonk.fun scanner. Empty URLs select the production
// endpoints.
func NewBonkFun(scrapeURL, indexerURL string, logger *zap.Logger) Scanner {
	if scrapeURL == "" {
		scrapeURL = bonkFunScrapeURL
	}
	if indexerURL == "" {
		indexerURL = bonkFunIndexerURL
	}
	return newHTTPScanner(types.PlatformBonkFun, scrapeURL, indexerURL, logger)
}
