package launchpad

import (
	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

const (
	pumpFunScrapeURL  = "https://frontend-api.pump.fun/coins/latest"
	pumpFunIndexerURL = "https://indexer.pump.fun/v1/tokens/recent"
)

// NewPumpFun builds the pump.fun scanner. Empty URLs select the production
// endpoints.
func NewPumpFun(scrapeURL, indexerURL string, logger *zap.Logger) Scanner {
	if scrapeURL == "" {
		scrapeURL = pumpFunScrapeURL
	}
	if indexerURL == "" {
		indexerURL = pumpFunIndexerURL
	}
	return newHTTPScanner(types.PlatformPumpFun, scrapeURL, indexerURL, logger)
}
