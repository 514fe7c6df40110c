package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// fallbackPrice is used when a token arrives with no price at all.
var fallbackPrice = decimal.NewFromFloat(0.001)

// Simulator executes trades against an in-memory random walk. Every trade
// succeeds; prices move up to +/-8% per poll, which is representative of
// launchpad volatility.
type Simulator struct {
	logger *zap.Logger

	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

// NewSimulator seeds the walk from the clock.
func NewSimulator(logger *zap.Logger) *Simulator {
	return NewSimulatorWithSeed(logger, time.Now().UnixNano())
}

// NewSimulatorWithSeed gives tests a deterministic walk.
func NewSimulatorWithSeed(logger *zap.Logger, seed int64) *Simulator {
	return &Simulator{
		logger: logger.Named("simulator"),
		prices: make(map[string]decimal.Decimal),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulator) Name() string { return "simulator" }

// SetPrice pins a token's current price. Used by tests and by the engine
// when a discovery carries a price.
func (s *Simulator) SetPrice(tokenAddress string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[tokenAddress] = price
}

func (s *Simulator) ExecuteTrade(ctx context.Context, req TradeRequest) (*types.TradeResult, error) {
	price := s.priceFor(req.Token)

	result := &types.TradeResult{
		Success:   true,
		Signature: "sim_" + uuid.New().String(),
		Price:     price,
		AmountSOL: req.AmountSOL,
	}
	if req.Kind == types.TradeSell {
		result.ProceedsSOL = req.TokensOwned.Mul(price)
	}
	s.logger.Debug("simulated trade",
		zap.String("kind", string(req.Kind)),
		zap.String("token", req.Token.Address),
		zap.String("price", price.String()))
	return result, nil
}

// CurrentPrice advances the walk one step and returns the new price.
func (s *Simulator) CurrentPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[tokenAddress]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown token %s", tokenAddress)
	}
	step := decimal.NewFromFloat(1 + (s.rng.Float64()*0.16 - 0.08))
	price = price.Mul(step)
	if price.IsNegative() || price.IsZero() {
		price = fallbackPrice
	}
	s.prices[tokenAddress] = price
	return price, nil
}

func (s *Simulator) priceFor(token types.Token) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.prices[token.Address]; ok {
		return p
	}
	price := fallbackPrice
	if token.PriceUSD != nil && *token.PriceUSD > 0 {
		price = decimal.NewFromFloat(*token.PriceUSD)
	}
	s.prices[token.Address] = price
	return price
}
