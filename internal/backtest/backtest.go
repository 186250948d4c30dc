// Package backtest implements the Backtest Engine (spec §4.8): it
// replays historical candles through the exact same
// AnalyzeForBacktest/Position-lifecycle code the live engine uses, with
// no network or storage I/O.
package backtest

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/strategy"
)

const (
	defaultWarmup = 30
	tradingFee    = 0.0005 // 0.05%
	buyAllocation = 0.99   // spend 99% of simulated KRW on a BUY
)

// Request configures one single-market backtest run.
type Request struct {
	Market          string
	InitialBalance  float64
	Candles         []candle.Candle // index 0 = most recent, as returned by MarketDataSource
	Strategy        strategy.Strategy
	CombinedVote    func(candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) // set for COMBINED mode instead of Strategy
}

// ExitReasonTally counts how many closes happened for each ExitReason.
type ExitReasonTally map[candle.ExitReason]int

// Result is the BacktestResult returned to the caller (spec §8 scenario 6
// requires finalBalance + finalCoinBalance*lastPrice == finalTotalAsset
// exactly).
type Result struct {
	Market           string
	TotalTrades      int
	WinCount         int
	LossCount        int
	FinalBalance     float64
	FinalCoinBalance float64
	LastPrice        float64
	FinalTotalAsset  float64
	TotalProfitRate  float64
	MaxTotalAsset    float64
	MinTotalAsset    float64
	ExitReasons      ExitReasonTally
	Trades           []candle.TradeRecord
}

type simState struct {
	holding           bool
	coinBalance       float64
	krwBalance        float64
	buyPrice          float64
	highestSinceBuy   float64
	targetPrice       float64
	buyTime           int64
}

// Run executes one single-market backtest per spec §4.8's algorithm: a
// forward walk from the oldest candle to the newest, where each step's
// "as-of-now" window is a sub-range view of the original latest-first
// candle slice — no reversal, no copy, O(1) per step.
func Run(ctx context.Context, req Request) (Result, error) {
	n := len(req.Candles)
	result := Result{Market: req.Market, ExitReasons: make(ExitReasonTally)}
	if n <= defaultWarmup {
		result.FinalBalance = req.InitialBalance
		return result, nil
	}

	state := simState{krwBalance: req.InitialBalance}
	maxAsset := req.InitialBalance
	minAsset := req.InitialBalance
	lastPrice := req.Candles[0].Close

	// The i-th oldest candle is req.Candles[n-1-i], so req.Candles[n-1-i:]
	// is its as-of-now window without reversing anything.
	for i := defaultWarmup; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		asOf := req.Candles[n-1-i:]
		current := asOf[0]
		lastPrice = current.Close

		synthetic := state.toSyntheticPosition()
		res, err := req.analyze(asOf, synthetic)
		if err != nil {
			continue
		}

		switch res.Signal {
		case strategy.Buy:
			if !state.holding {
				applyBuy(&state, current, &result)
				if res.TargetPrice.IsPositive() {
					tp, _ := res.TargetPrice.Float64()
					state.targetPrice = tp
				}
			}
		case strategy.Sell:
			if state.holding {
				reason := res.ExitReason
				if reason == "" {
					reason = inferExitReason(state, current.Close)
				}
				applySell(&state, current, reason, &result)
			}
		}

		if state.holding && current.Close > state.highestSinceBuy {
			state.highestSinceBuy = current.Close
		}

		totalAsset := state.krwBalance + state.coinBalance*current.Close
		if totalAsset > maxAsset {
			maxAsset = totalAsset
		}
		if totalAsset < minAsset {
			minAsset = totalAsset
		}
	}

	result.FinalBalance = state.krwBalance
	result.FinalCoinBalance = state.coinBalance
	result.LastPrice = lastPrice
	result.FinalTotalAsset = state.krwBalance + state.coinBalance*lastPrice
	if req.InitialBalance != 0 {
		result.TotalProfitRate = (result.FinalTotalAsset - req.InitialBalance) / req.InitialBalance * 100
	}
	result.MaxTotalAsset = maxAsset
	result.MinTotalAsset = minAsset
	return result, nil
}

func (req Request) analyze(asOf []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	if req.CombinedVote != nil {
		return req.CombinedVote(asOf, synthetic)
	}
	return req.Strategy.AnalyzeForBacktest(req.Market, asOf, synthetic)
}

func (s simState) toSyntheticPosition() strategy.Position {
	return strategy.Position{
		Open:              s.holding,
		AvgEntryPrice:      decimal.NewFromFloat(s.buyPrice),
		Quantity:          decimal.NewFromFloat(s.coinBalance),
		HighestSinceEntry: decimal.NewFromFloat(s.highestSinceBuy),
		TargetPrice:       decimal.NewFromFloat(s.targetPrice),
		OpenedAt:          s.buyTime,
	}
}

func applyBuy(state *simState, c candle.Candle, result *Result) {
	spend := state.krwBalance * buyAllocation
	fee := spend * tradingFee
	netSpend := spend - fee
	qty := netSpend / c.Close

	state.holding = true
	state.krwBalance -= spend
	state.coinBalance += qty
	state.buyPrice = c.Close
	state.highestSinceBuy = c.Close
	state.buyTime = c.TimestampUTC.Unix()

	result.Trades = append(result.Trades, candle.TradeRecord{
		Market:     c.Market,
		Side:       candle.TradeBuy,
		OccurredAt: c.TimestampUTC,
		AmountKRW:  decimal.NewFromFloat(spend),
		Volume:     decimal.NewFromFloat(qty),
		Price:      decimal.NewFromFloat(c.Close),
		Fee:        decimal.NewFromFloat(fee),
	})
	result.TotalTrades++
}

func applySell(state *simState, c candle.Candle, reason candle.ExitReason, result *Result) {
	proceeds := state.coinBalance * c.Close
	fee := proceeds * tradingFee
	netProceeds := proceeds - fee

	if c.Close >= state.buyPrice {
		result.WinCount++
	} else {
		result.LossCount++
	}
	result.ExitReasons[reason]++

	result.Trades = append(result.Trades, candle.TradeRecord{
		Market:     c.Market,
		Side:       candle.TradeSell,
		OccurredAt: c.TimestampUTC,
		AmountKRW:  decimal.NewFromFloat(proceeds),
		Volume:     decimal.NewFromFloat(state.coinBalance),
		Price:      decimal.NewFromFloat(c.Close),
		Fee:        decimal.NewFromFloat(fee),
		ExitReason: reason,
	})
	result.TotalTrades++

	state.krwBalance += netProceeds
	state.coinBalance = 0
	state.holding = false
	state.buyPrice = 0
	state.highestSinceBuy = 0
	state.targetPrice = 0
	state.buyTime = 0
}

// inferExitReason is the fallback when a strategy's Sell result doesn't
// set ExitReason explicitly: infer from PnL sign per spec §4.8 step 3.
func inferExitReason(state simState, exitPrice float64) candle.ExitReason {
	if exitPrice >= state.buyPrice {
		return candle.ExitTakeProfit
	}
	return candle.ExitStopLossFixed
}

// MultiMarketRequest fans a backtest out across many markets using a
// bounded worker pool, per spec §4.8's "multi-market backtests use a
// worker pool; per-market runs are independent."
type MultiMarketRequest struct {
	Requests    []Request
	Concurrency int
}

// RunMultiMarket runs every request concurrently (bounded by
// Concurrency) and returns results in the same order as the input.
func RunMultiMarket(ctx context.Context, mreq MultiMarketRequest) ([]Result, error) {
	if mreq.Concurrency <= 0 {
		mreq.Concurrency = 8
	}
	results := make([]Result, len(mreq.Requests))
	errs := make([]error, len(mreq.Requests))

	pool, err := ants.NewPool(mreq.Concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, r := range mreq.Requests {
		i, r := i, r
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = Run(ctx, r)
		})
		if submitErr != nil {
			wg.Done()
			results[i], errs[i] = Run(ctx, r)
		}
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return results, e
		}
	}
	return results, nil
}
