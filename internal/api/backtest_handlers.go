package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/backtest"
	apperr "github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/storage"
)

func registerBacktestRoutes(api *gin.RouterGroup, deps Deps) {
	bt := api.Group("/backtest")
	bt.POST("/run", runBacktestHandler(deps))
	bt.POST("/multi-market", runMultiMarketBacktestHandler(deps))
	bt.GET("/tasks/:id", getBacktestTaskHandler(deps))
	bt.DELETE("/tasks/:id", cancelBacktestTaskHandler(deps))
}

// runBacktestHandler executes one market's historical simulation
// synchronously (spec §4.8) and returns the result inline, whatever the
// size of the candle window.
func runBacktestHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BacktestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		strat, ok := deps.Registry.Lookup(req.StrategyName)
		if !ok {
			respondError(c, apperr.New(apperr.KindValidation, "unknown strategy name"))
			return
		}

		candles, err := deps.MarketData.Candles(c.Request.Context(), req.Market, req.GranularityMins, req.CandleCount)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindTransient, "failed to fetch candle history", err))
			return
		}

		result, err := backtest.Run(c.Request.Context(), backtest.Request{
			Market:         req.Market,
			InitialBalance: req.InitialBalance,
			Candles:        candles,
			Strategy:       strat,
		})
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindContractViolation, "backtest run failed", err))
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// runMultiMarketBacktestHandler fans a backtest out over many markets.
// If Async is set, the run is handed to a background goroutine and a
// task ID is returned immediately for polling via GET /tasks/:id.
func runMultiMarketBacktestHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MultiMarketBacktestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		strat, ok := deps.Registry.Lookup(req.StrategyName)
		if !ok {
			respondError(c, apperr.New(apperr.KindValidation, "unknown strategy name"))
			return
		}

		ctx := c.Request.Context()
		requests := make([]backtest.Request, 0, len(req.Markets))
		for _, market := range req.Markets {
			candles, err := deps.MarketData.Candles(ctx, market, req.GranularityMins, req.CandleCount)
			if err != nil {
				respondError(c, apperr.Wrap(apperr.KindTransient, "failed to fetch candle history for "+market, err))
				return
			}
			requests = append(requests, backtest.Request{
				Market:         market,
				InitialBalance: req.InitialBalance,
				Candles:        candles,
				Strategy:       strat,
			})
		}
		mreq := backtest.MultiMarketRequest{Requests: requests, Concurrency: req.Concurrency}

		if !req.Async {
			results, err := backtest.RunMultiMarket(ctx, mreq)
			if err != nil {
				respondError(c, apperr.Wrap(apperr.KindContractViolation, "multi-market backtest failed", err))
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": results})
			return
		}

		taskID := ksuid.New().String()
		userID := UserIDFromContext(c)
		if err := deps.Tasks.Create(ctx, storage.Task{TaskID: taskID, UserID: userID, Status: storage.TaskQueued}); err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to create async task", err))
			return
		}

		go runAsyncBacktest(deps, taskID, mreq)

		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": string(storage.TaskQueued)})
	}
}

// runAsyncBacktest runs in its own goroutine detached from the request
// context, persisting its result for later polling.
func runAsyncBacktest(deps Deps, taskID string, mreq backtest.MultiMarketRequest) {
	ctx := context.Background()
	_ = deps.Tasks.UpdateStatus(ctx, taskID, storage.TaskRunning, "")

	results, err := backtest.RunMultiMarket(ctx, mreq)
	if err != nil {
		deps.Log.Warn("async backtest failed", zap.String("task_id", taskID), zap.Error(err))
		_ = deps.Tasks.UpdateStatus(ctx, taskID, storage.TaskFailed, err.Error())
		return
	}
	resultJSON, err := json.Marshal(results)
	if err != nil {
		_ = deps.Tasks.UpdateStatus(ctx, taskID, storage.TaskFailed, err.Error())
		return
	}
	_ = deps.Tasks.UpdateStatus(ctx, taskID, storage.TaskSucceeded, string(resultJSON))
}

func getBacktestTaskHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("id")
		task, ok, err := deps.Tasks.Get(c.Request.Context(), taskID)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to look up task", err))
			return
		}
		if !ok {
			respondError(c, apperr.New(apperr.KindNotFound, "task not found"))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"task_id": task.TaskID,
			"status":  task.Status,
			"result":  task.ResultJSON,
		})
	}
}

func cancelBacktestTaskHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("id")
		if err := deps.Tasks.Cancel(c.Request.Context(), taskID); err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to cancel task", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}
