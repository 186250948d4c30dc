package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/position"
	"github.com/tradsys-core/engine/internal/realtime"
	"github.com/tradsys-core/engine/internal/voting"
)

func registerTradingRoutes(api *gin.RouterGroup, deps Deps) {
	trading := api.Group("/trading")
	trading.POST("/execute/:market", executeHandler(deps))
	trading.GET("/status/:market", statusHandler(deps))
	trading.GET("/dashboard", dashboardHandler(deps))

	strategies := api.Group("/strategies")
	strategies.GET("/", listStrategiesHandler(deps))
	strategies.GET("/selection", listSelectionHandler(deps))
	strategies.POST("/selection", setSelectionHandler(deps))
}

// executeHandler manually runs one tick for the authenticated user
// against one market, outside the scheduler's normal cadence — used by
// the dashboard's "run now" action.
func executeHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		market, ok := requireMarket(c)
		if !ok {
			return
		}
		userID := UserIDFromContext(c)

		names, err := deps.Users.EnabledStrategies(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to resolve enabled strategies", err))
			return
		}
		strategies, err := deps.Registry.Resolve(names)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindValidation, "unknown strategy in selection", err))
			return
		}

		in := realtime.TickInput{
			UserID:          userID,
			Market:          market,
			Strategies:      strategies,
			VotingMode:      voting.ModeDefault,
			CandleWindow:    100,
			GranularityMins: 1,
			PositionParams:  position.DefaultParams(),
		}
		if err := deps.Coordinator.Tick(c.Request.Context(), in); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "executed", "market": market})
	}
}

func statusHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		market, ok := requireMarket(c)
		if !ok {
			return
		}
		userID := UserIDFromContext(c)
		last, found, err := deps.Journal.LastTrade(c.Request.Context(), userID, market)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to read last trade", err))
			return
		}
		if !found {
			c.JSON(http.StatusOK, gin.H{"market": market, "has_trade_history": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"market":             market,
			"has_trade_history":  true,
			"last_side":          last.Side,
			"last_price":         last.Price,
			"last_exit_reason":   last.ExitReason,
			"last_occurred_at":   last.OccurredAt,
		})
	}
}

func dashboardHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c)
		names, err := deps.Users.EnabledStrategies(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to resolve enabled strategies", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":            userID,
			"enabled_strategies": names,
			"voting_modes":       []voting.Mode{voting.ModeDefault, voting.ModeScaledTrading},
		})
	}
}

func listStrategiesHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"strategies": deps.Registry.All()})
	}
}

func listSelectionHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c)
		names, err := deps.Users.EnabledStrategies(c.Request.Context(), userID)
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to resolve selection", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": names})
	}
}

func setSelectionHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StrategySelectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, ok := deps.Registry.Lookup(req.StrategyName); !ok {
			respondError(c, apperr.New(apperr.KindValidation, "unknown strategy name"))
			return
		}
		userID := UserIDFromContext(c)
		if err := deps.Users.SetStrategySelection(c.Request.Context(), userID, req.StrategyName, req.Enabled); err != nil {
			respondError(c, apperr.Wrap(apperr.KindPersistence, "failed to persist selection", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
