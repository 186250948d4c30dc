package strategy

import (
	"context"
	"strconv"

	"github.com/tradsys-core/engine/internal/ports"
)

// ParamFloat resolves a float64-typed parameter with a default.
func ParamFloat(ctx context.Context, store ports.ParameterStore, strategyName, userID, key string, def float64) float64 {
	v, err := Param(ctx, store, strategyName, userID, key, strconv.FormatFloat(def, 'f', -1, 64))
	if err != nil {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// ParamInt resolves an int-typed parameter with a default.
func ParamInt(ctx context.Context, store ports.ParameterStore, strategyName, userID, key string, def int) int {
	v, err := Param(ctx, store, strategyName, userID, key, strconv.Itoa(def))
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
