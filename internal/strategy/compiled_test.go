package strategy

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/domain"
)

func validConfig() *domain.StrategyConfig {
	return &domain.StrategyConfig{
		ID: "s1",
		EntryBuy: json.RawMessage(`{"type":"COMPARISON","op":"LT",
			"left":{"type":"INDICATOR_VALUE","value_key":"rsi_timeperiod_14_value"},
			"right":{"type":"VALUE","value":30}}`),
		ExitLong: json.RawMessage(`{"type":"COMPARISON","op":"GT",
			"left":{"type":"INDICATOR_VALUE","value_key":"rsi_timeperiod_14_value"},
			"right":{"type":"VALUE","value":70}}`),
		Execution: domain.ExecutionParams{
			InitialBalance:  100_000,
			CommissionPct:   0.001,
			PositionSizePct: 100,
			LotSize:         1,
		},
	}
}

func TestCompileValidStrategy(t *testing.T) {
	c, err := Compile(validConfig())
	require.NoError(t, err)

	assert.NotNil(t, c.EntryBuy)
	assert.Nil(t, c.EntrySell)
	assert.Equal(t, []string{"rsi_timeperiod_14_value"}, c.RequiredValueKeys())
}

func TestCompileRejectsNoEntries(t *testing.T) {
	cfg := validConfig()
	cfg.EntryBuy = nil

	_, err := Compile(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFatalConfig))
}

func TestCompileRejectsBadExecution(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.PositionSizePct = 10 // below the allowed floor

	_, err := Compile(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFatalConfig))
}
