package risk

import (
	"context"
	"testing"
	"time"

	"github.com/betbot/aquoter/pkg/alert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *alert.MockChannel, *[]string) {
	t.Helper()
	mock := alert.NewMockChannel("mock")
	alerter := alert.NewManager([]alert.Channel{mock}, 0)

	var cancelled []string
	cancelAll := func(_ context.Context, assetID string) {
		cancelled = append(cancelled, assetID)
	}

	cfg := DefaultConfig()
	return NewManager(cfg, cancelAll, alerter), mock, &cancelled
}

// S7 — an authenticated user-channel disconnect is always a hard, global
// HALT regardless of per-market state, and fires an operator alert.
func TestS7UserChannelDisconnectHaltsGlobally(t *testing.T) {
	mgr, mock, cancelled := newTestManager(t)

	require.False(t, mgr.IsHalted("a1"))
	require.False(t, mgr.IsHalted("a2"))

	mgr.NotifyUserChannelDisconnect()

	require.True(t, mgr.IsHalted("a1"))
	require.True(t, mgr.IsHalted("a2"), "global HALT dominates markets with no fault of their own")
	require.Equal(t, StateHalted, mgr.State(""))
	require.Contains(t, *cancelled, "")
	require.Equal(t, 1, mock.Count())
	require.Equal(t, "CRITICAL", mock.GetAlerts()[0].Level)
}

func TestConsecutiveErrorsEscalateWarnThenHalt(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.cfg.MaxConsecutiveErrorsWarn = 2
	mgr.cfg.MaxConsecutiveErrors = 4

	now := time.Now()
	for i := 0; i < 2; i++ {
		mgr.RecordError("a1", now)
	}
	require.Equal(t, StateWarning, mgr.State("a1"))
	require.False(t, mgr.IsHalted("a1"))

	for i := 0; i < 2; i++ {
		mgr.RecordError("a1", now)
	}
	require.True(t, mgr.IsHalted("a1"))
}

func TestDrawdownBreachHaltsMarketOnly(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.cfg.MaxDrawdownPerMarket = 100

	mgr.UpdatePnL("a1", 200) // establishes peak
	mgr.UpdatePnL("a1", 50)  // drawdown = 150 >= 100

	require.True(t, mgr.IsHalted("a1"))
	require.False(t, mgr.IsHalted("a2"))
}

func TestSequenceGapEscalatesAfterReconcileAttemptsExhausted(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.cfg.WsGapReconcileAttempts = 3

	mgr.NotifySequenceGap("a1", 5, 9)
	require.Equal(t, StateWarning, mgr.State("a1"))

	mgr.NotifySequenceGap("a1", 9, 12)
	mgr.NotifySequenceGap("a1", 12, 15)
	require.True(t, mgr.IsHalted("a1"))
}

func TestTickRecoversAfterCooldownAndClearedCause(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.cfg.HaltCooldown = 0
	mgr.cfg.RecoveryInterval = 0

	mgr.escalate("a1", StateHalted, "test halt")
	require.Equal(t, StateHalted, mgr.State("a1"))

	mgr.Tick("a1", time.Now())
	require.Equal(t, StateRecovering, mgr.State("a1"))

	mgr.Tick("a1", time.Now().Add(time.Millisecond))
	require.Equal(t, StateNormal, mgr.State("a1"))
}

func TestManualResetRequiredBlocksAutoRecovery(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.cfg.RequireManualReset = true
	mgr.cfg.HaltCooldown = 0

	mgr.escalate("a1", StateHalted, "manual reset required")
	mgr.Tick("a1", time.Now())
	require.Equal(t, StateHalted, mgr.State("a1"), "must stay halted until ManualReset is called")

	mgr.ManualReset("a1")
	require.Equal(t, StateRecovering, mgr.State("a1"))
}

func TestPositionMultiplierMatchesState(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	require.Equal(t, 1.0, mgr.PositionMultiplier("a1"))

	mgr.escalate("a1", StateWarning, "test")
	require.Equal(t, 0.5, mgr.PositionMultiplier("a1"))

	mgr.escalate("a1", StateHalted, "test")
	require.Equal(t, 0.0, mgr.PositionMultiplier("a1"))
}
