package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRisk struct {
	global      risk.MarketSnapshot
	markets     []risk.MarketSnapshot
	haltedAsset string
	haltedReason string
	resumedAsset string
}

func (f *fakeRisk) Snapshot() (risk.MarketSnapshot, []risk.MarketSnapshot) { return f.global, f.markets }
func (f *fakeRisk) Halt(assetID, reason string)                           { f.haltedAsset = assetID; f.haltedReason = reason }
func (f *fakeRisk) ManualReset(assetID string)                            { f.resumedAsset = assetID }

type fakeInventory struct {
	positions map[string]domain.TrackedPosition
}

func (f *fakeInventory) Snapshot() map[string]domain.TrackedPosition { return f.positions }

func newTestServer() (*Server, *fakeRisk, *fakeInventory) {
	fr := &fakeRisk{global: risk.MarketSnapshot{State: risk.StateNormal, Multiplier: 1.0}}
	fi := &fakeInventory{positions: map[string]domain.TrackedPosition{}}
	return New(fr, fi), fr, fi
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRiskGetReportsGlobalAndMarkets(t *testing.T) {
	s, fr, _ := newTestServer()
	fr.markets = []risk.MarketSnapshot{{AssetID: "a1", State: risk.StateWarning, Multiplier: 0.5}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/risk", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, rec.Body.String(), "WARNING")
}

func TestInventoryGetReportsPositions(t *testing.T) {
	s, _, fi := newTestServer()
	pos := domain.NewTrackedPosition("a1")
	pos.ConfirmedSize = domain.NewSize(decimal.NewFromInt(20))
	fi.positions["a1"] = *pos

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/inventory", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "a1")
}

func TestRiskHaltDispatchesToManager(t *testing.T) {
	s, fr, _ := newTestServer()
	body := `{"asset_id":"a1","reason":"operator test"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/risk/halt", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a1", fr.haltedAsset)
	require.Equal(t, "operator test", fr.haltedReason)
}

func TestRiskResumeGlobalOnEmptyBody(t *testing.T) {
	s, fr, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/risk/resume", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "", fr.resumedAsset)
}
