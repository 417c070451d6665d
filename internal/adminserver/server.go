// Package adminserver exposes a small read-only and manual-override HTTP
// surface (spec §6): health, current risk state, current inventory, and
// operator kill-switch endpoints. It replaces the reference bot's
// multi-tenant controlplane/server for this single-process engine, keeping
// its gin.Engine + gin.Recovery() setup and plain-JSON response shape.
package adminserver

import (
	"net/http"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/risk"
	"github.com/gin-gonic/gin"
)

// RiskManager is the subset of internal/risk.Manager the admin surface
// needs, kept narrow so tests can supply a fake.
type RiskManager interface {
	Snapshot() (global risk.MarketSnapshot, markets []risk.MarketSnapshot)
	Halt(assetID, reason string)
	ManualReset(assetID string)
}

// InventoryManager is the subset of internal/inventory.Manager the admin
// surface needs.
type InventoryManager interface {
	Snapshot() map[string]domain.TrackedPosition
}

type Server struct {
	risk RiskManager
	inv  InventoryManager
	engine *gin.Engine
}

func New(riskMgr RiskManager, invMgr InventoryManager) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{risk: riskMgr, inv: invMgr}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.handleHealthz)
	r.GET("/risk", s.handleRiskGet)
	r.GET("/inventory", s.handleInventoryGet)
	r.POST("/risk/halt", s.handleRiskHalt)
	r.POST("/risk/resume", s.handleRiskResume)
	s.engine = r
	return s
}

// Handler returns the http.Handler to pass to http.Server, so the
// orchestrator controls listener lifecycle and shutdown.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type marketRiskView struct {
	AssetID    string  `json:"asset_id"`
	State      string  `json:"state"`
	Multiplier float64 `json:"position_multiplier"`
}

func (s *Server) handleRiskGet(c *gin.Context) {
	global, markets := s.risk.Snapshot()
	views := make([]marketRiskView, 0, len(markets))
	for _, mk := range markets {
		views = append(views, marketRiskView{AssetID: mk.AssetID, State: string(mk.State), Multiplier: mk.Multiplier})
	}
	c.JSON(http.StatusOK, gin.H{
		"global":  marketRiskView{State: string(global.State), Multiplier: global.Multiplier},
		"markets": views,
	})
}

type positionView struct {
	AssetID       string  `json:"asset_id"`
	ConfirmedSize float64 `json:"confirmed_size"`
	EffectiveSize float64 `json:"effective_size"`
	AvgPrice      float64 `json:"avg_price"`
	PendingFills  int     `json:"pending_fills"`
}

func (s *Server) handleInventoryGet(c *gin.Context) {
	snap := s.inv.Snapshot()
	views := make([]positionView, 0, len(snap))
	for assetID, pos := range snap {
		views = append(views, positionView{
			AssetID:       assetID,
			ConfirmedSize: pos.ConfirmedSize.Float64(),
			EffectiveSize: pos.EffectiveSize().Float64(),
			AvgPrice:      pos.AvgPrice.Float64(),
			PendingFills:  len(pos.PendingFills),
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": views})
}

type riskActionRequest struct {
	AssetID string `json:"asset_id"` // empty means global scope
	Reason  string `json:"reason"`
}

func (s *Server) handleRiskHalt(c *gin.Context) {
	var req riskActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if req.Reason == "" {
		req.Reason = "manual operator halt"
	}
	s.risk.Halt(req.AssetID, req.Reason)
	c.JSON(http.StatusOK, gin.H{"status": "halted", "asset_id": req.AssetID})
}

func (s *Server) handleRiskResume(c *gin.Context) {
	var req riskActionRequest
	// resume takes no reason; an empty body (no asset_id) resumes globally.
	_ = c.ShouldBindJSON(&req)
	s.risk.ManualReset(req.AssetID)
	c.JSON(http.StatusOK, gin.H{"status": "resuming", "asset_id": req.AssetID})
}
