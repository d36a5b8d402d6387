package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vigil/internal/alerts"
	"vigil/internal/automation"
	"vigil/internal/logger"
	"vigil/internal/pkg/convert"
	"vigil/internal/rules"
	"vigil/internal/scaled"
	"vigil/internal/store"
	"vigil/internal/trailing"
)

// RunHistory exposes recorded automation passes.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]automation.Report, error)
}

// Router mounts the management API onto a gin group.
type Router struct {
	Orch     *automation.Orchestrator
	Rules    *rules.Engine
	Trailing *trailing.Engine
	Scaled   *scaled.Engine
	Alerts   *alerts.Engine
	Presets  *scaled.Registry
	Runs     RunHistory
	Audit    store.AuditStore
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/automation/run", r.handleAutomationRun)
	group.GET("/automation/runs", r.handleAutomationRuns)

	group.POST("/rules", r.handleRuleCreate)
	group.POST("/rules/oco", r.handleRuleCreateOCO)
	group.GET("/rules", r.handleRuleList)
	group.DELETE("/rules/:id", r.handleRuleCancel)
	group.POST("/rules/:id/toggle", r.handleRuleToggle)

	group.POST("/trailing", r.handleTrailingCreate)
	group.GET("/trailing", r.handleTrailingList)
	group.DELETE("/trailing/:id", r.handleTrailingCancel)
	group.POST("/trailing/:id/toggle", r.handleTrailingToggle)

	group.POST("/scaled", r.handleScaledCreate)
	group.GET("/scaled", r.handleScaledList)
	group.DELETE("/scaled/:id", r.handleScaledCancel)
	group.GET("/scaled/presets", r.handlePresetList)

	group.POST("/alerts/price", r.handleAlertCreatePrice)
	group.POST("/alerts/pnl", r.handleAlertCreatePnL)
	group.POST("/alerts/volume", r.handleAlertCreateVolume)
	group.GET("/alerts", r.handleAlertList)
	group.DELETE("/alerts/:id", r.handleAlertCancel)

	group.GET("/audit", r.handleAuditRecent)
}

func (r *Router) handleAutomationRun(c *gin.Context) {
	var opts automation.Options
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	rep := r.Orch.Run(c.Request.Context(), opts)
	logger.Infof("[api] automation run ip=%s force=%v triggered=%d skipped=%v",
		c.ClientIP(), opts.Force, rep.TotalTriggered, rep.Skipped)
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handleAutomationRuns(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history not enabled"})
		return
	}
	limit, _ := convert.ToInt(c.DefaultQuery("limit", "20"))
	reps, err := r.Runs.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] run history failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": reps})
}

type ruleCreateRequest struct {
	Symbol         string  `json:"symbol"`
	Kind           string  `json:"kind"`
	Side           string  `json:"side"`
	TriggerValue   float64 `json:"trigger_value"`
	TriggerPercent float64 `json:"trigger_percent"`
	EntryPrice     float64 `json:"entry_price"`
	Quantity       float64 `json:"quantity"`
}

func (r *Router) handleRuleCreate(c *gin.Context) {
	var req ruleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := r.Rules.Create(rules.CreateParams{
		Symbol:         req.Symbol,
		Kind:           rules.Kind(req.Kind),
		Side:           req.Side,
		TriggerValue:   req.TriggerValue,
		TriggerPercent: req.TriggerPercent,
		EntryPrice:     req.EntryPrice,
		Quantity:       req.Quantity,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule": rule})
}

type ocoCreateRequest struct {
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	Quantity        float64 `json:"quantity"`
}

func (r *Router) handleRuleCreateOCO(c *gin.Context) {
	var req ocoCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tp, sl, err := r.Rules.CreateOCO(rules.OCOParams{
		Symbol:          req.Symbol,
		Side:            req.Side,
		TakeProfitPrice: req.TakeProfitPrice,
		StopLossPrice:   req.StopLossPrice,
		Quantity:        req.Quantity,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"take_profit": tp, "stop_loss": sl})
}

func (r *Router) handleRuleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": r.Rules.ListActive(c.Query("symbol"))})
}

func (r *Router) handleRuleCancel(c *gin.Context) {
	r.Rules.Cancel(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (r *Router) handleRuleToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.Rules.Toggle(c.Param("id"), req.Enabled)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type trailingCreateRequest struct {
	Symbol            string  `json:"symbol"`
	Side              string  `json:"side"`
	EntryPrice        float64 `json:"entry_price"`
	Quantity          float64 `json:"quantity"`
	TrailPercent      float64 `json:"trail_percent"`
	TrailAmount       float64 `json:"trail_amount"`
	ActivationPercent float64 `json:"activation_percent"`
	Enabled           *bool   `json:"enabled"`
}

func (r *Router) handleTrailingCreate(c *gin.Context) {
	var req trailingCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	stop, err := r.Trailing.Create(trailing.CreateParams{
		Symbol:            req.Symbol,
		Side:              req.Side,
		EntryPrice:        req.EntryPrice,
		Quantity:          req.Quantity,
		TrailPercent:      req.TrailPercent,
		TrailAmount:       req.TrailAmount,
		ActivationPercent: req.ActivationPercent,
		Enabled:           enabled,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trailing_stop": stop})
}

func (r *Router) handleTrailingList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trailing_stops": r.Trailing.ListActive(c.Query("symbol"))})
}

func (r *Router) handleTrailingCancel(c *gin.Context) {
	r.Trailing.Cancel(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleTrailingToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.Trailing.Toggle(c.Param("id"), req.Enabled)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type scaledCreateRequest struct {
	Symbol        string              `json:"symbol"`
	Side          string              `json:"side"`
	EntryPrice    float64             `json:"entry_price"`
	TotalQuantity float64             `json:"total_quantity"`
	Targets       []scaled.TargetSpec `json:"targets"`
	Preset        string              `json:"preset"`
	TrailingTP    *scaled.TrailingLeg `json:"trailing_take_profit"`
}

func (r *Router) handleScaledCreate(c *gin.Context) {
	var req scaledCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := r.Scaled.Create(scaled.CreateParams{
		Symbol:        req.Symbol,
		Side:          req.Side,
		EntryPrice:    req.EntryPrice,
		TotalQuantity: req.TotalQuantity,
		Targets:       req.Targets,
		Preset:        req.Preset,
		TrailingTP:    req.TrailingTP,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (r *Router) handleScaledList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": r.Scaled.ListActive(c.Query("symbol"))})
}

func (r *Router) handleScaledCancel(c *gin.Context) {
	r.Scaled.Cancel(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handlePresetList(c *gin.Context) {
	if r.Presets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presets not enabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"presets": r.Presets.Snapshot()})
}

type priceAlertRequest struct {
	Symbol          string     `json:"symbol"`
	Kind            string     `json:"kind"`
	TargetValue     float64    `json:"target_value"`
	BasePrice       *float64   `json:"base_price"`
	Repeating       bool       `json:"repeating"`
	CooldownMinutes int        `json:"cooldown_minutes"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (r *Router) handleAlertCreatePrice(c *gin.Context) {
	var req priceAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alert, err := r.Alerts.CreatePriceAlert(c.Request.Context(), alerts.PriceAlertParams{
		Symbol:          req.Symbol,
		Kind:            alerts.Kind(req.Kind),
		TargetValue:     req.TargetValue,
		BasePrice:       req.BasePrice,
		Repeating:       req.Repeating,
		CooldownMinutes: req.CooldownMinutes,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

type pnlAlertRequest struct {
	Symbol          string     `json:"symbol"`
	Kind            string     `json:"kind"`
	TargetValue     float64    `json:"target_value"`
	Repeating       bool       `json:"repeating"`
	CooldownMinutes int        `json:"cooldown_minutes"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (r *Router) handleAlertCreatePnL(c *gin.Context) {
	var req pnlAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alert, err := r.Alerts.CreatePnLAlert(alerts.PnLAlertParams{
		Symbol:          req.Symbol,
		Kind:            alerts.Kind(req.Kind),
		TargetValue:     req.TargetValue,
		Repeating:       req.Repeating,
		CooldownMinutes: req.CooldownMinutes,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

type volumeAlertRequest struct {
	Symbol          string     `json:"symbol"`
	Multiplier      float64    `json:"multiplier"`
	Repeating       bool       `json:"repeating"`
	CooldownMinutes int        `json:"cooldown_minutes"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (r *Router) handleAlertCreateVolume(c *gin.Context) {
	var req volumeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alert, err := r.Alerts.CreateVolumeSpikeAlert(alerts.VolumeAlertParams{
		Symbol:          req.Symbol,
		Multiplier:      req.Multiplier,
		Repeating:       req.Repeating,
		CooldownMinutes: req.CooldownMinutes,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

func (r *Router) handleAlertList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": r.Alerts.ListActive(c.Query("symbol"))})
}

func (r *Router) handleAlertCancel(c *gin.Context) {
	r.Alerts.Cancel(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleAuditRecent(c *gin.Context) {
	if r.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not enabled"})
		return
	}
	limit, _ := convert.ToInt(c.DefaultQuery("limit", "50"))
	events, err := r.Audit.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] audit query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// writeEngineError maps validation failures to 400, anything else to
// 500.
func writeEngineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, rules.ErrValidation) ||
		errors.Is(err, trailing.ErrValidation) ||
		errors.Is(err, scaled.ErrValidation) ||
		errors.Is(err, alerts.ErrValidation) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
