package watchhttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	symbolpkg "anchorwatch/internal/pkg/symbol"
	"anchorwatch/internal/watcher"
	"anchorwatch/internal/watcher/registry"
)

type handlers struct {
	watches       WatchRegistry
	events        EventReader
	source        StatsProvider
	defaultLimits watcher.Limits
}

func (h *handlers) register(group *gin.RouterGroup) {
	group.GET("/watches", h.listWatches)
	group.POST("/watches", h.scheduleWatch)
	group.GET("/watches/:symbol", h.getWatch)
	group.DELETE("/watches/:symbol", h.removeWatch)
	group.GET("/decisions", h.recentDecisions)
	group.GET("/stats", h.sourceStats)
}

// scheduleBody is the external schedule request. Limit overrides are
// optional; unset fields inherit the configured defaults.
type scheduleBody struct {
	Symbol string `json:"symbol" binding:"required"`

	Pilot struct {
		EntryPrice    float64   `json:"entry_price" binding:"required"`
		Size          float64   `json:"size" binding:"required"`
		StopLoss      float64   `json:"stop_loss"`
		TakeProfits   []float64 `json:"take_profits"`
		OpenedAt      time.Time `json:"opened_at"`
		AnchorSupport *float64  `json:"anchor_support"`
	} `json:"pilot" binding:"required"`

	Plan struct {
		TargetSize float64 `json:"target_size"`
	} `json:"plan"`

	TTLMinutes       *int    `json:"ttl_minutes"`
	DebounceRequired *int    `json:"debounce_required"`
	MaxTopUps        *int    `json:"max_top_ups"`
	CooldownSec      *int    `json:"cooldown_sec"`
	RMFilterAction   *string `json:"rm_filter_action"`
}

func (h *handlers) scheduleWatch(c *gin.Context) {
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sym := symbolpkg.Normalize(body.Symbol)
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid symbol"})
		return
	}

	limits := h.defaultLimits
	if body.TTLMinutes != nil && *body.TTLMinutes > 0 {
		limits.TTLMinutes = *body.TTLMinutes
	}
	if body.DebounceRequired != nil && *body.DebounceRequired > 0 {
		limits.DebounceRequired = *body.DebounceRequired
	}
	if body.MaxTopUps != nil && *body.MaxTopUps >= 0 {
		limits.MaxTopUps = *body.MaxTopUps
	}
	if body.CooldownSec != nil && *body.CooldownSec >= 0 {
		limits.CooldownSec = *body.CooldownSec
	}
	if body.RMFilterAction != nil {
		switch strings.ToUpper(strings.TrimSpace(*body.RMFilterAction)) {
		case "ABORT", "ABORT_TOPUP":
			limits.RMFilterAction = watcher.ActionAbort
		case "HOLD":
			limits.RMFilterAction = watcher.ActionHold
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "rm_filter_action must be HOLD or ABORT_TOPUP"})
			return
		}
	}

	pilot := watcher.Pilot{
		EntryPrice:    body.Pilot.EntryPrice,
		Size:          body.Pilot.Size,
		StopLoss:      body.Pilot.StopLoss,
		TakeProfits:   body.Pilot.TakeProfits,
		OpenedAt:      body.Pilot.OpenedAt,
		AnchorSupport: body.Pilot.AnchorSupport,
	}
	if pilot.OpenedAt.IsZero() {
		pilot.OpenedAt = time.Now()
	}

	err := h.watches.Schedule(registry.ScheduleRequest{
		Symbol: sym,
		Pilot:  pilot,
		Plan:   watcher.Plan{TargetSize: body.Plan.TargetSize},
		Limits: limits,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	entry, ok := h.watches.Get(sym)
	if !ok {
		// Disabled registry accepts and drops the request.
		c.JSON(http.StatusAccepted, gin.H{"symbol": sym, "scheduled": false})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *handlers) listWatches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watches": h.watches.List()})
}

func (h *handlers) getWatch(c *gin.Context) {
	sym := symbolpkg.Normalize(c.Param("symbol"))
	entry, ok := h.watches.Get(sym)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "watch not found", "symbol": sym})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *handlers) removeWatch(c *gin.Context) {
	sym := symbolpkg.Normalize(c.Param("symbol"))
	if _, ok := h.watches.Get(sym); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "watch not found", "symbol": sym})
		return
	}
	if err := h.watches.Remove(sym); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "removed": true})
}

func (h *handlers) recentDecisions(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no event reader configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := h.events.Recent(c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) sourceStats(c *gin.Context) {
	if h.source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no market source configured"})
		return
	}
	c.JSON(http.StatusOK, h.source.Stats())
}
