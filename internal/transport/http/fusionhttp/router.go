package fusionhttp

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/gormstore"
)

// Ingestor accepts raw source payloads and feeds them into the pipeline.
// Implemented by the app layer, which validates, parses and publishes.
type Ingestor interface {
	IngestSignal(ctx context.Context, sourceName string, payload []byte) (fusion.Signal, error)
	IngestTradeResult(ctx context.Context, payload []byte) (fusion.TradeResult, error)
}

const maxIngestBody = 256 * 1024

// Router exposes the fusion query and ingest endpoints.
type Router struct {
	cfg ServerConfig
}

func NewRouter(cfg ServerConfig) *Router {
	return &Router{cfg: cfg}
}

// Register mounts the fusion routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	limited := group.Group("", ingestLimiter(r.cfg.RateLimitPerSecond, r.cfg.RateLimitBurst))
	limited.POST("/signals/:source", r.handleIngestSignal)
	limited.POST("/results", r.handleIngestTradeResult)

	group.GET("/weights", r.handleWeights)
	group.GET("/weights/history", r.handleWeightHistory)
	group.GET("/stats", r.handleStats)
	group.GET("/states", r.handleStates)
	group.GET("/sources", r.handleSources)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/decisions/:trace_id", r.handleDecisionByTrace)
	group.GET("/audit", r.handleAuditRecent)
	group.GET("/audit/:trace_id", r.handleAuditByTrace)
}

func (r *Router) handleIngestSignal(c *gin.Context) {
	sourceName := strings.TrimSpace(c.Param("source"))
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := r.cfg.Ingest.IngestSignal(c.Request.Context(), sourceName, raw)
	if err != nil {
		logger.Warnf("[api] signal ingest rejected ip=%s source=%s err=%v", c.ClientIP(), sourceName, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] signal accepted ip=%s source=%s symbol=%s direction=%s conf=%.1f",
		c.ClientIP(), sourceName, sig.Symbol, sig.Direction, sig.Confidence)
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"symbol":    sig.Symbol,
		"source":    sig.Source,
		"direction": sig.Direction,
	})
}

func (r *Router) handleIngestTradeResult(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := r.cfg.Ingest.IngestTradeResult(c.Request.Context(), raw)
	if err != nil {
		logger.Warnf("[api] trade result rejected ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] trade result accepted ip=%s symbol=%s won=%v", c.ClientIP(), res.Symbol, res.Won)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "symbol": res.Symbol})
}

func (r *Router) handleWeights(c *gin.Context) {
	if r.cfg.Tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "performance tracker unavailable"})
		return
	}
	snap := r.cfg.Tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"weights":     snap.Weights,
		"version":     snap.Version,
		"computed_at": snap.ComputedAt,
	})
}

func (r *Router) handleWeightHistory(c *gin.Context) {
	if r.cfg.Tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "performance tracker unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": r.cfg.Tracker.WeightHistory()})
}

func (r *Router) handleStats(c *gin.Context) {
	if r.cfg.Tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "performance tracker unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": r.cfg.Tracker.Stats()})
}

func (r *Router) handleStates(c *gin.Context) {
	if r.cfg.Orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"states": r.cfg.Orch.States()})
}

func (r *Router) handleSources(c *gin.Context) {
	if r.cfg.Sources == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "source registry unavailable"})
		return
	}
	snap := r.cfg.Sources.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version": snap.Version,
		"sources": snap.Sources,
	})
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.cfg.Decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision archive unavailable"})
		return
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "0"))
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	query := gormstore.DecisionQuery{
		Symbol:     strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		FusionType: strings.TrimSpace(c.Query("fusion_type")),
		Limit:      pageSize,
		Offset:     offset,
	}
	decisions, err := r.cfg.Decisions.ListDecisions(c.Request.Context(), query)
	if err != nil {
		logger.Errorf("[api] decision list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
}

func (r *Router) handleDecisionByTrace(c *gin.Context) {
	if r.cfg.Decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision archive unavailable"})
		return
	}
	traceID := strings.TrimSpace(c.Param("trace_id"))
	if traceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trace_id required"})
		return
	}
	dec, found, err := r.cfg.Decisions.GetDecision(c.Request.Context(), traceID)
	if err != nil {
		logger.Errorf("[api] decision detail failed ip=%s trace=%s err=%v", c.ClientIP(), traceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": dec})
}

func (r *Router) handleAuditRecent(c *gin.Context) {
	if r.cfg.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log unavailable"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := r.cfg.Audit.Recent(c.Request.Context(), symbol, limit)
	if err != nil {
		logger.Errorf("[api] audit recent failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (r *Router) handleAuditByTrace(c *gin.Context) {
	if r.cfg.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log unavailable"})
		return
	}
	traceID := strings.TrimSpace(c.Param("trace_id"))
	if traceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trace_id required"})
		return
	}
	entries, err := r.cfg.Audit.ListByTrace(c.Request.Context(), traceID)
	if err != nil {
		logger.Errorf("[api] audit trace failed ip=%s trace=%s err=%v", c.ClientIP(), traceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trace_id": traceID, "entries": entries})
}
