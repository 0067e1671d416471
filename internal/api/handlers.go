package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/risk"
)

// fail writes the uniform error payload: machine-readable code plus a human
// message.
func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}

// controlError maps control-plane rejections onto HTTP statuses.
func controlError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, risk.ErrBadPhrase):
		fail(c, http.StatusBadRequest, "bad_phrase", err.Error())
	case errors.Is(err, risk.ErrLiveDisabled):
		fail(c, http.StatusForbidden, "live_disabled", err.Error())
	case errors.Is(err, risk.ErrNetworkMismatch):
		fail(c, http.StatusBadRequest, "network_mismatch", err.Error())
	case errors.Is(err, risk.ErrNoCredentials):
		fail(c, http.StatusBadRequest, "no_credentials", err.Error())
	case errors.Is(err, risk.ErrKillActive):
		fail(c, http.StatusForbidden, "kill_active", err.Error())
	case errors.Is(err, risk.ErrNotArmed):
		fail(c, http.StatusConflict, "not_armed", err.Error())
	default:
		fail(c, http.StatusInternalServerError, "internal", err.Error())
	}
}

// wallet resolves the target wallet: explicit value first, then the token
// claim.
func (s *Server) wallet(c *gin.Context, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	if w := c.Query("wallet"); w != "" {
		return w, true
	}
	if w := authedWallet(c); w != "" {
		return w, true
	}
	fail(c, http.StatusBadRequest, "missing_wallet", "wallet is required")
	return "", false
}

type armRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
	Mode         string `json:"mode" binding:"required,oneof=testnet mainnet"`
	Wallet       string `json:"wallet"`
}

func (s *Server) handleArm(c *gin.Context) {
	var req armRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}

	settings, err := s.bot.Settings(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := s.bot.Arm(wallet, req.Confirmation, settings.Mode, req.Mode, wallet); err != nil {
		controlError(c, err)
		return
	}

	status, err := s.bot.Status(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"armed": true, "control": status.Control})
}

type walletRequest struct {
	Wallet string `json:"wallet"`
}

func (s *Server) handleDisarm(c *gin.Context) {
	var req walletRequest
	_ = c.ShouldBindJSON(&req)
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.Disarm(wallet); err != nil {
		controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"armed": false})
}

type killRequest struct {
	Reason string `json:"reason" binding:"required"`
	Wallet string `json:"wallet"`
}

func (s *Server) handleKill(c *gin.Context) {
	var req killRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.Kill(c.Request.Context(), wallet, req.Reason); err != nil {
		controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kill_switch": "active", "reason": req.Reason})
}

type resetKillRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
	Wallet       string `json:"wallet"`
}

func (s *Server) handleResetKill(c *gin.Context) {
	var req resetKillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.ResetKill(wallet, req.Confirmation); err != nil {
		controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kill_switch": "reset"})
}

func (s *Server) handleStart(c *gin.Context) {
	var req walletRequest
	_ = c.ShouldBindJSON(&req)
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.StartTrading(c.Request.Context(), wallet); err != nil {
		controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	var req walletRequest
	_ = c.ShouldBindJSON(&req)
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.StopTrading(wallet); err != nil {
		controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false})
}

type registerAgentRequest struct {
	MasterAddress   string `json:"masterAddress" binding:"required"`
	AgentAddress    string `json:"agentAddress" binding:"required"`
	AgentPrivateKey string `json:"agentPrivateKey" binding:"required"`
	AgentName       string `json:"agentName"`
}

func (s *Server) handleRegisterAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	err := s.bot.RegisterAgent(req.MasterAddress, hyperliquid.AgentCredentials{
		UserWallet:   req.MasterAddress,
		AgentAddress: req.AgentAddress,
		AgentKey:     req.AgentPrivateKey,
		AgentName:    req.AgentName,
		ApprovedAt:   time.Now(),
	})
	if err != nil {
		fail(c, http.StatusBadRequest, "agent_rejected", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": true, "agent_address": req.AgentAddress})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	settings, err := s.bot.Settings(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, settings)
}

type settingsRequest struct {
	Wallet string `json:"wallet"`
	autopilot.Settings
}

func (s *Server) handleSetSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.UpdateSettings(wallet, req.Settings); err != nil {
		fail(c, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	status, err := s.bot.Status(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleBotStatus(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	status, err := s.bot.Status(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, status.Engine)
}

func (s *Server) handleDebug(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	status, err := s.bot.Status(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"control":        status.Control,
		"engine":         status.Engine,
		"connection":     status.Connection,
		"network":        status.Network,
		"cached_symbols": s.bot.Markets().Cache().Symbols(),
	})
}

func (s *Server) handleGrokUsage(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	settings, err := s.bot.Settings(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.bot.Gate().Usage(settings.Mode))
}

func (s *Server) handleTradeHistory(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)

	trades, err := s.bot.TradeHistory(wallet, since, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleStats(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	status, err := s.bot.Status(wallet)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, status.Engine.Stats)
}

func (s *Server) handlePerformance(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	summary, err := s.bot.Performance(wallet, since)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	entries, err := s.bot.Leaderboard(c.DefaultQuery("sortBy", "pnl"), 0)
	if err != nil {
		fail(c, http.StatusBadRequest, "bad_sort_key", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (s *Server) handleCloseAll(c *gin.Context) {
	var req walletRequest
	_ = c.ShouldBindJSON(&req)
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.CloseAll(c.Request.Context(), wallet); err != nil {
		fail(c, http.StatusBadGateway, "venue_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

type cancelAllRequest struct {
	Wallet string `json:"wallet"`
	Coin   string `json:"coin"`
}

func (s *Server) handleCancelAllOrders(c *gin.Context) {
	var req cancelAllRequest
	_ = c.ShouldBindJSON(&req)
	wallet, ok := s.wallet(c, req.Wallet)
	if !ok {
		return
	}
	if err := s.bot.CancelAllOrders(c.Request.Context(), wallet, req.Coin); err != nil {
		fail(c, http.StatusBadGateway, "venue_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleOpenOrders(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	orders, err := s.bot.OpenOrders(c.Request.Context(), wallet)
	if err != nil {
		fail(c, http.StatusBadGateway, "venue_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handlePositions(c *gin.Context) {
	wallet, ok := s.wallet(c, "")
	if !ok {
		return
	}
	positions, err := s.bot.Positions(c.Request.Context(), wallet)
	if err != nil {
		fail(c, http.StatusBadGateway, "venue_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}
