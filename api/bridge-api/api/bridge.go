// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package bridge_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_callmanager "github.com/voxbridgeai/api/bridge-api/internal/callmanager"
	internal_gateway "github.com/voxbridgeai/api/bridge-api/internal/gateway"
	internal_session "github.com/voxbridgeai/api/bridge-api/internal/session"
	"github.com/voxbridgeai/config"
	"github.com/voxbridgeai/pkg/commons"
)

// BridgeApi is the HTTP surface of the bridge: the gateway websocket
// endpoint plus health and observability routes.
type BridgeApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	handler  *internal_gateway.Handler
	pool     *internal_session.Pool
	manager  *internal_callmanager.Manager
	upgrader websocket.Upgrader
}

func NewBridgeApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	handler *internal_gateway.Handler,
	pool *internal_session.Pool,
	manager *internal_callmanager.Manager,
) *BridgeApi {
	return &BridgeApi{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		pool:    pool,
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Gateways authenticate by device id; there is no browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Gateway upgrades the connection and hands it to the per-connection actor.
// The socket is identified by the gateway_id query parameter.
func (a *BridgeApi) Gateway(c *gin.Context) {
	gatewayID := c.Query("gateway_id")
	if gatewayID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "gateway_id is required"})
		return
	}

	ws, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warnw("websocket upgrade failed", "gateway_id", gatewayID, "error", err.Error())
		return
	}
	defer ws.Close()

	a.handler.Serve(c.Request.Context(), ws, gatewayID)
}

// Sessions reports the live pool snapshot.
func (a *BridgeApi) Sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"capacity":  a.pool.Capacity(),
		"active":    a.pool.Active(),
		"remaining": a.pool.Remaining(),
		"calls":     a.manager.Active(),
		"sessions":  a.pool.Snapshot(),
	})
}

// Health is the liveness probe.
func (a *BridgeApi) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": a.cfg.Name,
		"version": a.cfg.Version,
	})
}

// Readiness fails once the pool is saturated so load balancers steer new
// gateways elsewhere.
func (a *BridgeApi) Readiness(c *gin.Context) {
	if a.pool.Remaining() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "saturated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
