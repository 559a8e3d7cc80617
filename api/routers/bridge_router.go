package bridge_routers

import (
	"github.com/gin-gonic/gin"

	bridgeApi "github.com/voxbridgeai/api/bridge-api/api"
	"github.com/voxbridgeai/config"
	"github.com/voxbridgeai/pkg/commons"
)

func BridgeApiRoute(
	Cfg *config.AppConfig,
	Engine *gin.Engine,
	Logger commons.Logger,
	Api *bridgeApi.BridgeApi,
) {
	Engine.GET("/healthz", Api.Health)
	Engine.GET("/readyz", Api.Readiness)

	v1 := Engine.Group("/v1")
	{
		v1.GET("/gateway", Api.Gateway)
		v1.GET("/sessions", Api.Sessions)
	}
}
