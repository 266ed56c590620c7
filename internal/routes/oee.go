package routes

import (
	"github.com/labstack/echo/v4"

	"mes-system/internal/controllers"
)

func runOEERouter(api *echo.Group, ctrl *controllers.OEEController) {
	kpis := api.Group("/kpis/oee")
	kpis.GET("", ctrl.Calculate)
	kpis.GET("/range", ctrl.CalculateRange)
	kpis.POST("/snapshots", ctrl.StoreSnapshot)
	kpis.GET("/history", ctrl.History)
	kpis.GET("/export", ctrl.Export)

	reliability := api.Group("/kpis")
	reliability.GET("/mttr", ctrl.MTTR)
	reliability.GET("/mtbf", ctrl.MTBF)
}
