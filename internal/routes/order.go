package routes

import (
	"github.com/labstack/echo/v4"

	"mes-system/internal/controllers"
)

func runOrderRouter(api *echo.Group, orderCtrl *controllers.OrderController) {
	api.POST("/ops/import", orderCtrl.Import)
	api.POST("/ops/import/xlsx", orderCtrl.ImportXLSX)
	api.GET("/ops", orderCtrl.Search)
	api.GET("/ops/:id", orderCtrl.Find)
	api.POST("/ops/:id/recalculate", orderCtrl.Recalculate)

	api.PUT("/workcenters/:id/enabled", orderCtrl.SetWorkcenterEnabled)
}

func runQualityRouter(api *echo.Group, qualityCtrl *controllers.QualityController) {
	api.GET("/quality/summary", qualityCtrl.Summary)
	api.GET("/quality/orders/:id", qualityCtrl.ListByOrder)
}
