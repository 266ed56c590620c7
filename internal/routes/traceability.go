package routes

import (
	"github.com/labstack/echo/v4"

	"mes-system/internal/controllers"
)

func runTraceabilityRouter(api *echo.Group, ctrl *controllers.TraceabilityController) {
	api.GET("/ops/:id/trace", ctrl.OrderHistory)
	api.GET("/lots/:id/trace", ctrl.LotHistory)
	api.GET("/events", ctrl.Events)
}
