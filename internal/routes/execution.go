package routes

import (
	"github.com/labstack/echo/v4"

	"mes-system/internal/controllers"
)

func runExecutionRouter(api *echo.Group, execCtrl *controllers.ExecutionController, qualityCtrl *controllers.QualityController) {
	api.POST("/scans", execCtrl.Scan)

	steps := api.Group("/ops/:id/steps/:stepId")
	steps.POST("/start", execCtrl.Start)
	steps.POST("/count", execCtrl.Count)
	steps.POST("/quality", qualityCtrl.Record)
	steps.POST("/complete", execCtrl.Complete)
}
