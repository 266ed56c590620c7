package services

import (
	"go.uber.org/zap"

	"mes-system/pkg/websocket"
)

// LiveFeedInterface - рассылка событий цеха на панели через WebSocket.
type LiveFeedInterface interface {
	Send(messageType, workcenterID string, payload interface{}) error
}

type LiveFeedService struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewLiveFeedService(hub *websocket.Hub, logger *zap.Logger) LiveFeedInterface {
	return &LiveFeedService{hub: hub, logger: logger}
}

func (s *LiveFeedService) Send(messageType, workcenterID string, payload interface{}) error {
	s.logger.Debug("Отправка события на панели",
		zap.String("type", messageType),
		zap.String("workcenter_id", workcenterID),
	)
	return s.hub.Broadcast(messageType, workcenterID, payload)
}
