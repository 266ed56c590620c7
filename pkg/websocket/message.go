package websocket

import "time"

// Envelope - конверт сообщения. По Type фронтенд понимает, что пришло.
type Envelope struct {
	Type         string      `json:"type"`
	WorkcenterID string      `json:"workcenter_id,omitempty"`
	Payload      interface{} `json:"payload"`
	Timestamp    time.Time   `json:"timestamp"`
}

// outbound - сериализованное сообщение и адресат.
type outbound struct {
	workcenterID string
	data         []byte
}
