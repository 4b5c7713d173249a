package ws

import (
	"go.uber.org/zap"

	"vpp_simulator/internal/simulator"
)

// Bridge implements simulator.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) OnState(s simulator.State) {
	b.broadcast(TypeSimState, SimStateFromRun(s))
}

func (b *Bridge) OnStep(r simulator.StepResult) {
	b.broadcast(TypeStepUpdate, StepFromRun(r))
}

func (b *Bridge) OnSummary(s simulator.Summary) {
	b.broadcast(TypeSummaryUpdate, SummaryFromRun(s))
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		b.hub.log.Error("failed to marshal message", zap.String("type", msgType), zap.Error(err))
		return
	}
	b.hub.Broadcast(msg)
}
