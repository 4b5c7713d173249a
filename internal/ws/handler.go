package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vpp_simulator/internal/service"
	"vpp_simulator/internal/simulator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the part of the service the socket drives.
type Controller interface {
	Info() service.Info
	StartRun() error
	LimitComponent(id string, limit float64) error
	Replay() (*simulator.Player, error)
}

// Handler manages WebSocket connections and routes messages to the controller.
type Handler struct {
	hub  *Hub
	ctrl Controller
	log  *zap.Logger
}

func NewHandler(hub *Hub, ctrl Controller) *Handler {
	return &Handler{hub: hub, ctrl: ctrl, log: hub.log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn)

	h.hub.Register(client)
	go client.writePump()

	h.sendTo(client, TypeScenarioLoaded, h.ctrl.Info())
	h.sendTo(client, TypeSimState, SimStateFromRun(h.state()))

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if err := h.handleMessage(msg); err != nil {
			h.log.Debug("message rejected", zap.Error(err))
			h.sendTo(c, TypeError, ErrorPayload{Message: err.Error()})
		}
	}
}

var errUnknownType = errors.New("unknown message type")

func (h *Handler) handleMessage(msg []byte) error {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}

	switch env.Type {
	case TypeRunStart:
		return h.ctrl.StartRun()

	case TypeComponentLimit:
		var p LimitPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if err := h.ctrl.LimitComponent(p.ID, p.Limit); err != nil {
			return err
		}
		h.broadcast(TypeScenarioLoaded, h.ctrl.Info())
		return nil

	case TypeSimStart, TypeSimPause, TypeSimSetSpeed, TypeSimSeek:
		player, err := h.ctrl.Replay()
		if err != nil {
			return err
		}
		return h.control(player, env)

	default:
		return errUnknownType
	}
}

func (h *Handler) control(player *simulator.Player, env Envelope) error {
	switch env.Type {
	case TypeSimStart:
		player.Start()

	case TypeSimPause:
		player.Pause()

	case TypeSimSetSpeed:
		var p SetSpeedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		player.SetSpeed(p.Speed)

	case TypeSimSeek:
		var p SeekPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return err
		}
		player.Seek(t)
	}
	return nil
}

// state is the replay state, or an idle state over the scenario horizon when
// nothing has run yet.
func (h *Handler) state() simulator.State {
	if p, err := h.ctrl.Replay(); err == nil {
		return p.State()
	}
	info := h.ctrl.Info()
	return simulator.State{Time: info.Start, Steps: info.Steps, Speed: simulator.DefaultSpeed, Running: info.Running}
}

func (h *Handler) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Error("failed to marshal message", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) sendTo(c *Client, msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Error("failed to marshal message", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.hub.Send(c, msg)
}
