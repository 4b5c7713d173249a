// Package messaging publishes run events to NATS.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vpp_simulator/internal/simulator"
)

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// Connect opens a NATS connection with reconnect handling.
func Connect(cfg Config, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 60
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher implements simulator.Callback. Events go to
// <prefix>.state, <prefix>.step and <prefix>.summary.
type Publisher struct {
	conn   Conn
	prefix string
	log    *zap.Logger
}

func NewPublisher(conn Conn, prefix string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "vpp"
	}
	return &Publisher{conn: conn, prefix: prefix, log: log}
}

func (p *Publisher) Subject(kind string) string { return p.prefix + "." + kind }

func (p *Publisher) publish(kind string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("failed to marshal event", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := p.conn.Publish(p.Subject(kind), payload); err != nil {
		p.log.Warn("publish failed", zap.String("subject", p.Subject(kind)), zap.Error(err))
	}
}

func (p *Publisher) OnState(s simulator.State)     { p.publish("state", s) }
func (p *Publisher) OnStep(s simulator.StepResult) { p.publish("step", s) }
func (p *Publisher) OnSummary(s simulator.Summary) { p.publish("summary", s) }
