// Package eventbus publishes match outcomes to NATS for other services.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wfunc/bombarena/config"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/models"
)

// MatchOverEvent is the message body on the match-over subject.
type MatchOverEvent struct {
	Type  string              `json:"type"`
	Match *models.MatchRecord `json:"match"`
}

const TypeMatchOver = "match.over"

type Publisher struct {
	conn    *nats.Conn
	subject string
}

func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("bombarena"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

func Encode(rec *models.MatchRecord) ([]byte, error) {
	return json.Marshal(MatchOverEvent{Type: TypeMatchOver, Match: rec})
}

func (p *Publisher) PublishMatchOver(rec *models.MatchRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

// Subscribe delivers decoded match-over events; used by tooling and tests.
func (p *Publisher) Subscribe(handler func(MatchOverEvent)) (*nats.Subscription, error) {
	return p.conn.Subscribe(p.subject, func(msg *nats.Msg) {
		var evt MatchOverEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Log.Warnw("bad match-over message", "error", err)
			return
		}
		handler(evt)
	})
}

func (p *Publisher) Close() {
	p.conn.Drain()
}
