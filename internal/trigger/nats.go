// Package trigger lets other services fire notifications over NATS. A
// message on "<prefix>.<notifier id>" broadcasts through that notifier; the
// message body is its payload.
//
// Subscribers join a queue group so that, with several replicas running,
// each trigger is broadcast once.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultQueue is the queue group shared by all replicas.
const DefaultQueue = "chatdispatch"

// NotifyService is the broadcast entry point of the engine.
type NotifyService interface {
	Notify(ctx context.Context, notifierID string, payload any) error
}

// Config configures the NATS connection.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Connect dials NATS with unlimited reconnects.
func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("nats reconnected")
		}),
	)
}

// queueSubscriber is satisfied by *nats.Conn.
type queueSubscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Subscriber routes NATS messages to NotifyService.
type Subscriber struct {
	Service NotifyService
	Prefix  string
	Queue   string
	// Timeout bounds one broadcast. Zero means no bound.
	Timeout time.Duration

	sub *nats.Subscription
	wg  sync.WaitGroup
}

// Subject returns the wildcard subject the subscriber listens on.
func (s *Subscriber) Subject() string {
	return strings.Trim(s.Prefix, ".") + ".>"
}

// Start subscribes on conn. Messages are handled on the connection's
// delivery goroutine, one at a time.
func (s *Subscriber) Start(conn queueSubscriber) error {
	q := s.Queue
	if q == "" {
		q = DefaultQueue
	}
	sub, err := conn.QueueSubscribe(s.Subject(), q, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	log.Info().Str("subject", s.Subject()).Str("queue", q).Msg("notify trigger subscribed")
	return nil
}

// Stop drains the subscription and waits for an in-flight broadcast.
func (s *Subscriber) Stop() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Subscriber) handle(m *nats.Msg) {
	s.wg.Add(1)
	defer s.wg.Done()

	id, ok := s.notifierID(m.Subject)
	if !ok {
		log.Warn().Str("subject", m.Subject).Msg("notify trigger without notifier id")
		return
	}
	payload := DecodePayload(m.Data)

	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	err := s.Service.Notify(ctx, id, payload)
	if err != nil {
		log.Error().Err(err).Str("notifier", id).Msg("notify trigger failed")
	}
	if m.Reply != "" {
		reply := "ok"
		if err != nil {
			reply = "error: " + err.Error()
		}
		_ = m.Respond([]byte(reply))
	}
}

// notifierID strips the prefix from subject. The remainder is the id and
// may itself contain dots.
func (s *Subscriber) notifierID(subject string) (string, bool) {
	prefix := strings.Trim(s.Prefix, ".") + "."
	if !strings.HasPrefix(subject, prefix) {
		return "", false
	}
	id := strings.TrimSpace(subject[len(prefix):])
	return id, id != ""
}

// DecodePayload returns the JSON value of data, the raw string when data is
// not JSON, or nil when data is empty.
func DecodePayload(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}
