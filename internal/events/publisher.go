package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const streamName = "POSTADEPO_EVENTS"

// Publisher emits account and sync events to NATS JetStream for downstream
// consumers (notifications, analytics). A nil *Publisher is valid and drops
// everything, so the rest of the server never checks whether eventing is
// enabled.
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the event stream exists.
// Returns (nil, nil) when url is empty: eventing is optional.
func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream() error {
	if info, err := p.js.StreamInfo(streamName); err == nil && info != nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{"user.*.>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// publish sends one JSON event, deduplicated by msgID within the stream's
// duplicate window.
func (p *Publisher) publish(subject string, event map[string]any, msgID string) error {
	if p == nil {
		return nil
	}
	event["ts"] = time.Now().Unix()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(subject, payload, nats.MsgId(msgID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// AccountConnected announces a newly connected (or re-authorized) account.
func (p *Publisher) AccountConnected(userID, accountID, externalEmail string) error {
	return p.publish(
		fmt.Sprintf("user.%s.account.connected", userID),
		map[string]any{
			"event":      "account.connected",
			"user_id":    userID,
			"account_id": accountID,
			"email":      externalEmail,
		},
		fmt.Sprintf("account.connected|%s", accountID),
	)
}

// MailSynced announces the outcome of a sync batch.
func (p *Publisher) MailSynced(userID, accountID, cursor string, synced, skipped, errored int) error {
	return p.publish(
		fmt.Sprintf("user.%s.mail.synced", userID),
		map[string]any{
			"event":      "mail.synced",
			"user_id":    userID,
			"account_id": accountID,
			"synced":     synced,
			"skipped":    skipped,
			"errors":     errored,
		},
		fmt.Sprintf("mail.synced|%s|%s", accountID, cursor),
	)
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
