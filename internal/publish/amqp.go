package publish

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/dripsend-backend/internal/metrics"
)

const Exchange = "campaign.events"

// Notification is the payload for operator-facing events.
type Notification struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Scope string `json:"scope"`
}

// AMQPPublisher publishes JSON events to a topic exchange. Routing keys:
// campaign.progress.<id> and notification.<kind>. Every failure is logged
// and swallowed.
type AMQPPublisher struct {
	url     string
	metrics metrics.Sink

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string, sink metrics.Sink) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, metrics: sink}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) PublishProgress(campaignID string, snap Snapshot) {
	p.publish("campaign.progress."+campaignID, snap)
}

func (p *AMQPPublisher) PublishNotification(kind, title, body, scope string) {
	p.publish("notification."+kind, Notification{Kind: kind, Title: title, Body: body, Scope: scope})
}

func (p *AMQPPublisher) publish(key string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("publish: marshal %s: %v", key, err)
		p.metrics.PublishError()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pub := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}
	if err := p.ch.Publish(Exchange, key, false, false, pub); err != nil {
		// One reconnect attempt, then give up until the next publish.
		log.Printf("publish: %s failed: %v, reconnecting", key, err)
		if rerr := p.connect(); rerr != nil {
			log.Printf("publish: reconnect failed: %v", rerr)
			p.metrics.PublishError()
			return
		}
		if err := p.ch.Publish(Exchange, key, false, false, pub); err != nil {
			log.Printf("publish: %s failed after reconnect: %v", key, err)
			p.metrics.PublishError()
		}
	}
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

var _ Publisher = (*AMQPPublisher)(nil)
