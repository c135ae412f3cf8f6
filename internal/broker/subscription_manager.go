package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	masterdata "hydromet-cloud/internal/masterdata/domain"
	"hydromet-cloud/internal/observability/metrics"
)

// topicClient is the slice of the paho client the manager needs.
type topicClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// SubscriptionManager reconciles this broker's subscribed topics against the
// roster of operational stations. The tracked set is owned by the manager
// and mutated only inside Reconcile, which Run serializes; other goroutines
// only read snapshots.
type SubscriptionManager struct {
	client      topicClient
	reconnected <-chan struct{}
	stations    masterdata.StationRepository
	handler     mqtt.MessageHandler
	template    string
	interval    time.Duration
	qos         byte
	logger      *slog.Logger

	mu         sync.RWMutex
	subscribed map[string]bool
}

// NewSubscriptionManager constructs a manager for one connection.
func NewSubscriptionManager(
	conn *Connection,
	stations masterdata.StationRepository,
	handler mqtt.MessageHandler,
	cfg Config,
	logger *slog.Logger,
) (*SubscriptionManager, error) {
	if conn == nil {
		return nil, errors.New("subscription manager: nil connection")
	}
	if stations == nil {
		return nil, errors.New("subscription manager: nil station repository")
	}
	if handler == nil {
		return nil, errors.New("subscription manager: nil message handler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SubscriptionManager{
		client:      conn.client,
		reconnected: conn.reconnected,
		stations:    stations,
		handler:     handler,
		template:    cfg.TopicTemplate,
		interval:    interval,
		qos:         cfg.QoS,
		logger:      logger,
		subscribed:  make(map[string]bool),
	}, nil
}

// Run drives reconciliation until the context is cancelled: once right
// away, again whenever the connection (re)establishes, and on every
// interval tick. Reconciliation failures are logged and retried on the next
// trigger, never fatal.
func (m *SubscriptionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.reconcileLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reconnected:
			m.reconcileLogged(ctx)
		case <-ticker.C:
			m.reconcileLogged(ctx)
		}
	}
}

func (m *SubscriptionManager) reconcileLogged(ctx context.Context) {
	if err := m.Reconcile(ctx); err != nil {
		metrics.ObserveReconcile(metrics.ResultError, len(m.Subscribed()))
		m.logger.Error("subscription reconcile failed", "error", err)
	}
}

// Reconcile fetches the roster, computes the symmetric difference against
// the tracked set, subscribes to added topics and unsubscribes from removed
// ones. A failed subscribe or unsubscribe leaves that topic's tracked state
// unchanged so the next pass retries it.
func (m *SubscriptionManager) Reconcile(ctx context.Context) error {
	roster, err := m.stations.ListOperative(ctx)
	if err != nil {
		return fmt.Errorf("subscription reconcile: roster: %w", err)
	}

	desired := make(map[string]bool, len(roster))
	for _, station := range roster {
		desired[TopicForDevice(m.template, station.DeviceID)] = true
	}

	current := m.Subscribed()

	for topic := range desired {
		if current[topic] {
			continue
		}
		token := m.client.Subscribe(topic, m.qos, m.handler)
		if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
			m.logger.Warn("subscribe failed", "topic", topic, "error", token.Error())
			continue
		}
		m.track(topic, true)
		m.logger.Info("subscribed", "topic", topic)
	}

	for topic := range current {
		if desired[topic] {
			continue
		}
		token := m.client.Unsubscribe(topic)
		if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
			m.logger.Warn("unsubscribe failed", "topic", topic, "error", token.Error())
			continue
		}
		m.track(topic, false)
		m.logger.Info("unsubscribed", "topic", topic)
	}

	metrics.ObserveReconcile(metrics.ResultSuccess, len(m.Subscribed()))
	return nil
}

// Subscribed returns a snapshot of the tracked topic set.
func (m *SubscriptionManager) Subscribed() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]bool, len(m.subscribed))
	for topic := range m.subscribed {
		snapshot[topic] = true
	}
	return snapshot
}

func (m *SubscriptionManager) track(topic string, subscribed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subscribed {
		m.subscribed[topic] = true
	} else {
		delete(m.subscribed, topic)
	}
}
