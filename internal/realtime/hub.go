package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/logger"
	"github.com/jwalitptl/careflow-api/pkg/messaging"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

// Hub relays change notices from the broker to live view subscribers.
type Hub struct {
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	collections map[string]struct{}
	ch          chan model.ChangeNotice
}

func (s *subscriber) wants(collection string) bool {
	if len(s.collections) == 0 {
		return true
	}
	_, ok := s.collections[collection]
	return ok
}

func NewHub(broker messaging.Broker, channel string, log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		broker:  broker,
		channel: channel,
		logger:  log,
		metrics: m,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Run consumes the broker channel until ctx is done or the broker closes it.
func (h *Hub) Run(ctx context.Context) error {
	messages, err := h.broker.Subscribe(ctx, h.channel)
	if err != nil {
		return err
	}
	h.logger.Info("Realtime hub started", "channel", h.channel)
	for msg := range messages {
		var notice model.ChangeNotice
		if err := json.Unmarshal(msg, &notice); err != nil {
			h.logger.Warn("Dropping malformed change notice", "error", err.Error())
			continue
		}
		h.Broadcast(notice)
	}
	h.logger.Info("Realtime hub stopped", "channel", h.channel)
	return nil
}

// Broadcast hands notice to every interested subscriber without blocking.
// A subscriber with a notice already pending keeps that one.
func (h *Hub) Broadcast(notice model.ChangeNotice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(notice.Collection) {
			continue
		}
		select {
		case s.ch <- notice:
		default:
		}
	}
}

// Subscribe registers interest in the given collections (all when none are
// named). The returned channel is closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context, collections ...string) <-chan model.ChangeNotice {
	s := &subscriber{
		collections: make(map[string]struct{}, len(collections)),
		ch:          make(chan model.ChangeNotice, 1),
	}
	for _, c := range collections {
		s.collections[c] = struct{}{}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.metrics.LiveSubscribers.Inc()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, s)
		close(s.ch)
		h.mu.Unlock()
		h.metrics.LiveSubscribers.Dec()
	}()
	return s.ch
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
