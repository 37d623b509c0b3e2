package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Subscriber represents a client subscribed to progress events.
type Subscriber struct {
	ID     string
	Filter *Filter
	Events chan *Event
}

// terminalSendTimeout bounds how long Publish waits on a full subscriber
// buffer for a terminal event before giving up on that subscriber.
const terminalSendTimeout = time.Second

// Service fans job events out to SSE subscribers. Progress publishes never
// block on slow consumers; a subscriber whose buffer is full misses those.
// Terminal events wait briefly for a buffer slot so a subscriber that is
// merely slow, not stuck, still learns how the job ended.
type Service struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewService creates a new progress broadcast service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		subscribers: make(map[string]*Subscriber),
		logger:      logger.With("component", "progress_service"),
	}
}

// Subscribe creates a new subscriber for progress events.
func (s *Service) Subscribe(filter *Filter) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Filter: filter,
		Events: make(chan *Event, 100),
	}
	s.subscribers[sub.ID] = sub

	s.logger.Debug("subscriber added", "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes a subscriber and closes its event channel.
func (s *Service) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(s.subscribers, subscriberID)
		s.logger.Debug("subscriber removed", "subscriber_id", subscriberID)
	}
}

// SubscriberCount returns the number of connected subscribers.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Publish sends the event to all matching subscribers.
func (s *Service) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscribers {
		if !sub.Filter.Matches(event) {
			continue
		}
		if event.IsTerminal() {
			// Unsubscribe takes the write lock, so the channel cannot be
			// closed underneath this send.
			select {
			case sub.Events <- event:
			case <-time.After(terminalSendTimeout):
				s.logger.Warn("subscriber stuck, dropping terminal event",
					"subscriber_id", sub.ID,
					"job_id", event.JobID,
					"event_type", event.EventType,
				)
			}
			continue
		}
		select {
		case sub.Events <- event:
		default:
			s.logger.Warn("subscriber event channel full, dropping event",
				"subscriber_id", sub.ID,
				"job_id", event.JobID,
				"event_type", event.EventType,
			)
		}
	}
}
