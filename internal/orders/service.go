package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher sends order events to a queue. *aws.Publisher implements it.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, orderID, body string, attributes map[string]string) error
}

// Order event types published after successful writes.
const (
	EventCreated       = "ORDER_CREATED"
	EventItemsReplaced = "ORDER_ITEMS_REPLACED"
	EventStatusChanged = "ORDER_STATUS_CHANGED"
)

// Event is the notification payload.
type Event struct {
	Type    string    `json:"type"`
	OrderID string    `json:"orderId"`
	Status  Status    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// Service is the order write path.
type Service struct {
	store     *Store
	publisher EventPublisher
	log       *zap.Logger
	newID     func() string
	nowFunc   func() time.Time
}

// NewService wires the write path. A nil publisher disables notifications.
func NewService(store *Store, publisher EventPublisher, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		log:       log,
		newID:     uuid.NewString,
		nowFunc:   time.Now,
	}
}

// Create stores a new order in WAITING_ON_CUSTOMER and returns its id.
func (s *Service) Create(ctx context.Context, creator string, items []Pizza) (string, error) {
	o := Order{
		ID:        s.newID(),
		CreatedAt: s.nowFunc().UTC(),
		Status:    StatusWaitingOnCustomer,
		Creator:   creator,
		NumItems:  len(items),
		Items:     items,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	s.notify(ctx, EventCreated, o.ID, o.Status)
	return o.ID, nil
}

// ReplaceItems replaces the item list of an order owned by caller.
// Missing, foreign and non-editable orders all yield ErrForbidden.
func (s *Service) ReplaceItems(ctx context.Context, orderID, caller string, items []Pizza) error {
	if err := s.store.ReplaceItems(ctx, orderID, caller, items); err != nil {
		if errors.Is(err, ErrForbidden) {
			return err
		}
		return fmt.Errorf("replace items: %w", err)
	}
	s.notify(ctx, EventItemsReplaced, orderID, "")
	return nil
}

// Submit is the customer status change. SUBMITTED is the only accepted target.
func (s *Service) Submit(ctx context.Context, orderID, caller, rawStatus string) error {
	meta, err := s.store.GetMetadata(ctx, orderID)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	if meta == nil {
		return ErrNotFound
	}
	if meta.Creator != caller {
		return ErrForbidden
	}

	target, ok := ParseStatus(rawStatus)
	if !ok || target != StatusSubmitted {
		return fmt.Errorf("%w: status %q cannot be set by the customer", ErrConflict, rawStatus)
	}
	if meta.Status == target {
		return nil
	}
	if meta.NumItems == 0 {
		return ErrNoItems
	}
	if !meta.Status.Editable() {
		return fmt.Errorf("%w: order is %s", ErrConflict, meta.Status)
	}

	return s.setStatus(ctx, orderID, meta.Status, target)
}

// Transition is the operator status change, validated against the state machine.
func (s *Service) Transition(ctx context.Context, orderID, rawStatus string) error {
	meta, err := s.store.GetMetadata(ctx, orderID)
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	if meta == nil {
		return ErrNotFound
	}

	target, ok := ParseStatus(rawStatus)
	if !ok || !CanTransition(meta.Status, target) {
		return fmt.Errorf("%w: %s -> %q", ErrConflict, meta.Status, rawStatus)
	}
	if meta.Status == target {
		return nil
	}
	if target == StatusSubmitted && meta.NumItems == 0 {
		return ErrNoItems
	}

	return s.setStatus(ctx, orderID, meta.Status, target)
}

// Delete removes an order and its items (load-test cleanup).
func (s *Service) Delete(ctx context.Context, orderID string) error {
	if err := s.store.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, orderID string, from, to Status) error {
	err := s.store.UpdateStatus(ctx, orderID, from, to)
	if errors.Is(err, ErrStatusMismatch) {
		return fmt.Errorf("%w: order changed concurrently", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	s.notify(ctx, EventStatusChanged, orderID, to)
	return nil
}

// notify is best effort; a failed publish never fails the write.
func (s *Service) notify(ctx context.Context, eventType, orderID string, status Status) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(Event{Type: eventType, OrderID: orderID, Status: status, At: s.nowFunc().UTC()})
	if err != nil {
		s.log.Warn("marshal order event", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	attrs := map[string]string{
		"order_id":   orderID,
		"event_type": eventType,
	}
	if err := s.publisher.PublishOrderEvent(ctx, orderID, string(body), attrs); err != nil {
		s.log.Warn("publish order event", zap.String("order_id", orderID), zap.String("event", eventType), zap.Error(err))
	}
}
