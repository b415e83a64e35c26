package services

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"shiftclock/internal/config"
	"shiftclock/internal/store"

	"github.com/sirupsen/logrus"
)

// EventChannel is the store channel attendance events are published on.
const EventChannel = "attendance:events"

// Event is one fire-and-forget notification/audit record.
type Event struct {
	Type      string         `json:"type"`
	UserID    uint           `json:"user_id"`
	OrgID     uint           `json:"org_id"`
	SessionID string         `json:"session_id,omitempty"`
	Date      string         `json:"date,omitempty"`
	Message   string         `json:"message,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// EventDispatcher delivers attendance events to the store channel through a
// bounded queue. Enqueue never blocks the punch path: when the queue is full
// the event is dropped and counted, never retried.
type EventDispatcher struct {
	settingsManager *config.SystemSettingsManager
	store           store.Store
	queue           chan Event
	dropped         atomic.Int64
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

func NewEventDispatcher(settingsManager *config.SystemSettingsManager, st store.Store) *EventDispatcher {
	size := settingsManager.GetSettings().EventQueueSize
	if size <= 0 {
		size = 256
	}
	return &EventDispatcher{
		settingsManager: settingsManager,
		store:           st,
		queue:           make(chan Event, size),
		stopCh:          make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *EventDispatcher) Start() {
	d.wg.Add(1)
	go d.run()
	logrus.Debug("Event dispatcher started")
}

// Stop drains nothing: undelivered events are best-effort by contract.
func (d *EventDispatcher) Stop(ctx context.Context) {
	close(d.stopCh)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("EventDispatcher stopped gracefully.")
	case <-ctx.Done():
		logrus.Warn("EventDispatcher stop timed out.")
	}
}

// Emit enqueues an event without blocking.
func (d *EventDispatcher) Emit(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case d.queue <- event:
	default:
		n := d.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"type":    event.Type,
			"dropped": n,
		}).Warn("Event queue full, dropping event")
	}
}

// DroppedCount returns how many events were discarded due to backpressure.
func (d *EventDispatcher) DroppedCount() int64 {
	return d.dropped.Load()
}

func (d *EventDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stopCh:
			return
		}
	}
}

func (d *EventDispatcher) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Warn("Failed to marshal attendance event")
		return
	}
	if err := d.store.Publish(EventChannel, payload); err != nil {
		logrus.WithError(err).WithField("type", event.Type).
			Warn("Failed to publish attendance event")
	}
}
