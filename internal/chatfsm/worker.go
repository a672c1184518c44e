package chatfsm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revitek/scheduling-engine/internal/chatwire"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// Worker consumes normalized inbound chat messages off the bus and feeds
// them to the session machine. The webhook handler stays a thin
// republisher; conversation work happens here, off the HTTP path.
type Worker struct {
	machine *Machine
	logger  *logger.Logger
}

// NewWorker creates a chat worker.
func NewWorker(machine *Machine, logger *logger.Logger) *Worker {
	return &Worker{machine: machine, logger: logger}
}

// Start subscribes the worker to the inbound chat subject.
func (w *Worker) Start(subscriber *events.Subscriber) error {
	err := subscriber.Subscribe(events.ChatInboundEvent, func(data []byte) error {
		var inbound chatwire.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			return fmt.Errorf("decoding inbound chat message: %w", err)
		}
		return w.machine.HandleMessage(context.Background(), inbound.Phone, inbound.Body)
	})
	if err != nil {
		return fmt.Errorf("subscribing chat worker: %w", err)
	}
	w.logger.Info("Chat worker subscribed", "subject", events.ChatInboundEvent)
	return nil
}
