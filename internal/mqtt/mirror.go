package mqtt

import (
	"context"
	"log"

	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// Mirror publishes state snapshots to the broker. It implements state.Sink:
// Push never blocks and only the newest unpublished snapshot is kept, so a
// slow or absent broker cannot stall the presence or detection loops.
type Mirror struct {
	pub     Publisher
	topics  Topics
	pending chan state.Snapshot

	// lastID is the newest detection already published. Only touched by
	// the Run goroutine.
	lastID string
}

// NewMirror creates a Mirror publishing through pub.
func NewMirror(pub Publisher, topics Topics) *Mirror {
	return &Mirror{
		pub:     pub,
		topics:  topics,
		pending: make(chan state.Snapshot, 1),
	}
}

// Push queues s for publication, replacing any older queued snapshot.
func (m *Mirror) Push(s state.Snapshot) {
	for {
		select {
		case m.pending <- s:
			return
		default:
		}
		select {
		case <-m.pending:
		default:
		}
	}
}

// Run publishes queued snapshots until ctx is cancelled, then flushes the
// last queued one.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			select {
			case s := <-m.pending:
				m.publish(s)
			default:
			}
			return nil
		case s := <-m.pending:
			m.publish(s)
		}
	}
}

// publish sends the retained state and any detections recorded since the
// previous publication. Failures are logged only.
func (m *Mirror) publish(s state.Snapshot) {
	err := m.pub.Publish(Message{
		Topic:    m.topics.State,
		Payload:  state.FormatStatusEvent(s, EventState, ""),
		QoS:      0,
		Retained: true,
	})
	if err != nil {
		log.Printf("mqtt: publish state failed: %v", err)
	}

	for _, r := range m.unpublished(s.History) {
		payload, err := FormatDetectionPayload(r)
		if err != nil {
			log.Printf("mqtt: format detection %s: %v", r.ID, err)
			continue
		}
		err = m.pub.Publish(Message{Topic: m.topics.Detections, Payload: payload, QoS: 1})
		if err != nil {
			log.Printf("mqtt: publish detection %s failed: %v", r.ID, err)
		}
		m.lastID = r.ID
	}
}

// unpublished returns the history entries newer than lastID. If lastID has
// been evicted (or nothing was published yet) every entry is newer.
func (m *Mirror) unpublished(history []logic.DetectionResult) []logic.DetectionResult {
	if m.lastID == "" {
		return history
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ID == m.lastID {
			return history[i+1:]
		}
	}
	return history
}

// PublishSystem publishes a lifecycle event with a full status payload.
// STARTUP is retained so late subscribers see when the agent came up.
func (m *Mirror) PublishSystem(event, reason string, s state.Snapshot) error {
	return m.pub.Publish(Message{
		Topic:    m.topics.System,
		Payload:  state.FormatStatusEvent(s, event, reason),
		QoS:      1,
		Retained: event == EventStartup,
	})
}
