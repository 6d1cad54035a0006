package mqtt

import "log"

// outbox queues messages while the broker is unreachable, oldest first.
// A retained message supersedes any queued retained message on the same
// topic, since the broker only keeps the last one. Once full, the oldest
// message is dropped. The caller must synchronize.
type outbox struct {
	msgs    []Message
	limit   int
	dropped int // since the last take
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{msgs: make([]Message, 0, limit), limit: limit}
}

func (o *outbox) add(msg Message) {
	if msg.Retained {
		for i, m := range o.msgs {
			if m.Retained && m.Topic == msg.Topic {
				o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
				break
			}
		}
	}
	if len(o.msgs) == o.limit {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.limit)
		}
		o.dropped++
		n := copy(o.msgs, o.msgs[1:])
		o.msgs = o.msgs[:n]
	}
	o.msgs = append(o.msgs, msg)
}

// take empties the outbox and returns what it held, or nil.
func (o *outbox) take() []Message {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while offline", o.dropped)
		o.dropped = 0
	}
	out := o.msgs
	o.msgs = make([]Message, 0, o.limit)
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
