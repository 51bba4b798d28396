package model

import "time"

// Attribute is a key/value pair attached to an event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is emitted by a contract while handling a message.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// NewEvent builds an event from alternating key/value strings.
func NewEvent(typ string, kv ...string) Event {
	ev := Event{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Attributes = append(ev.Attributes, Attribute{Key: kv[i], Value: kv[i+1]})
	}
	return ev
}

// Attr returns the first value for key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// EventRecord is the journal representation of an event.
type EventRecord struct {
	Height     uint64            `json:"height"`
	Timestamp  uint64            `json:"timestamp"`
	TxIndex    uint64            `json:"tx_index"`
	EventIndex uint64            `json:"event_index"`
	Contract   string            `json:"contract"`
	EventName  string            `json:"event_name"`
	Attributes map[string]string `json:"attributes"`
	IngestedAt string            `json:"ingested_at"`
}

// Time returns the record timestamp as UTC time.
func (r EventRecord) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}
