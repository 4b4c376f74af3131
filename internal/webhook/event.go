// Package webhook normalizes Mercado Pago notification deliveries.
//
// The provider sends several shapes for the same fact:
//
//	{"type": "payment", "data": {"id": 123}}
//	{"topic": "payments", "id": "123"}
//	POST ...?type=payment&id=123
//	POST ...?topic=payment&data.id=123
//
// Parse folds all of them into one canonical Notification before any
// dispatch decision is made.
package webhook

import (
	"encoding/json"
	"net/url"
)

// Notification is the canonical form of a delivery.
type Notification struct {
	Topic     string
	PaymentID string
}

// IsPayment reports whether the delivery identifies a payment we
// should confirm with the gateway.
func (n Notification) IsPayment() bool {
	return (n.Topic == "payment" || n.Topic == "payments") && n.PaymentID != ""
}

// flexID accepts both JSON numbers and JSON strings; Mercado Pago uses
// either depending on the event shape.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type envelope struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	ID    flexID `json:"id"`
	Data  struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// Parse extracts the topic and payment id from the body, falling back
// to query parameters. A malformed body is not an error; the query may
// still carry everything needed, and an empty Notification simply
// fails IsPayment.
func Parse(body []byte, query url.Values) Notification {
	var env envelope
	if len(body) > 0 {
		// Best effort; unparseable bodies are tolerated.
		_ = json.Unmarshal(body, &env)
	}

	topic := env.Topic
	if topic == "" {
		topic = env.Type
	}
	if topic == "" {
		topic = query.Get("topic")
	}
	if topic == "" {
		topic = query.Get("type")
	}

	id := string(env.Data.ID)
	if id == "" {
		id = string(env.ID)
	}
	if id == "" {
		id = query.Get("id")
	}
	if id == "" {
		id = query.Get("data.id")
	}

	return Notification{Topic: topic, PaymentID: id}
}
