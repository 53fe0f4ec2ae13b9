package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewAndDecode(t *testing.T) {
	msg, err := New(TypeRelayOffer, RelayPayload{To: "b", Body: json.RawMessage(`{"sdp":"x"}`)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"relay_offer","payload":{"to":"b","body":{"sdp":"x"}}}` {
		t.Fatalf("wire=%s", data)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	var p RelayPayload
	if err := back.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if p.To != "b" || string(p.Body) != `{"sdp":"x"}` {
		t.Fatalf("payload=%+v", p)
	}
}

func TestDecodeMissingPayload(t *testing.T) {
	msg := &Message{Type: TypeWelcome}
	var p WelcomePayload
	if err := msg.DecodePayload(&p); err == nil {
		t.Fatal("DecodePayload accepted a missing payload")
	}
	if m, _ := New(TypeJoin, nil); m.Payload != nil {
		t.Fatalf("nil payload encoded as %s", m.Payload)
	}
}

func TestKindMapping(t *testing.T) {
	for _, k := range []SignalKind{KindOffer, KindAnswer, KindCandidate} {
		if got, ok := KindFromRelayType(k.RelayType()); !ok || got != k {
			t.Errorf("KindFromRelayType(%q)=%q, %v", k.RelayType(), got, ok)
		}
		if got, ok := KindFromDeliveryType(k.DeliveryType()); !ok || got != k {
			t.Errorf("KindFromDeliveryType(%q)=%q, %v", k.DeliveryType(), got, ok)
		}
	}
	if _, ok := KindFromRelayType(TypeOffer); ok {
		t.Fatal("delivery type accepted as relay type")
	}
	if _, ok := KindFromDeliveryType(TypeJoin); ok {
		t.Fatal("join accepted as a signal")
	}
}
