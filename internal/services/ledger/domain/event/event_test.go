package event

import (
	"testing"
	"time"
)

var ts = time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)

func sample() Event {
	return Event{
		Timestamp:   ts,
		Type:        TypeFamilyCreated,
		ActorID:     "mom",
		EntityType:  "family",
		EntityID:    "fam-1",
		PayloadJSON: []byte(`{"label":"Silva"}`),
	}
}

func TestNormalizeForAppend(t *testing.T) {
	evt := sample()
	evt.ActorID = "  mom "
	evt.PayloadJSON = nil
	got, err := NormalizeForAppend(evt)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.ActorID != "mom" {
		t.Fatalf("actor id = %q", got.ActorID)
	}
	if string(got.PayloadJSON) != "{}" {
		t.Fatalf("payload = %s", got.PayloadJSON)
	}
}

func TestNormalizeForAppendRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"sequence", func(e *Event) { e.Seq = 3 }},
		{"hash", func(e *Event) { e.Hash = "abc" }},
		{"chain", func(e *Event) { e.ChainHash = "abc" }},
		{"type", func(e *Event) { e.Type = " " }},
		{"timestamp", func(e *Event) { e.Timestamp = time.Time{} }},
		{"entity", func(e *Event) { e.EntityID = "" }},
		{"payload", func(e *Event) { e.PayloadJSON = []byte("{") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := sample()
			tt.mutate(&evt)
			if _, err := NormalizeForAppend(evt); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTypeDomain(t *testing.T) {
	if got := TypeFamilyAdminAdded.Domain(); got != "family" {
		t.Fatalf("domain = %q", got)
	}
	if got := Type("plain").Domain(); got != "plain" {
		t.Fatalf("domain = %q", got)
	}
}

func TestEventHashDeterministic(t *testing.T) {
	first, err := EventHash(sample())
	if err != nil {
		t.Fatalf("event hash: %v", err)
	}
	second, err := EventHash(sample())
	if err != nil {
		t.Fatalf("event hash: %v", err)
	}
	if first != second {
		t.Fatalf("expected deterministic hash, got %s and %s", first, second)
	}

	changed := sample()
	changed.RequestID = "req-1"
	third, err := EventHash(changed)
	if err != nil {
		t.Fatalf("event hash: %v", err)
	}
	if third == first {
		t.Fatal("expected hash to change with request id")
	}
}

func TestEventHashIgnoresStorageFields(t *testing.T) {
	base, _ := EventHash(sample())
	stored := sample()
	stored.Seq = 9
	stored.Hash = "h"
	stored.ChainHash = "c"
	got, _ := EventHash(stored)
	if got != base {
		t.Fatal("storage fields changed the content hash")
	}
}

func TestChainHash(t *testing.T) {
	evt := sample()
	if _, err := ChainHash(evt, ""); err == nil {
		t.Fatal("expected error when event hash is missing")
	}
	evt.Hash, _ = EventHash(evt)
	if _, err := ChainHash(evt, ""); err == nil {
		t.Fatal("expected error when sequence is missing")
	}
	evt.Seq = 1
	first, err := ChainHash(evt, "")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	linked, err := ChainHash(evt, "prev")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	if first == linked {
		t.Fatal("expected chain hash to depend on predecessor")
	}
	if len(first) != 64 {
		t.Fatalf("chain hash length = %d", len(first))
	}
}
