package payloadschema

import (
	"strings"
	"testing"
)

func TestValidateEventItemPayloadAccepted(t *testing.T) {
	t.Parallel()

	payload := `{
		"title": "Kermes Bazaar",
		"description": "Jaarlijkse kermes.",
		"venue": "Fatih Moskee",
		"location_text": "Rotterdam",
		"event_url": "https://example.org/events/kermes",
		"start_at": "2026-03-14T11:00:00+01:00",
		"end_at": "2026-03-14T18:00:00+01:00",
		"confidence": 0.9
	}`

	item, err := ValidateEventItemPayload([]byte(payload))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if item.Title != "Kermes Bazaar" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if item.Venue == nil || *item.Venue != "Fatih Moskee" {
		t.Fatal("expected venue decoded")
	}
}

func TestValidateEventItemPayloadMinimal(t *testing.T) {
	t.Parallel()

	item, err := ValidateEventItemPayload([]byte(`{"title": "Iftar"}`))
	if err != nil {
		t.Fatalf("expected title-only payload accepted, got %v", err)
	}
	if item.StartAt != nil || item.Confidence != nil {
		t.Fatal("expected optional fields to stay nil")
	}
}

func TestValidateEventItemPayloadRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		wantSub string
	}{
		{"empty payload", ``, "empty"},
		{"not json", `not json`, "decode payload"},
		{"trailing content", `{"title":"a"} {"title":"b"}`, "trailing"},
		{"missing title", `{"description":"x"}`, "schema validation"},
		{"blank title", `{"title":"   "}`, "title must not be empty"},
		{"unknown field", `{"title":"a","hype_level":9}`, "schema validation"},
		{"bad confidence type", `{"title":"a","confidence":"high"}`, "schema validation"},
		{"confidence out of range", `{"title":"a","confidence":1.5}`, "schema validation"},
		{"bad start_at", `{"title":"a","start_at":"tomorrow"}`, "schema validation"},
		{"end before start", `{"title":"a","start_at":"2026-03-14T18:00:00Z","end_at":"2026-03-14T11:00:00Z"}`, "end_at must not precede start_at"},
		{"bad event_url", `{"title":"a","event_url":"not a uri"}`, "schema validation"},
	}
	for _, tc := range cases {
		_, err := ValidateEventItemPayload([]byte(tc.payload))
		if err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantSub) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.wantSub, err)
		}
	}
}
