package resume

import (
	"errors"
	"reflect"
	"testing"

	"resumekit/api/internal/collection"
)

func TestRecordRoundTripKeepsUnknownFields(t *testing.T) {
	rec := collection.Record{
		"id":       "r1",
		"ownerId":  "u1",
		"title":    "Backend Engineer",
		"template": "modern",
		"personal": map[string]any{"fullName": "Ada Lovelace", "email": "ada@example.com"},
		"skills":   []any{"Go", "Postgres"},
		"accent":   "#0055ff",
	}

	res, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if res.ID != "r1" || res.Title != "Backend Engineer" || res.Personal.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected decode %+v", res)
	}
	if res.Extra["accent"] != "#0055ff" {
		t.Fatalf("expected accent in Extra, got %v", res.Extra)
	}

	back, err := res.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !reflect.DeepEqual(back, rec) {
		t.Fatalf("round trip changed record:\n got %v\nwant %v", back, rec)
	}
}

func TestDraftPayload(t *testing.T) {
	if _, err := (Draft{}).Payload(); !errors.Is(err, ErrMissingTitle) {
		t.Fatalf("expected ErrMissingTitle, got %v", err)
	}

	payload, err := Draft{Title: "CV", Skills: []string{"Go"}}.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if payload.String("template") != TemplateClassic {
		t.Fatalf("expected default template, got %v", payload["template"])
	}
	if _, ok := payload["id"]; ok {
		t.Fatal("draft payload must not carry an id")
	}
}

func TestDraftEmpty(t *testing.T) {
	if !(Draft{Template: TemplateModern}).Empty() {
		t.Fatal("template alone should count as empty")
	}
	if (Draft{Skills: []string{"Go"}}).Empty() {
		t.Fatal("skills make a draft non-empty")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		res  Resume
		want string
	}{
		{Resume{Draft: Draft{Title: "CV"}}, "CV"},
		{Resume{Draft: Draft{Personal: Personal{FullName: "Ada"}}}, "Ada"},
		{Resume{}, "Untitled resume"},
	}
	for _, tc := range cases {
		if got := tc.res.DisplayName(); got != tc.want {
			t.Errorf("DisplayName() = %q, want %q", got, tc.want)
		}
	}
}

func TestValidTemplate(t *testing.T) {
	for _, name := range Templates {
		if !ValidTemplate(name) {
			t.Errorf("expected %q valid", name)
		}
	}
	if ValidTemplate("fancy") {
		t.Error("unknown template accepted")
	}
}
