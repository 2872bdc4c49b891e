package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

func TestNew_PrefixesRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() id.ID
		prefix id.Prefix
	}{
		{"job", id.NewJobID, id.PrefixJob},
		{"cycle", id.NewCycleID, id.PrefixCycle},
		{"payload", id.NewPayloadID, id.PrefixPayload},
		{"issue", id.NewIssueID, id.PrefixIssue},
		{"dlq", id.NewDLQID, id.PrefixDLQ},
		{"worker", id.NewWorkerID, id.PrefixWorker},
		{"cron", id.NewCronID, id.PrefixCron},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generated := tt.gen()
			if generated.Prefix() != tt.prefix {
				t.Errorf("Prefix() = %q, want %q", generated.Prefix(), tt.prefix)
			}
			if !strings.HasPrefix(generated.String(), string(tt.prefix)+"_") {
				t.Errorf("String() = %q, want %q prefix", generated.String(), tt.prefix)
			}

			parsed, err := id.Parse(generated.String())
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", generated.String(), err)
			}
			if parsed.String() != generated.String() {
				t.Errorf("round trip = %q, want %q", parsed.String(), generated.String())
			}
		})
	}
}

func TestParse_RejectsEmptyAndGarbage(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") should fail")
	}
	if _, err := id.Parse("not a typeid!!"); err == nil {
		t.Error("Parse of garbage should fail")
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	jobID := id.NewJobID()
	if _, err := id.ParseCycleID(jobID.String()); err == nil {
		t.Error("ParseCycleID should reject a job-prefixed ID")
	}
}

func TestNil_Behavior(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false, want true")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	if id.NewJobID().IsNil() {
		t.Error("fresh ID should not be nil")
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	original := id.NewJobID()
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded id.ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("round trip = %q, want %q", decoded.String(), original.String())
	}
}

func TestScan_String(t *testing.T) {
	original := id.NewWorkerID()

	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("Scan = %q, want %q", scanned.String(), original.String())
	}

	var nilID id.ID
	if err := nilID.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !nilID.IsNil() {
		t.Error("Scan(nil) should produce Nil ID")
	}
}

func TestIDs_KSortable(t *testing.T) {
	// UUIDv7-based IDs generated in order should sort lexicographically.
	first := id.NewJobID()
	second := id.NewJobID()
	if first.String() > second.String() {
		t.Errorf("IDs not K-sortable: %q > %q", first.String(), second.String())
	}
}
