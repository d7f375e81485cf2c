package model

import "testing"

func TestEventDefaults(t *testing.T) {
	e := Event{}

	if e.ID != 0 {
		t.Errorf("expected ID to be 0, got %d", e.ID)
	}

	if e.XFF != nil {
		t.Errorf("expected nil XFF, got %s", *e.XFF)
	}
}

func TestScanTargetsCoversAllFields(t *testing.T) {
	e := &Event{}
	dest, err := e.ScanTargets(Fields)
	if err != nil {
		t.Fatalf("ScanTargets failed: %v", err)
	}
	if len(dest) != len(Fields) {
		t.Fatalf("expected %d targets, got %d", len(Fields), len(dest))
	}
	seen := make(map[any]bool)
	for i, d := range dest {
		if seen[d] {
			t.Errorf("field %s shares a scan target with another field", Fields[i])
		}
		seen[d] = true
	}
}

func TestScanTargetsUnknownField(t *testing.T) {
	e := &Event{}
	if _, err := e.ScanTargets([]string{"ip", "DROP TABLE"}); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestFilterPayloadNormalize(t *testing.T) {
	p := FilterPayload{Targets: []string{}, ExcludeTargets: []string{"x"}, Offset: 5}
	n := p.Normalize()
	if n.Targets != nil {
		t.Errorf("expected nil targets, got %v", n.Targets)
	}
	if len(n.ExcludeTargets) != 1 {
		t.Errorf("expected exclude targets preserved, got %v", n.ExcludeTargets)
	}
	if !n.IsEmpty() {
		t.Error("expected payload without targets to be empty")
	}
	if got := n.WithOffset(-3).Offset; got != 0 {
		t.Errorf("expected negative offset clamped to 0, got %d", got)
	}
}
