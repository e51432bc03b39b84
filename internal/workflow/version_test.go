package workflow

import (
	"encoding/json"
	"testing"
)

func TestNextVersionBootstrap(t *testing.T) {
	for _, bump := range []BumpKind{BumpNone, BumpMinor, BumpMajor} {
		got := NextVersion(nil, bump)
		if got.String() != "0.1" {
			t.Errorf("NextVersion(nil, %s) = %s, want 0.1", bump, got)
		}
	}
}

func TestNextVersionBumps(t *testing.T) {
	tests := []struct {
		latest string
		bump   BumpKind
		want   string
	}{
		{"2.3", BumpNone, "2.3"},
		{"2.3", BumpMinor, "2.4"},
		{"2.9", BumpMinor, "3.0"}, // carry into the integer part
		{"2.3", BumpMajor, "3.0"},
		{"0.1", BumpMinor, "0.2"},
		{"0.9", BumpMinor, "1.0"},
		{"0.1", BumpMajor, "1.0"},
		{"9.9", BumpMinor, "10.0"},
	}

	for _, tt := range tests {
		latest, err := ParseVersion(tt.latest)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tt.latest, err)
		}
		got := NextVersion(&latest, tt.bump)
		if got.String() != tt.want {
			t.Errorf("NextVersion(%s, %s) = %s, want %s", tt.latest, tt.bump, got, tt.want)
		}
	}
}

func TestVersionNoFloatDrift(t *testing.T) {
	// Ten successive minor bumps from 0.1 must land exactly on 1.1,
	// with every intermediate value rendering as one decimal digit.
	v := InitialVersion
	expected := []string{"0.2", "0.3", "0.4", "0.5", "0.6", "0.7", "0.8", "0.9", "1.0", "1.1"}
	for i, want := range expected {
		v = NextVersion(&v, BumpMinor)
		if v.String() != want {
			t.Fatalf("bump %d: got %s, want %s", i+1, v, want)
		}
	}
}

func TestVersionOrdering(t *testing.T) {
	low, _ := ParseVersion("2.9")
	high, _ := ParseVersion("3.0")
	if !(low < high) {
		t.Errorf("expected 2.9 < 3.0 under (major, minor) ordering")
	}
}

func TestParseVersion(t *testing.T) {
	if _, err := ParseVersion("2.10"); err == nil {
		t.Error("expected error for two-digit minor")
	}
	if _, err := ParseVersion("abc"); err == nil {
		t.Error("expected error for non-numeric version")
	}
	v, err := ParseVersion("4")
	if err != nil {
		t.Fatalf("ParseVersion(4): %v", err)
	}
	if v.String() != "4.0" {
		t.Errorf("ParseVersion(4) = %s, want 4.0", v)
	}
}

func TestVersionJSONRoundTrip(t *testing.T) {
	v, _ := ParseVersion("2.3")
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2.3"` {
		t.Errorf("marshal = %s, want \"2.3\"", b)
	}

	var back Version
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != v {
		t.Errorf("round trip changed version: %s != %s", back, v)
	}

	// Numeric form must also parse (e.g. a client sending 2.3).
	if err := json.Unmarshal([]byte(`2.3`), &back); err != nil {
		t.Fatalf("unmarshal numeric: %v", err)
	}
	if back.String() != "2.3" {
		t.Errorf("numeric unmarshal = %s, want 2.3", back)
	}
}

func TestVersionScan(t *testing.T) {
	var v Version
	if err := v.Scan([]byte("2.3")); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if v.String() != "2.3" {
		t.Errorf("scan bytes = %s, want 2.3", v)
	}
	if err := v.Scan(float64(0.30000000000000004)); err != nil {
		t.Fatalf("scan float: %v", err)
	}
	if v.String() != "0.3" {
		t.Errorf("scan float = %s, want 0.3", v)
	}
}

func TestParseBumpKind(t *testing.T) {
	if _, err := ParseBumpKind("huge"); err == nil {
		t.Error("expected error for unknown bump kind")
	}
	bump, err := ParseBumpKind("")
	if err != nil {
		t.Fatalf("empty bump: %v", err)
	}
	if bump != BumpNone {
		t.Errorf("empty bump = %s, want none", bump)
	}
}
