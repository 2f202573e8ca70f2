package types

import (
	"testing"
)

func TestJSONMapRoundTrip(t *testing.T) {
	m := JSONMap{"pit_to_pit": 22.5, "length": 28}

	value, err := m.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out JSONMap
	if err := out.Scan(value); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out["pit_to_pit"] != 22.5 || out["length"] != 28 {
		t.Fatalf("unexpected map after round trip: %v", out)
	}
}

func TestJSONMapScanNil(t *testing.T) {
	var out JSONMap
	if err := out.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil map, got %v", out)
	}
}

func TestJSONMapScanString(t *testing.T) {
	var out JSONMap
	if err := out.Scan(`{"waist": 32}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if out["waist"] != 32 {
		t.Fatalf("unexpected map: %v", out)
	}
}
