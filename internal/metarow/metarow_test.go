package metarow

import "testing"

func TestStripReservedRemovesOnlyReservedKeys(t *testing.T) {
	in := map[string]any{
		"workbookId": "wb1",
		"author":     "jane",
		"tokenCount": 12,
		"notes":      "draft",
	}
	out := StripReserved(in)
	if _, ok := out["workbookId"]; ok {
		t.Fatal("workbookId should have been stripped")
	}
	if _, ok := out["tokenCount"]; ok {
		t.Fatal("tokenCount should have been stripped")
	}
	if out["author"] != "jane" || out["notes"] != "draft" {
		t.Fatalf("non-reserved keys were altered: %#v", out)
	}
	// original untouched
	if _, ok := in["author"]; !ok {
		t.Fatal("StripReserved mutated its input")
	}
}

func TestStripReservedNil(t *testing.T) {
	if StripReserved(nil) != nil {
		t.Fatal("StripReserved(nil) should be nil")
	}
}

func TestEncodeDecodeExtraRoundTrip(t *testing.T) {
	in := map[string]any{"author": "jane", "count": float64(3)}
	raw, err := EncodeExtra(in)
	if err != nil {
		t.Fatalf("EncodeExtra: %v", err)
	}
	out, err := DecodeExtra(raw)
	if err != nil {
		t.Fatalf("DecodeExtra: %v", err)
	}
	if out["author"] != "jane" || out["count"] != float64(3) {
		t.Fatalf("round trip mismatch: %#v", out)
	}
}

func TestEncodeExtraEmpty(t *testing.T) {
	raw, err := EncodeExtra(nil)
	if err != nil {
		t.Fatalf("EncodeExtra(nil): %v", err)
	}
	if raw != "{}" {
		t.Fatalf("EncodeExtra(nil) = %q, want {}", raw)
	}
	raw, err = EncodeExtra(map[string]any{})
	if err != nil {
		t.Fatalf("EncodeExtra({}): %v", err)
	}
	if raw != "{}" {
		t.Fatalf("EncodeExtra({}) = %q, want {}", raw)
	}
}

func TestDecodeExtraEmptyString(t *testing.T) {
	out, err := DecodeExtra("")
	if err != nil {
		t.Fatalf("DecodeExtra(\"\"): %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("DecodeExtra(\"\") = %#v, want empty map", out)
	}
}
