package models

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hon Hai Precision Ind. Co., Ltd", "hon hai precision ind co ltd"},
		{"  FOXCONN   Technology\tGroup ", "foxconn technology group"},
		{"AT&T Inc.", "at&t inc"},
		{"...", ""},
		{"", ""},
		{"Taiwan Semiconductor Mfg.", "taiwan semiconductor mfg"},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEntityAliasValidate(t *testing.T) {
	ok := EntityAlias{RawName: "Foxconn", Ticker: "HNHPF", EntityType: EntityTypeAlias, Confidence: 0.97, Source: SourceManual}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := ok
	bad.Confidence = 1.2
	if err := bad.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	bad = ok
	bad.RawName = " ,. "
	if err := bad.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error for empty raw_name, got %v", err)
	}

	bad = ok
	bad.EntityType = "PARENT"
	if err := bad.Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error for entity type, got %v", err)
	}
}

func TestEntityTypeValid(t *testing.T) {
	for _, et := range []EntityType{EntitySubsidiary, EntitySupplier, EntityTypeAlias} {
		if !et.Valid() {
			t.Errorf("%s should be valid", et)
		}
	}
	if EntityTypeAlias != "ALIAS" {
		t.Errorf("EntityTypeAlias = %q, want ALIAS", EntityTypeAlias)
	}
	if EntityType("PARENT").Valid() {
		t.Error("PARENT should be invalid")
	}
}

func TestSignalTypeValid(t *testing.T) {
	for _, s := range []SignalType{SignalHiringSpike, SignalAppRank, "CUSTOM_2"} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []SignalType{"", "hiring", "2X", "BAD-TYPE"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}
