package registry

import (
	"testing"

	"github.com/docxology/tychostore/selector"
)

type widgetA struct {
	StringProperty string
}

type widgetB struct {
	StringProperty string
}

func TestLookupUnregisteredRequiresIDMapping(t *testing.T) {
	r := New()
	info := Lookup[widgetA](r)
	if !info.RequiresIDMapping {
		t.Fatalf("expected an unregistered type to require id mapping")
	}
	if info.FullTypeName == "" {
		t.Fatalf("expected a non-empty full type name even unregistered")
	}
}

func TestRegisterThenLookup(t *testing.T) {
	r := New()
	if conflict := Register(r, func(w widgetA) any { return w.StringProperty }); conflict {
		t.Fatalf("first registration should not conflict")
	}
	info := Lookup[widgetA](r)
	if info.RequiresIDMapping {
		t.Fatalf("expected a registered type to not require id mapping")
	}
	if info.IDSelector == nil {
		t.Fatalf("expected the id selector to be recorded")
	}
	if got := info.IDSelector(widgetA{StringProperty: "x"}); got != "x" {
		t.Fatalf("id selector returned %v, want %q", got, "x")
	}
}

func TestDuplicateCompatibleRegistrationIsIdempotent(t *testing.T) {
	r := New()
	sel := func(w widgetA) any { return w.StringProperty }
	if conflict := Register(r, sel); conflict {
		t.Fatalf("first registration should not conflict")
	}
	if conflict := Register(r, sel); conflict {
		t.Fatalf("re-registering the same type with a selector present both times should not conflict")
	}
}

func TestConflictingRegistrationReportsConflict(t *testing.T) {
	r := New()
	if conflict := Register(r, func(w widgetA) any { return w.StringProperty }); conflict {
		t.Fatalf("first registration should not conflict")
	}
	if conflict := Register[widgetA](r, nil); !conflict {
		t.Fatalf("expected registering nil over an existing selector to conflict")
	}
}

func TestDistinctTypesDoNotCollide(t *testing.T) {
	r := New()
	Register(r, func(w widgetA) any { return w.StringProperty })
	infoA := Lookup[widgetA](r)
	infoB := Lookup[widgetB](r)
	if infoA.FullTypeName == infoB.FullTypeName {
		t.Fatalf("expected distinct types to have distinct full type names")
	}
	if infoB.IDSelector != nil {
		t.Fatalf("widgetB was never registered and must not inherit widgetA's selector")
	}
}

func TestSafeTypeNameSanitization(t *testing.T) {
	cases := map[string]string{
		"github.com/docxology/tychostore_test.widgetA": "github_com_docxology_tychostore_test_widgeta",
		"Widget":       "widget",
		"":             "t",
		"___":          "t",
		"A.B-C D":      "a_b_c_d",
	}
	for in, want := range cases {
		if got := SafeTypeName(in); got != want {
			t.Fatalf("SafeTypeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterWithPathConflict(t *testing.T) {
	r := New()
	if conflict := RegisterWithPath[widgetA](r, selector.New("StringProperty")); conflict {
		t.Fatalf("first path registration should not conflict")
	}
	if conflict := RegisterWithPath[widgetA](r, selector.New("StringProperty")); conflict {
		t.Fatalf("re-registering the identical path should not conflict")
	}
	if conflict := RegisterWithPath[widgetA](r, selector.New("Other")); !conflict {
		t.Fatalf("expected a different path to conflict")
	}
}
