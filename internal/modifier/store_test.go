package modifier

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// fakeOwner records modifier-change notifications.
type fakeOwner struct {
	name    string
	changes []change
}

type change struct {
	instance any
	key      Key
	value    any
}

func (o *fakeOwner) Name() string { return o.name }

func (o *fakeOwner) OnModifierChange(instance any, key Key, value any) {
	o.changes = append(o.changes, change{instance, key, value})
}

type inst struct{ id int }

func TestGetFallsBackToDefault(t *testing.T) {
	owner := &fakeOwner{name: "frequency"}
	s := NewStore(owner, Values, Units)

	if err := s.Set(nil, Units, "Hz"); err != nil {
		t.Fatalf("Set default error: %v", err)
	}

	a := &inst{1}
	got, err := s.Get(a, Units)
	if err != nil || got != "Hz" {
		t.Errorf("Get = %v, %v; want Hz (class default)", got, err)
	}
}

func TestOverrideShadowsDefaultPerInstance(t *testing.T) {
	owner := &fakeOwner{name: "frequency"}
	s := NewStore(owner, Units)

	a, b := &inst{1}, &inst{2}
	if err := s.Set(nil, Units, "Hz"); err != nil {
		t.Fatalf("Set default error: %v", err)
	}
	if err := s.Set(a, Units, "kHz"); err != nil {
		t.Fatalf("Set override error: %v", err)
	}

	if got, _ := s.Get(a, Units); got != "kHz" {
		t.Errorf("instance a: got %v, want kHz", got)
	}
	// Overriding a must not leak to b.
	if got, _ := s.Get(b, Units); got != "Hz" {
		t.Errorf("instance b: got %v, want Hz", got)
	}
	if !s.HasOverrides(a) || s.HasOverrides(b) {
		t.Error("HasOverrides: want true for a, false for b")
	}
}

func TestSetNotifiesOwner(t *testing.T) {
	owner := &fakeOwner{name: "frequency"}
	s := NewStore(owner, Units)

	a := &inst{1}
	_ = s.Set(nil, Units, "Hz")
	_ = s.Set(a, Units, "kHz")

	want := []change{
		{nil, Units, "Hz"},
		{a, Units, "kHz"},
	}
	if !reflect.DeepEqual(owner.changes, want) {
		t.Errorf("changes = %v, want %v", owner.changes, want)
	}
}

func TestUnknownKeyFailsNamingOwner(t *testing.T) {
	owner := &fakeOwner{name: "frequency"}
	s := NewStore(owner, Units)

	err := s.Set(nil, Key("bogus"), 1)
	if !errors.Is(err, ErrUnknownModifier) {
		t.Fatalf("expected ErrUnknownModifier, got %v", err)
	}
	if got := err.Error(); !contains(got, "bogus") || !contains(got, "frequency") {
		t.Errorf("error %q must name the key and the owner", got)
	}
	if len(owner.changes) != 0 {
		t.Error("owner notified on rejected set")
	}

	if _, err := s.Get(nil, Key("bogus")); !errors.Is(err, ErrUnknownModifier) {
		t.Errorf("Get unknown key: expected ErrUnknownModifier, got %v", err)
	}
}

func TestIterateMergesOverrides(t *testing.T) {
	owner := &fakeOwner{name: "frequency"}
	s := NewStore(owner, Values, Units)

	a := &inst{1}
	_ = s.Set(nil, Units, "Hz")
	_ = s.Set(nil, Values, "default-values")
	_ = s.Set(a, Units, "kHz")

	got := s.Iterate(a)
	want := map[Key]any{Values: "default-values", Units: "kHz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Iterate = %v, want %v", got, want)
	}

	// Class view is unaffected.
	got = s.Iterate(nil)
	want = map[Key]any{Values: "default-values", Units: "Hz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Iterate(nil) = %v, want %v", got, want)
	}
}

func TestDropInstance(t *testing.T) {
	owner := &fakeOwner{name: "frequency"}
	s := NewStore(owner, Units)

	a := &inst{1}
	_ = s.Set(nil, Units, "Hz")
	_ = s.Set(a, Units, "kHz")
	s.DropInstance(a)

	if got, _ := s.Get(a, Units); got != "Hz" {
		t.Errorf("after DropInstance: got %v, want Hz", got)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
