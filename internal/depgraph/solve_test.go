package depgraph

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestSolveLevels(t *testing.T) {
	deps := map[string]Set{
		"A": {},
		"B": NewSet("A"),
		"C": NewSet("A"),
		"D": NewSet("B", "C"),
	}

	levels, err := Solve(deps, NewSet("A", "B", "C", "D"))
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}

	want := []Set{NewSet("A"), NewSet("B", "C"), NewSet("D")}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("Solve = %v, want %v", levels, want)
	}
}

func TestSolveKeepsDisconnectedMembers(t *testing.T) {
	deps := map[string]Set{
		"B": NewSet("A"),
	}

	levels, err := Solve(deps, NewSet("A", "B", "lonely"))
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}

	want := []Set{NewSet("A", "lonely"), NewSet("B")}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("Solve = %v, want %v", levels, want)
	}
}

func TestSolveEmptyGraph(t *testing.T) {
	levels, err := Solve(nil, nil)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if len(levels) != 0 {
		t.Errorf("Solve = %v, want no levels", levels)
	}
}

func TestSolveDetectsCycle(t *testing.T) {
	deps := map[string]Set{
		"A": NewSet("B"),
		"B": NewSet("A"),
		"C": {},
	}

	_, err := Solve(deps, NewSet("A", "B", "C"))
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestSolveDoesNotMutateInput(t *testing.T) {
	deps := map[string]Set{
		"B": NewSet("A"),
	}

	if _, err := Solve(deps, NewSet("A", "B")); err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if !deps["B"].Contains("A") {
		t.Error("Solve mutated the caller's dependency sets")
	}
}

func TestSolveChain(t *testing.T) {
	// A linear chain produces one level per member.
	deps := map[string]Set{}
	members := Set{}
	prev := ""
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("dev%02d", i)
		members[name] = struct{}{}
		if prev != "" {
			deps[name] = NewSet(prev)
		}
		prev = name
	}

	levels, err := Solve(deps, members)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if len(levels) != 20 {
		t.Fatalf("got %d levels, want 20", len(levels))
	}
	for i, level := range levels {
		want := fmt.Sprintf("dev%02d", i)
		if len(level) != 1 || !level.Contains(want) {
			t.Errorf("level %d = %v, want {%s}", i, level, want)
		}
	}
}
