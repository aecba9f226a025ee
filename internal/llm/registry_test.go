package llm

import (
	"errors"
	"testing"
)

func newRegistryLLM(t *testing.T, serviceID string) *LLM {
	t.Helper()
	l, err := New(Config{ServiceID: serviceID, Model: "gpt-4o"}, &scriptedProvider{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	main := newRegistryLLM(t, "main")
	condenser := newRegistryLLM(t, "condenser")

	if err := r.Register(main); err != nil {
		t.Fatalf("Register(main) error = %v", err)
	}
	if err := r.Register(condenser); err != nil {
		t.Fatalf("Register(condenser) error = %v", err)
	}

	got, err := r.Get("main")
	if err != nil {
		t.Fatalf("Get(main) error = %v", err)
	}
	if got != main {
		t.Error("Get(main) returned wrong instance")
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrServiceNotFound", err)
	}

	if err := r.Register(newRegistryLLM(t, "main")); !errors.Is(err, ErrServiceExists) {
		t.Errorf("duplicate Register error = %v, want ErrServiceExists", err)
	}

	if ids := r.List(); len(ids) != 2 {
		t.Errorf("List() = %v, want 2 entries", ids)
	}
}

func TestRegistryRejectsEmptyServiceID(t *testing.T) {
	r := NewRegistry()
	l, err := New(Config{Model: "gpt-4o"}, &scriptedProvider{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(l); err == nil {
		t.Fatal("expected error for empty service id")
	}
}
