package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type testFeature struct {
	*BaseFeature
	initErr   error
	initCalls int
	stopCalls int
	routes    []Route
}

func (f *testFeature) Init(ctx context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *testFeature) Shutdown(ctx context.Context) error {
	f.stopCalls++
	return nil
}

func (f *testFeature) Routes() []Route {
	return f.routes
}

func newTestFeature(name string, enabled bool) *testFeature {
	return &testFeature{
		BaseFeature: NewBaseFeature(name, "test feature", enabled, NewLogger()),
	}
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry(NewLogger())

	if err := registry.Register(newTestFeature("alpha", true)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(newTestFeature("alpha", true)); err == nil {
		t.Error("Registering a duplicate name must fail")
	}

	feature, ok := registry.Get("alpha")
	if !ok || feature.Name() != "alpha" {
		t.Error("Expected to retrieve the registered feature")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("Expected lookup miss for an unknown feature")
	}
}

func TestRegistryListSortsByName(t *testing.T) {
	registry := NewRegistry(NewLogger())
	registry.Register(newTestFeature("zeta", true))
	registry.Register(newTestFeature("alpha", true))

	features := registry.List()
	if len(features) != 2 || features[0].Name() != "alpha" {
		t.Errorf("Expected sorted feature list, got %v", features)
	}
}

func TestRegistrySkipsDisabledFeatures(t *testing.T) {
	registry := NewRegistry(NewLogger())

	enabled := newTestFeature("enabled", true)
	enabled.routes = []Route{{Method: "GET", Path: "/a", Handler: func(w http.ResponseWriter, r *http.Request) {}}}
	disabled := newTestFeature("disabled", false)
	disabled.routes = []Route{{Method: "GET", Path: "/b", Handler: func(w http.ResponseWriter, r *http.Request) {}}}

	registry.Register(enabled)
	registry.Register(disabled)

	if got := registry.ListEnabled(); len(got) != 1 || got[0].Name() != "enabled" {
		t.Errorf("Expected only the enabled feature, got %v", got)
	}

	if routes := registry.GetAllRoutes(); len(routes) != 1 || routes[0].Path != "/a" {
		t.Errorf("Expected routes only from enabled features, got %v", routes)
	}

	if err := registry.InitAll(context.Background()); err != nil {
		t.Fatalf("InitAll failed: %v", err)
	}
	if enabled.initCalls != 1 {
		t.Errorf("Expected enabled feature initialized once, got %d", enabled.initCalls)
	}
	if disabled.initCalls != 0 {
		t.Errorf("Disabled feature must not be initialized, got %d calls", disabled.initCalls)
	}
}

func TestRegistryInitAllPropagatesErrors(t *testing.T) {
	registry := NewRegistry(NewLogger())

	broken := newTestFeature("broken", true)
	broken.initErr = errors.New("init failed")
	registry.Register(broken)

	if err := registry.InitAll(context.Background()); err == nil {
		t.Error("Expected InitAll to propagate the feature error")
	}
}

func TestRegistryShutdownAll(t *testing.T) {
	registry := NewRegistry(NewLogger())

	feature := newTestFeature("alpha", true)
	registry.Register(feature)

	if err := registry.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("ShutdownAll failed: %v", err)
	}
	if feature.stopCalls != 1 {
		t.Errorf("Expected one shutdown call, got %d", feature.stopCalls)
	}
}
