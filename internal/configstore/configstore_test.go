package configstore

import (
	"path/filepath"
	"testing"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func sampleApp(t *testing.T, id string, deps ...string) model.ApplicationSpec {
	t.Helper()
	return model.ApplicationSpec{
		ID:        id,
		Name:      id,
		WorkDir:   t.TempDir(),
		Command:   "true",
		DependsOn: deps,
	}
}

func TestCreateAssignsSlugID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("My App", "desc", []model.ApplicationSpec{sampleApp(t, "web")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "my-app" {
		t.Errorf("id = %q, want my-app", id)
	}
}

func TestCreateCollisionAppendsSuffix(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("Web", "", []model.ApplicationSpec{sampleApp(t, "a")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	id2, err := s.Create("Web", "", []model.ApplicationSpec{sampleApp(t, "a")})
	if err != nil {
		t.Fatalf("Create() second error = %v", err)
	}
	if id2 != "web-2" {
		t.Errorf("second id = %q, want web-2", id2)
	}
}

func TestCreateRejectsDuplicateAppID(t *testing.T) {
	s := newTestStore(t)
	apps := []model.ApplicationSpec{sampleApp(t, "a"), sampleApp(t, "a")}
	_, err := s.Create("dup", "", apps)
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindConfigInvalid {
		t.Fatalf("Create() error = %v, want ConfigInvalid", err)
	}
}

func TestCreateRejectsUnknownDependency(t *testing.T) {
	s := newTestStore(t)
	apps := []model.ApplicationSpec{sampleApp(t, "a", "missing")}
	_, err := s.Create("bad-dep", "", apps)
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindConfigInvalid {
		t.Fatalf("Create() error = %v, want ConfigInvalid", err)
	}
}

func TestCreateRejectsMissingWorkDir(t *testing.T) {
	s := newTestStore(t)
	app := sampleApp(t, "a")
	app.WorkDir = filepath.Join(t.TempDir(), "does-not-exist")
	_, err := s.Create("bad-dir", "", []model.ApplicationSpec{app})
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindConfigInvalid {
		t.Fatalf("Create() error = %v, want ConfigInvalid", err)
	}
}

func TestGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("roundtrip", "desc", []model.ApplicationSpec{sampleApp(t, "a")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	cfg, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cfg.Name != "roundtrip" || len(cfg.Applications) != 1 {
		t.Errorf("Get() = %+v, want name=roundtrip with 1 app", cfg)
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("nope")
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindNotFound {
		t.Fatalf("Get() error = %v, want NotFound", err)
	}
}

func TestListOrderedByName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("Zeta", "", []model.ApplicationSpec{sampleApp(t, "a")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create("Alpha", "", []model.ApplicationSpec{sampleApp(t, "a")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "Alpha" || list[1].Name != "Zeta" {
		t.Fatalf("List() = %+v, want [Alpha, Zeta]", list)
	}
}

func TestUpdateRejectedWhileRunning(t *testing.T) {
	s, err := New(t.TempDir(), func(string) bool { return true }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, err := s.Create("running-cfg", "", []model.ApplicationSpec{sampleApp(t, "a")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	newName := "renamed"
	_, err = s.Update(id, &newName, nil, nil)
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindBusy {
		t.Fatalf("Update() error = %v, want Busy", err)
	}
}

func TestUpdateAppliesPartialChanges(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("orig", "orig-desc", []model.ApplicationSpec{sampleApp(t, "a")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	newName := "renamed"
	cfg, err := s.Update(id, &newName, nil, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cfg.Name != "renamed" || cfg.Description != "orig-desc" {
		t.Errorf("Update() = %+v, want name=renamed, description unchanged", cfg)
	}
}

func TestDeleteRejectedWhileRunningWithoutForce(t *testing.T) {
	s, err := New(t.TempDir(), func(string) bool { return true }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, err := s.Create("busy-cfg", "", []model.ApplicationSpec{sampleApp(t, "a")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err = s.Delete(id, false)
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindBusy {
		t.Fatalf("Delete() error = %v, want Busy", err)
	}
}

func TestDeleteForceStopsFirst(t *testing.T) {
	stopped := false
	s, err := New(t.TempDir(), func(string) bool { return true }, func(string) error {
		stopped = true
		return nil
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, err := s.Create("force-cfg", "", []model.ApplicationSpec{sampleApp(t, "a")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Delete(id, true); err != nil {
		t.Fatalf("Delete(force) error = %v", err)
	}
	if !stopped {
		t.Errorf("Delete(force) did not invoke the stopper")
	}
	if _, err := s.Get(id); err == nil {
		t.Errorf("Get() after Delete() succeeded, want NotFound")
	}
}

func TestDeleteUnknownReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete("nope", false)
	e, ok := apierr.As(err)
	if !ok || e.Kind != apierr.KindNotFound {
		t.Fatalf("Delete() error = %v, want NotFound", err)
	}
}
