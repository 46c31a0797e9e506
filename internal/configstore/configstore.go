// Package configstore owns the durable JSON configuration documents under
// D/configurations/<config_id>.json: CRUD, validation, and atomic
// replacement.
//
// Grounded on the teacher's writePIDFile (JSON marshal + os.WriteFile) in
// internal/supervisor/supervisor.go, generalized to the write-tmp/fsync/
// rename atomicity the durable documents require via
// internal/util.AtomicWriteFile (the teacher's single PID-file write never
// needed that strength of guarantee).
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/model"
	"github.com/rorygraves/clientserverrunner/internal/util"
)

// RunningChecker reports whether any application of a configuration is not
// currently stopped. The store asks this before accepting update/delete so
// it never needs to know about the process manager directly.
type RunningChecker func(configID string) bool

// Stopper issues a group-stop for a configuration, used by delete when
// force=true. It must block until every application has reached stopped.
type Stopper func(configID string) error

// SetRunningChecker wires the store to the process manager after both have
// been constructed, breaking the natural construction-order cycle between
// them (the manager needs the store to snapshot configurations; the store
// needs the manager to know whether a configuration is busy).
func (s *Store) SetRunningChecker(f RunningChecker) { s.isRunning = f }

// SetStopper wires the force-delete group-stop callback; see SetRunningChecker.
func (s *Store) SetStopper(f Stopper) { s.stopAll = f }

// Store is a single-writer-per-id JSON document store.
type Store struct {
	dir       string
	isRunning RunningChecker
	stopAll   Stopper
	mu        sync.Mutex // guards the id-locks map itself
	idLocks   map[string]*sync.Mutex
}

// New creates a Store rooted at dir (normally D/configurations/). dir is
// created if it does not already exist.
func New(dir string, isRunning RunningChecker, stopAll Stopper) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create configurations dir: %w", err)
	}
	return &Store{
		dir:       dir,
		isRunning: isRunning,
		stopAll:   stopAll,
		idLocks:   make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.idLocks[id] = l
	}
	return l
}

// List returns a summary of every configuration, ordered by name.
func (s *Store) List() ([]model.ConfigurationSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read configurations dir: %w", err)
	}

	var out []model.ConfigurationSummary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		cfg, err := s.readLocked(id)
		if err != nil {
			continue
		}
		out = append(out, model.ConfigurationSummary{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
			HasRunning:  s.isRunning != nil && s.isRunning(cfg.ID),
			CreatedAt:   cfg.CreatedAt,
			UpdatedAt:   cfg.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the full configuration document for id.
func (s *Store) Get(id string) (model.Configuration, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id string) (model.Configuration, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Configuration{}, apierr.NotFound("configuration %q not found", id)
		}
		return model.Configuration{}, fmt.Errorf("read configuration %q: %w", id, err)
	}
	var cfg model.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.Configuration{}, fmt.Errorf("parse configuration %q: %w", id, err)
	}
	return cfg, nil
}

func (s *Store) writeLocked(cfg model.Configuration) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration %q: %w", cfg.ID, err)
	}
	if err := util.AtomicWriteFile(s.path(cfg.ID), data, 0o644); err != nil {
		return fmt.Errorf("write configuration %q: %w", cfg.ID, err)
	}
	return nil
}

// Create builds a configuration from name, description and apps, assigns
// it an id derived from name, validates it, and writes it atomically.
func (s *Store) Create(name, description string, apps []model.ApplicationSpec) (string, error) {
	id, err := s.nextID(name)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	cfg := model.Configuration{
		ID:           id,
		Name:         name,
		Description:  description,
		Applications: apps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := Validate(cfg); err != nil {
		return "", err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	if err := s.writeLocked(cfg); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces each mutable field (name, description, applications) of
// an existing configuration for which a non-nil value is given, leaving the
// others as they are. Rejected with apierr.Busy if any application is not
// currently stopped.
func (s *Store) Update(id string, name, description *string, apps []model.ApplicationSpec) (model.Configuration, error) {
	if s.isRunning != nil && s.isRunning(id) {
		return model.Configuration{}, apierr.Busy("configuration %q has applications that are not stopped", id)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := s.readLocked(id)
	if err != nil {
		return model.Configuration{}, err
	}
	if name != nil {
		cfg.Name = *name
	}
	if description != nil {
		cfg.Description = *description
	}
	if apps != nil {
		cfg.Applications = apps
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := Validate(cfg); err != nil {
		return model.Configuration{}, err
	}
	if err := s.writeLocked(cfg); err != nil {
		return model.Configuration{}, err
	}
	return cfg, nil
}

// Delete removes a configuration document. If any application is running
// and force is false, it is rejected with apierr.Busy. If force is true,
// it first asks the supplied Stopper to stop every application, then
// removes the document; the caller (the control surface) is responsible
// for the on-disk log directory cleanup. The running check and the Stopper
// run without the id lock held, since the Stopper reads the configuration
// back through Get.
func (s *Store) Delete(id string, force bool) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	if s.isRunning != nil && s.isRunning(id) {
		if !force {
			return apierr.Busy("configuration %q has applications that are not stopped", id)
		}
		if s.stopAll != nil {
			if err := s.stopAll(id); err != nil {
				return fmt.Errorf("stop configuration %q before delete: %w", id, err)
			}
		}
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete configuration %q: %w", id, err)
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// nextID derives a human-readable slug from name, disambiguating on
// collision with a short suffix; falls back to a UUID v4 when the name
// yields no usable characters at all.
func (s *Store) nextID(name string) (string, error) {
	base := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if base == "" {
		return uuid.NewString(), nil
	}

	candidate := base
	for i := 2; ; i++ {
		if _, err := os.Stat(s.path(candidate)); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("check configuration id %q: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
		if i > 1000 {
			return uuid.NewString(), nil
		}
	}
}
