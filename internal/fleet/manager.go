// Package fleet owns the collection of Lights. It discovers bulbs on the
// network, reconciles them against the persisted registry, constructs the
// in-memory Light for every known identity, and exposes lookups and
// group operations over the fleet.
package fleet

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bulbfleet/bulbd/internal/color"
	"github.com/bulbfleet/bulbd/internal/config"
	"github.com/bulbfleet/bulbd/internal/errors"
	"github.com/bulbfleet/bulbd/internal/events"
	"github.com/bulbfleet/bulbd/internal/light"
	"github.com/bulbfleet/bulbd/internal/store"
	"github.com/bulbfleet/bulbd/pkg/yeelight"
)

// discoveryWorkers bounds how many Lights are constructed in parallel
// during one discovery pass, so one unresponsive bulb cannot serialize the
// whole pass.
const discoveryWorkers = 4

// Prober finds the bulbs currently responding on the network.
type Prober interface {
	Probe(ctx context.Context) ([]yeelight.Device, error)
}

// Store is the persistent registry of known bulbs.
type Store interface {
	ListKnown(ctx context.Context) ([]store.Light, error)
	InsertNew(ctx context.Context, address, name string, isDefault bool) (store.Light, error)
	Upsert(ctx context.Context, l store.Light) error
}

// TransportFactory builds the device transport for one bulb address.
type TransportFactory func(address string, logger *slog.Logger) light.Transport

// Level encodes notification severity as a pulse color.
type Level int

const (
	LevelOK Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// Color returns the pulse color for the level.
func (lv Level) Color() color.Color {
	switch lv {
	case LevelOK:
		return color.New(0, 255, 100)
	case LevelWarning:
		return color.New(255, 150, 0)
	case LevelError:
		return color.New(255, 0, 50)
	default:
		return color.New(0, 150, 255)
	}
}

func (lv Level) String() string {
	switch lv {
	case LevelOK:
		return "ok"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(lv))
	}
}

// Manager owns the fleet. Construct it once in the composition root and
// inject it into the command surfaces; there is no package-global instance.
type Manager struct {
	logger       *slog.Logger
	cfg          *config.Config
	store        Store
	prober       Prober
	newTransport TransportFactory
	bus          *events.Bus

	// lights grows by appends from discovery passes and is never shrunk;
	// disconnection of an existing Light is the job of its own refresh loop.
	// Appends happen only on the goroutine running the discovery pass.
	mu     sync.RWMutex
	lights []*light.Light
}

// New creates a manager. A nil factory defaults to the yeelight transport.
func New(logger *slog.Logger, cfg *config.Config, st Store, prober Prober, factory TransportFactory, bus *events.Bus) *Manager {
	if factory == nil {
		factory = func(address string, logger *slog.Logger) light.Transport {
			return yeelight.NewClient(address, logger)
		}
	}
	return &Manager{
		logger:       logger,
		cfg:          cfg,
		store:        st,
		prober:       prober,
		newTransport: factory,
		bus:          bus,
	}
}

// Start runs the initial discovery pass synchronously, then schedules
// periodic passes until ctx is canceled.
func (m *Manager) Start(ctx context.Context) {
	m.discover(ctx)
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Discovery.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("fleet: discovery loop stopped")
			return
		case <-ticker.C:
			m.discover(ctx)
		}
	}
}

// discover runs one pass: probe the network, record never-seen bulbs in the
// registry, and construct a Light for every known record that doesn't have
// one yet. Construction is parallelized across a bounded worker pool;
// completed Lights come back over a channel consumed here, so this
// goroutine stays the only writer of the collection. Failures are logged
// and absorbed: background maintenance must never crash the process.
func (m *Manager) discover(ctx context.Context) {
	devices, err := m.prober.Probe(ctx)
	if err != nil {
		m.logger.Warn("fleet: discovery probe failed", "error", err)
		devices = nil
	}
	m.logger.Debug("fleet: discovery probe finished", "responding", len(devices))

	known, err := m.store.ListKnown(ctx)
	if err != nil {
		m.logger.Error("fleet: cannot list known lights", "error", err)
		return
	}

	// Record bulbs we have never seen before.
	knownAddrs := make(map[string]bool, len(known))
	for _, rec := range known {
		knownAddrs[rec.Address] = true
	}
	responding := make(map[string]bool, len(devices))
	for _, dev := range devices {
		responding[dev.Address] = true
		if knownAddrs[dev.Address] {
			continue
		}
		rec, err := m.store.InsertNew(ctx, dev.Address, deviceName(dev), false)
		if err != nil {
			m.logger.Error("fleet: cannot save new light", "addr", dev.Address, "error", err)
			continue
		}
		m.logger.Info("fleet: new light saved", "addr", rec.Address, "name", rec.Name, "id", rec.ID)
		known = append(known, rec)
		knownAddrs[rec.Address] = true
	}

	// Construct missing Lights in parallel. Existing instances are never
	// reconstructed: discovery only grows the fleet.
	opts := light.Options{
		MaxNameLength:   m.cfg.Lights.MaxNameLength,
		RefreshInterval: m.cfg.Lights.RefreshInterval,
	}
	results := make(chan *light.Light)
	sem := make(chan struct{}, discoveryWorkers)
	launched := 0
	for _, rec := range known {
		if m.LookupByAddress(rec.Address) != nil {
			continue
		}
		launched++
		go func(rec store.Light) {
			sem <- struct{}{}
			defer func() { <-sem }()
			transport := m.newTransport(rec.Address, m.logger)
			results <- light.New(ctx, m.logger, m.bus, m.store, transport, rec, responding[rec.Address], opts)
		}(rec)
	}
	for i := 0; i < launched; i++ {
		m.append(ctx, <-results)
	}
}

// append adds a constructed Light to the collection and starts its refresh
// loop.
func (m *Manager) append(ctx context.Context, l *light.Light) {
	m.mu.Lock()
	m.lights = append(m.lights, l)
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(events.NewEvent(events.LightAdded, map[string]string{
			"id":      l.ID(),
			"address": l.Address(),
		}))
	}
	go l.Run(ctx)
}

func deviceName(dev yeelight.Device) string {
	if dev.Name != "" {
		return dev.Name
	}
	if dev.Model != "" {
		return "Yeelight " + dev.Model
	}
	return dev.Address
}

// Lights returns a snapshot of the collection.
func (m *Manager) Lights() []*light.Light {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*light.Light, len(m.lights))
	copy(out, m.lights)
	return out
}

// LookupByName returns the Light with the given user label, ignoring case,
// or nil.
func (m *Manager) LookupByName(name string) *light.Light {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lights {
		if strings.EqualFold(l.Name(), name) {
			return l
		}
	}
	return nil
}

// LookupByID returns the Light with the given persisted id, or nil.
func (m *Manager) LookupByID(id string) *light.Light {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lights {
		if l.ID() == id {
			return l
		}
	}
	return nil
}

// LookupByAddress returns the Light with the given network address, or nil.
func (m *Manager) LookupByAddress(address string) *light.Light {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lights {
		if l.Address() == address {
			return l
		}
	}
	return nil
}

// Resolve finds the Light a caller-supplied reference points at, trying
// persisted id, user label, then network address. A miss returns ErrNotFound
// naming the reference.
func (m *Manager) Resolve(ref string) (*light.Light, error) {
	if l := m.LookupByID(ref); l != nil {
		return l, nil
	}
	if l := m.LookupByName(ref); l != nil {
		return l, nil
	}
	if l := m.LookupByAddress(ref); l != nil {
		return l, nil
	}
	return nil, errors.NotFoundf("no light matches %q", ref)
}

// DefaultLights returns all Lights in the default group.
func (m *Manager) DefaultLights() []*light.Light {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*light.Light
	for _, l := range m.lights {
		if l.IsDefault() {
			out = append(out, l)
		}
	}
	return out
}

// Snapshots returns the dumped state of every Light.
func (m *Manager) Snapshots() []light.Snapshot {
	lights := m.Lights()
	out := make([]light.Snapshot, 0, len(lights))
	for _, l := range lights {
		out = append(out, l.Snapshot())
	}
	return out
}

// Notify flashes a short severity-colored pulse on the given lights, or on
// all default lights if none are given. A failing bulb does not stop the
// others; the combined error is returned.
func (m *Manager) Notify(ctx context.Context, level Level, targets ...*light.Light) error {
	if len(targets) == 0 {
		targets = m.DefaultLights()
	}
	m.logger.Info("fleet: flashing notification", "level", level.String(), "lights", len(targets))

	pulse := level.Color()
	var errs []error
	for _, l := range targets {
		if err := l.Pulse(ctx, pulse, m.cfg.Lights.NotifyDuration); err != nil {
			m.logger.Warn("fleet: notification pulse failed", "light", l.ID(), "error", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
