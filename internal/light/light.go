// Package light holds the per-bulb state machine. A Light owns the
// transport handle for one physical bulb, caches its last-known state, and
// keeps the cache fresh with a background refresh loop.
//
// The bulb forbids issuing a direct property read on every command, so the
// cache is the source of truth for reads and is corrected out-of-band by
// the refresh loop. Every mutator holds the Light's lock across the device
// call and the cache update, so the cache never reflects a call that is
// still in flight or that failed.
package light

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bulbfleet/bulbd/internal/color"
	"github.com/bulbfleet/bulbd/internal/config"
	"github.com/bulbfleet/bulbd/internal/effect"
	"github.com/bulbfleet/bulbd/internal/errors"
	"github.com/bulbfleet/bulbd/internal/events"
	"github.com/bulbfleet/bulbd/internal/store"
	"github.com/bulbfleet/bulbd/pkg/yeelight"
)

// Transport is the network link to one physical bulb.
type Transport interface {
	Address() string
	GetProperties(ctx context.Context) (*yeelight.Properties, error)
	SetPower(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, brightness int) error
	SetColor(ctx context.Context, r, g, b uint8) error
	StartFlow(ctx context.Context, count int, steps []yeelight.FlowStep) error
	StopFlow(ctx context.Context) error
}

// Persister saves a bulb's identity record.
type Persister interface {
	Upsert(ctx context.Context, l store.Light) error
}

// Options are the per-bulb behaviour settings.
type Options struct {
	MaxNameLength   int
	RefreshInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxNameLength <= 0 {
		o.MaxNameLength = config.DefaultMaxNameLength
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = config.DefaultRefreshInterval
	}
	return o
}

// Light is the in-memory model of one physical bulb. It is created once per
// known identity and lives for the process lifetime; a bulb that stops
// responding goes Disconnected and may come back on a later refresh.
type Light struct {
	id      string
	addr    string
	logger  *slog.Logger
	bus     *events.Bus
	store   Persister
	bulb    Transport
	opts    Options

	mu           sync.Mutex
	name         string
	isDefault    bool
	connected    bool
	on           bool
	brightness   int
	color        color.Color
	flowing      bool
	activeEffect *effect.Effect
}

// Snapshot is a point-in-time copy of a Light's state. Live is nil while
// the bulb is disconnected.
type Snapshot struct {
	ID          string     `json:"id"`
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	IsDefault   bool       `json:"is_default"`
	IsConnected bool       `json:"is_connected"`
	Live        *LiveState `json:"live,omitempty"`
}

// LiveState is the device-backed part of a snapshot.
type LiveState struct {
	On           bool           `json:"on"`
	Brightness   int            `json:"brightness"`
	Color        string         `json:"color"`
	IsFlowing    bool           `json:"is_flowing"`
	Effect       string         `json:"effect,omitempty"`
	EffectParams map[string]any `json:"effect_params,omitempty"`
}

// New creates the Light for one persisted identity. connected reflects the
// discovery probe result; if the bulb answered the probe an initial refresh
// is attempted so the cache starts from device truth. The refresh loop is
// not started here; run it with Run.
func New(ctx context.Context, logger *slog.Logger, bus *events.Bus, persister Persister, bulb Transport, rec store.Light, connected bool, opts Options) *Light {
	l := &Light{
		id:        rec.ID,
		addr:      rec.Address,
		logger:    logger.With("light", rec.ID, "addr", rec.Address),
		bus:       bus,
		store:     persister,
		bulb:      bulb,
		opts:      opts.withDefaults(),
		name:      rec.Name,
		isDefault: rec.IsDefault,
		connected: connected,
	}
	l.logger.Info("light: created", "name", rec.Name, "connected", connected)
	if connected {
		l.refresh(ctx)
	}
	return l
}

// Run is the background refresh loop. It never returns until ctx is
// canceled; refresh failures are logged and absorbed so background
// maintenance cannot crash the process.
func (l *Light) Run(ctx context.Context) {
	ticker := time.NewTicker(l.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("light: refresh loop stopped")
			return
		case <-ticker.C:
			l.refresh(ctx)
		}
	}
}

// refresh reads live properties directly from the bulb. Success overwrites
// every live field with the device's reported truth (refresh always wins
// over any stale cache); failure transitions to Disconnected.
func (l *Light) refresh(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Debug("light: refreshing properties")
	props, err := l.bulb.GetProperties(ctx)
	if err != nil {
		l.logger.Debug("light: refresh failed", "error", err)
		l.clearConnectionLocked()
		return
	}

	wasConnected := l.connected
	l.connected = true
	l.on = props.Power
	l.brightness = props.Brightness
	l.color = color.FromPackedInt(props.RGB)
	l.flowing = props.Flowing
	if !props.Flowing {
		l.activeEffect = nil
	}
	if !wasConnected {
		l.logger.Info("light: connected")
		l.publish(events.LightConnected)
	}
}

// ID returns the persisted identity of the bulb.
func (l *Light) ID() string { return l.id }

// Address returns the bulb's network address. Immutable after construction.
func (l *Light) Address() string { return l.addr }

// Name returns the user label.
func (l *Light) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// IsDefault reports membership in the default group.
func (l *Light) IsDefault() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isDefault
}

// IsConnected reports whether the last device call or refresh succeeded.
func (l *Light) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Snapshot returns a copy of the cached state. It never touches the device.
func (l *Light) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		ID:          l.id,
		Address:     l.addr,
		Name:        l.name,
		IsDefault:   l.isDefault,
		IsConnected: l.connected,
	}
	if l.connected {
		live := &LiveState{
			On:         l.on,
			Brightness: l.brightness,
			Color:      l.color.Hex(),
			IsFlowing:  l.flowing,
		}
		if l.activeEffect != nil {
			live.Effect = l.activeEffect.Name
			live.EffectParams = l.activeEffect.Params
		}
		s.Live = live
	}
	return s
}

// SetName updates the user label and persists it. No device call.
func (l *Light) SetName(ctx context.Context, name string) error {
	if len([]rune(name)) > l.opts.MaxNameLength {
		return errors.Validationf("light name may have a maximum of %d characters", l.opts.MaxNameLength)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.name
	l.name = name
	if err := l.store.Upsert(ctx, l.recordLocked()); err != nil {
		l.name = previous
		return errors.LogErrorAndReturn(l.logger, err, "light: failed to persist name", "name", name)
	}
	return nil
}

// SetDefault updates default-group membership and persists it. A default
// light is one that group actions apply to; a non-default light only
// changes state when addressed directly.
func (l *Light) SetDefault(ctx context.Context, isDefault bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.isDefault
	l.isDefault = isDefault
	if err := l.store.Upsert(ctx, l.recordLocked()); err != nil {
		l.isDefault = previous
		return errors.LogErrorAndReturn(l.logger, err, "light: failed to persist default flag", "is_default", isDefault)
	}
	return nil
}

// SetBrightness commands a new brightness. The cache is updated only after
// the device reports the call as taken; the next refresh remains the
// authority.
func (l *Light) SetBrightness(ctx context.Context, brightness int) error {
	if brightness < config.MinBrightness || brightness > config.MaxBrightness {
		return errors.Validationf("brightness must be between %d and %d, got %d",
			config.MinBrightness, config.MaxBrightness, brightness)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.bulb.SetBrightness(ctx, brightness); err != nil {
		return l.disconnectLocked(err)
	}
	l.brightness = brightness
	return nil
}

// SetColor commands a new color.
func (l *Light) SetColor(ctx context.Context, c color.Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, g, b := c.RGB()
	if err := l.bulb.SetColor(ctx, r, g, b); err != nil {
		return l.disconnectLocked(err)
	}
	l.color = c
	return nil
}

// SetColorHex commands a new color from a hex string. A malformed string
// fails with a validation error before any device call.
func (l *Light) SetColorHex(ctx context.Context, hex string) error {
	c, err := color.FromHex(hex)
	if err != nil {
		return err
	}
	return l.SetColor(ctx, c)
}

// SetColorRGB commands a new color from its channels.
func (l *Light) SetColorRGB(ctx context.Context, r, g, b uint8) error {
	return l.SetColor(ctx, color.New(r, g, b))
}

// SetPower turns the bulb on or off. Turning off also clears any active
// effect: the device cannot run a flow while off.
func (l *Light) SetPower(ctx context.Context, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.bulb.SetPower(ctx, on); err != nil {
		return l.disconnectLocked(err)
	}
	l.on = on
	if !on {
		l.clearEffectLocked()
	}
	return nil
}

// SetEffect builds and starts the named effect. Unknown names or bad
// parameters fail with a configuration error before any device call,
// distinguishing a caller mistake from a hardware failure.
func (l *Light) SetEffect(ctx context.Context, name string, params map[string]any) error {
	eff, err := effect.Build(name, params)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	count, steps := eff.Flow()
	if err := l.bulb.StartFlow(ctx, count, steps); err != nil {
		return l.disconnectLocked(err)
	}
	l.flowing = true
	l.activeEffect = eff
	return nil
}

// StopEffect stops any running flow and clears effect state.
func (l *Light) StopEffect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.bulb.StopFlow(ctx); err != nil {
		return l.disconnectLocked(err)
	}
	l.clearEffectLocked()
	return nil
}

// Pulse flashes a short color pulse on the bulb. The pulse is transient and
// self-terminating, so it is not recorded as an active effect; the next
// refresh reports whatever the device settles on.
func (l *Light) Pulse(ctx context.Context, c color.Color, duration time.Duration) error {
	count, steps := effect.Pulse(c, duration)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.bulb.StartFlow(ctx, count, steps); err != nil {
		return l.disconnectLocked(err)
	}
	return nil
}

// recordLocked builds the persistence record from current state.
func (l *Light) recordLocked() store.Light {
	return store.Light{
		ID:        l.id,
		Address:   l.addr,
		Name:      l.name,
		IsDefault: l.isDefault,
	}
}

// clearEffectLocked resets the fields that indicate a running effect.
func (l *Light) clearEffectLocked() {
	l.flowing = false
	l.activeEffect = nil
}

// clearConnectionLocked resets live state to the disconnected defaults.
func (l *Light) clearConnectionLocked() {
	wasConnected := l.connected
	l.connected = false
	l.on = false
	l.brightness = 0
	l.color = color.Color{}
	l.clearEffectLocked()
	if wasConnected {
		l.logger.Info("light: disconnected")
		l.publish(events.LightDisconnected)
	}
}

// disconnectLocked records a failed device call: live state is cleared and
// the caller gets a device error naming the bulb. Recovery happens on a
// later refresh tick, never by retrying the failing call.
func (l *Light) disconnectLocked(cause error) error {
	l.logger.Error("light: device call failed", "error", cause)
	l.clearConnectionLocked()
	return errors.Devicef("cannot reach bulb %s: %v", l.addr, cause)
}

func (l *Light) publish(t events.EventType) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.NewEvent(t, map[string]string{
		"id":      l.id,
		"address": l.addr,
	}))
}
