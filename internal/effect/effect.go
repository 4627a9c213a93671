// Package effect maps named animated effects to the flow programs a bulb
// executes. Building an effect is pure: no device access happens here.
package effect

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bulbfleet/bulbd/internal/color"
	"github.com/bulbfleet/bulbd/internal/errors"
	"github.com/bulbfleet/bulbd/pkg/yeelight"
)

// Known effect names.
const (
	Disco  = "disco"
	Strobe = "strobe"
	LSD    = "lsd"
	Police = "police"
	Random = "random"
)

// Effect is a validated, buildable animated sequence. Count 0 loops forever.
type Effect struct {
	Name   string
	Params map[string]any
	Count  int
	steps  []yeelight.FlowStep
}

// Flow returns the repeat count and transition steps for the device.
func (e *Effect) Flow() (count int, steps []yeelight.FlowStep) {
	return e.Count, e.steps
}

// variant ties a parameter schema to a step builder.
type variant struct {
	schema *jsonschema.Schema
	build  func(p params) []yeelight.FlowStep
}

// Parameter schemas. additionalProperties:false is what turns an unknown or
// misspelled parameter into a configuration error instead of a silent no-op.
const (
	countOnlySchema = `{
		"type": "object",
		"properties": {
			"count": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`
	countDurationSchema = `{
		"type": "object",
		"properties": {
			"count":    {"type": "integer", "minimum": 0},
			"duration": {"type": "integer", "minimum": 50}
		},
		"additionalProperties": false
	}`
)

var variants = map[string]variant{
	Disco:  {mustCompile(Disco, countOnlySchema), buildDisco},
	Strobe: {mustCompile(Strobe, countOnlySchema), buildStrobe},
	LSD:    {mustCompile(LSD, countDurationSchema), buildLSD},
	Police: {mustCompile(Police, countDurationSchema), buildPolice},
	Random: {mustCompile(Random, countDurationSchema), buildRandom},
}

func mustCompile(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("effect %s: bad schema: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		panic(fmt.Sprintf("effect %s: %v", name, err))
	}
	return c.MustCompile(resource)
}

// Names returns the known effect names, sorted.
func Names() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build validates params against the named variant's schema and returns the
// ready effect. Unknown names and schema violations fail with
// ErrConfiguration; no partial result is returned.
func Build(name string, rawParams map[string]any) (*Effect, error) {
	v, ok := variants[name]
	if !ok {
		return nil, errors.Configurationf("unknown effect %q (known: %v)", name, Names())
	}

	normalized, err := normalizeParams(rawParams)
	if err != nil {
		return nil, errors.Configurationf("effect %s: parameters are incorrect", name)
	}
	if err := v.schema.Validate(map[string]any(normalized)); err != nil {
		return nil, errors.Configurationf("effect %s: parameters are incorrect: %v", name, err)
	}

	return &Effect{
		Name:   name,
		Params: normalized,
		Count:  normalized.intOr("count", 0),
		steps:  v.build(normalized),
	}, nil
}

// params is a JSON-normalized parameter map (numbers are float64).
type params map[string]any

// normalizeParams round-trips the map through JSON so schema validation sees
// canonical JSON values regardless of the caller's Go types. Values that
// cannot be represented as JSON are a caller mistake.
func normalizeParams(raw map[string]any) (params, error) {
	if raw == nil {
		return params{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p params) intOr(key string, fallback int) int {
	if v, ok := p[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return fallback
}

func (p params) durationOr(fallback time.Duration) time.Duration {
	if ms := p.intOr("duration", 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

const (
	red        = 0xff0000
	chartreuse = 0x80ff00
	cyan       = 0x00ffff
	violet     = 0x8000ff
	blue       = 0x0000ff
	white      = 0xffffff
	magenta    = 0xff00ff
	yellow     = 0xffff00
	spring     = 0x00ff80
)

// buildDisco flashes saturated colors on the beat: each color at full
// brightness, then dimmed, at 120 bpm.
func buildDisco(params) []yeelight.FlowStep {
	const beat = 500 * time.Millisecond
	colors := []int{red, chartreuse, cyan, violet}
	steps := make([]yeelight.FlowStep, 0, len(colors)*2)
	for _, c := range colors {
		steps = append(steps,
			yeelight.FlowStep{Duration: beat, Mode: yeelight.FlowModeColor, Value: c, Brightness: 100},
			yeelight.FlowStep{Duration: beat, Mode: yeelight.FlowModeColor, Value: c, Brightness: 1},
		)
	}
	return steps
}

// buildStrobe flashes white as fast as the device allows.
func buildStrobe(params) []yeelight.FlowStep {
	const flash = 50 * time.Millisecond
	return []yeelight.FlowStep{
		{Duration: flash, Mode: yeelight.FlowModeColor, Value: white, Brightness: 100},
		{Duration: flash, Mode: yeelight.FlowModeColor, Value: white, Brightness: 1},
	}
}

// buildLSD drifts through a psychedelic palette.
func buildLSD(p params) []yeelight.FlowStep {
	duration := p.durationOr(1000 * time.Millisecond)
	colors := []int{magenta, cyan, yellow, violet, spring}
	steps := make([]yeelight.FlowStep, 0, len(colors))
	for _, c := range colors {
		steps = append(steps, yeelight.FlowStep{
			Duration: duration, Mode: yeelight.FlowModeColor, Value: c, Brightness: 100,
		})
	}
	return steps
}

// buildPolice alternates red and blue.
func buildPolice(p params) []yeelight.FlowStep {
	duration := p.durationOr(300 * time.Millisecond)
	return []yeelight.FlowStep{
		{Duration: duration, Mode: yeelight.FlowModeColor, Value: red, Brightness: 100},
		{Duration: duration, Mode: yeelight.FlowModeColor, Value: blue, Brightness: 100},
	}
}

// buildRandom picks a fresh set of random colors for every build.
func buildRandom(p params) []yeelight.FlowStep {
	const colorCount = 9
	duration := p.durationOr(500 * time.Millisecond)
	steps := make([]yeelight.FlowStep, 0, colorCount)
	for i := 0; i < colorCount; i++ {
		steps = append(steps, yeelight.FlowStep{
			Duration: duration, Mode: yeelight.FlowModeColor, Value: rand.Intn(0x1000000), Brightness: 100,
		})
	}
	return steps
}

// PulseCount is how many times a notification pulse repeats.
const PulseCount = 3

// Pulse returns the short notification program: the color at full
// brightness, then dimmed, repeated PulseCount times. Used by the fleet
// manager's notify; not a user-selectable effect.
func Pulse(c color.Color, duration time.Duration) (count int, steps []yeelight.FlowStep) {
	return PulseCount, []yeelight.FlowStep{
		{Duration: duration, Mode: yeelight.FlowModeColor, Value: c.PackedInt(), Brightness: 100},
		{Duration: duration, Mode: yeelight.FlowModeColor, Value: c.PackedInt(), Brightness: 1},
	}
}
