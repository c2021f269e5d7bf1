package plan

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// RandomRange draws one delta uniformly from [Left, Right], negated when Sign
// is negative.
type RandomRange struct {
	Sign  int `yaml:"sign" json:"sign"`
	Left  int `yaml:"left" json:"left"`
	Right int `yaml:"right" json:"right"`
}

// ActionLoad is the authored load of one action. Exactly one form is set:
// Ramp (a single count added at the first interval and held), Fixed deltas,
// or Random ranges.
type ActionLoad struct {
	Ramp   *int
	Fixed  []int
	Random []RandomRange
}

// UnmarshalYAML accepts an integer, a list of integers or a list of ranges.
func (l *ActionLoad) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("ramp: %w", err)
		}
		l.Ramp = &n
		return nil
	case yaml.SequenceNode:
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
			return node.Decode(&l.Random)
		}
		return node.Decode(&l.Fixed)
	default:
		return fmt.Errorf("line %d: action load must be an integer or a list", node.Line)
	}
}

// Definition is a human-authored test run.
type Definition struct {
	Intervals []int                 `yaml:"intervals"`
	Actions   map[string]ActionLoad `yaml:"actions"`
}

// LoadDefinition reads a YAML or JSON definition file.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a YAML or JSON definition.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	return def, nil
}

// NewRand returns the random source used when none is injected. It is seeded
// once per process.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Normalize materializes concrete deltas. Random ranges consume one draw each
// from rnd in interval order, actions visited in sorted order, so a seeded
// source yields a reproducible plan.
func Normalize(def Definition, rnd *rand.Rand) (Plan, error) {
	if rnd == nil {
		rnd = NewRand()
	}

	p := Plan{
		Intervals: append([]int(nil), def.Intervals...),
		Actions:   make(map[string][]int, len(def.Actions)),
	}

	var issues []string
	names := make([]string, 0, len(def.Actions))
	for name := range def.Actions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		load := def.Actions[name]
		switch {
		case load.Ramp != nil:
			deltas := make([]int, len(def.Intervals))
			if len(deltas) > 0 {
				deltas[0] = *load.Ramp
			}
			p.Actions[name] = deltas
		case load.Random != nil:
			deltas := make([]int, 0, len(load.Random))
			for i, r := range load.Random {
				if r.Left > r.Right {
					issues = append(issues, fmt.Sprintf("action %s: range #%d has left %d greater than right %d", name, i+1, r.Left, r.Right))
					deltas = append(deltas, 0)
					continue
				}
				v := r.Left + rnd.Intn(r.Right-r.Left+1)
				if r.Sign < 0 {
					v = -v
				}
				deltas = append(deltas, v)
			}
			p.Actions[name] = deltas
		default:
			p.Actions[name] = append([]int{}, load.Fixed...)
		}
	}

	if len(issues) > 0 {
		return p, ValidationError{issues: issues}
	}
	return p, nil
}
