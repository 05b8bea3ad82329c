package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fxnlabs/gpubridge/internal/gpu"
)

// Plan ops.
const (
	StepAlloc = "alloc"
	StepFree  = "free"
)

// Plan is a named sequence of allocations and frees replayed in ghost mode
// to size a model before touching the device.
type Plan struct {
	Name      string `yaml:"name"`
	Precision string `yaml:"precision"`
	Steps     []Step `yaml:"steps"`
}

type Step struct {
	Op    string `yaml:"op"`
	Name  string `yaml:"name"`
	Count int64  `yaml:"count"`
	Half  bool   `yaml:"half"`
}

func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a plan document.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if plan.Precision == "" {
		plan.Precision = defaultPrecision
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks that every free names a block allocated earlier and still
// live, and that allocation sizes are positive.
func (p *Plan) Validate() error {
	prec, err := gpu.ParsePrecision(p.Precision)
	if err != nil {
		return fmt.Errorf("plan %q: %w", p.Name, err)
	}
	live := make(map[string]bool)
	for i, s := range p.Steps {
		if s.Name == "" {
			return fmt.Errorf("plan %q step %d: missing name", p.Name, i)
		}
		switch s.Op {
		case StepAlloc:
			if s.Count <= 0 {
				return fmt.Errorf("plan %q step %d (%s): count must be positive", p.Name, i, s.Name)
			}
			if s.Half && prec != gpu.PrecisionFloat {
				return fmt.Errorf("plan %q step %d (%s): %w", p.Name, i, s.Name, gpu.ErrHalfUnsupported)
			}
			if live[s.Name] {
				return fmt.Errorf("plan %q step %d: %s is already allocated", p.Name, i, s.Name)
			}
			live[s.Name] = true
		case StepFree:
			if !live[s.Name] {
				return fmt.Errorf("plan %q step %d: %s is not allocated", p.Name, i, s.Name)
			}
			delete(live, s.Name)
		default:
			return fmt.Errorf("plan %q step %d: unknown op %q", p.Name, i, s.Op)
		}
	}
	return nil
}

// PlanPrecision returns the parsed plan precision.
func (p *Plan) PlanPrecision() gpu.Precision {
	prec, _ := gpu.ParsePrecision(p.Precision)
	return prec
}
