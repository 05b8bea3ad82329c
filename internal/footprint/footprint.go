// Package footprint sizes a model by replaying its allocation plan against
// ghost memory. Nothing is allocated on the device.
package footprint

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpubridge/internal/config"
	"github.com/fxnlabs/gpubridge/internal/gpu"
)

type StepResult struct {
	Name       string `json:"name"`
	Op         string `json:"op"`
	Bytes      int64  `json:"bytes"`
	TotalAfter int64  `json:"totalAfter"`
}

// Report is the outcome of one dry run. Byte figures exclude whatever the
// context already held when the run started.
type Report struct {
	Plan       string       `json:"plan"`
	Precision  string       `json:"precision"`
	Device     string       `json:"device"`
	PeakBytes  int64        `json:"peakBytes"`
	FinalBytes int64        `json:"finalBytes"`
	Steps      []StepResult `json:"steps"`
}

func (r *Report) String() string {
	return fmt.Sprintf("%s (%s) on %s: peak %s, final %s over %d steps",
		r.Plan, r.Precision, r.Device,
		humanize.IBytes(uint64(r.PeakBytes)), humanize.IBytes(uint64(r.FinalBytes)), len(r.Steps))
}

// Run replays plan on a ghost-mode borrower of s. The ghost blocks are
// discarded before Run returns; s itself is left as it was.
func Run[T gpu.Numeric](s *gpu.Session[T], plan *config.Plan, log *zap.Logger) (*Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("footprint").With(zap.String("plan", plan.Name))

	if want := plan.PlanPrecision(); want != s.Precision() {
		return nil, fmt.Errorf("plan %q is %s but the session is %s: %w", plan.Name, want, s.Precision(), gpu.ErrUnsupportedPrecision)
	}

	ghost, err := s.Borrow(true)
	if err != nil {
		return nil, fmt.Errorf("failed to borrow session: %w", err)
	}
	defer ghost.Close()

	acct := ghost.Accountant()
	base := acct.TotalBytes()
	report := &Report{
		Plan:      plan.Name,
		Precision: s.Precision().String(),
		Device:    s.DeviceName(),
		Steps:     make([]StepResult, 0, len(plan.Steps)),
	}
	blocks := make(map[string]gpu.MemoryHandle)

	for i, step := range plan.Steps {
		var bytes int64
		switch step.Op {
		case config.StepAlloc:
			h, err := ghost.AllocMemory(step.Count, step.Half)
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
			}
			blocks[step.Name] = h
			bytes = acct.Bytes(step.Count, step.Half)
		case config.StepFree:
			h, ok := blocks[step.Name]
			if !ok {
				return nil, fmt.Errorf("step %d: %s is not allocated", i, step.Name)
			}
			count, half, _ := acct.Lookup(h)
			if err := ghost.FreeMemory(h); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
			}
			delete(blocks, step.Name)
			bytes = -acct.Bytes(count, half)
		default:
			return nil, fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}

		total := acct.TotalBytes() - base
		report.PeakBytes = max(report.PeakBytes, total)
		report.Steps = append(report.Steps, StepResult{Name: step.Name, Op: step.Op, Bytes: bytes, TotalAfter: total})
		log.Debug("step replayed",
			zap.String("step", step.Name),
			zap.String("op", step.Op),
			zap.String("total", humanize.IBytes(uint64(total))))
	}

	report.FinalBytes = acct.TotalBytes() - base
	log.Info("dry run finished",
		zap.String("peak", humanize.IBytes(uint64(report.PeakBytes))),
		zap.String("final", humanize.IBytes(uint64(report.FinalBytes))))
	return report, nil
}
