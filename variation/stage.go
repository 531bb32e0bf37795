package variation

import (
	"errors"
	"fmt"
)

// StageName identifies a pipeline stage in logs, metrics and records.
type StageName string

const (
	StageGeometric StageName = "geometric"
	StageColor     StageName = "color"
	StagePerturb   StageName = "perturb"
	StageWatermark StageName = "watermark"
)

// ErrDegenerateOutput is wrapped by the guard when a stage output is empty
// or uniform while its input was not.
var ErrDegenerateOutput = errors.New("variation: stage produced degenerate output")

// StageError is a recoverable failure of one stage. The generator rolls the
// variant back to its last snapshot and continues.
type StageError struct {
	Stage  StageName
	State  PipelineState
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s (from %s): %s: %v", e.Stage, e.State, e.Reason, e.Err)
	}
	return fmt.Sprintf("stage %s (from %s): %s", e.Stage, e.State, e.Reason)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageEnv is what a stage may read besides its input buffer.
type stageEnv struct {
	params TransformParameters
	rng    *PRNG
	cfg    PerturbationConfig
	report *PerturbationReport

	// sourceLuma is the mean luma of the decoded source, before cropping.
	sourceLuma float64
}

// stage is one step of the fixed sequence.
type stage struct {
	name     StageName
	from     PipelineState
	next     PipelineState
	cosmetic bool
	run      func(in *PixelBuffer, env *stageEnv) (*PixelBuffer, error)
}

// defaultStages returns Geometric -> Color -> Perturb -> Watermark.
func defaultStages() []stage {
	return []stage{
		{
			name: StageGeometric,
			from: StateInit,
			next: StateGeometricDone,
			run: func(in *PixelBuffer, env *stageEnv) (*PixelBuffer, error) {
				return ApplyGeometric(in, env.params)
			},
		},
		{
			name: StageColor,
			from: StateGeometricDone,
			next: StateColorDone,
			run: func(in *PixelBuffer, env *stageEnv) (*PixelBuffer, error) {
				out, err := ApplyColor(in, env.params, env.rng, env.cfg)
				if err != nil {
					return nil, err
				}
				// Cropping already moved the mean of uneven sources.
				anchorLuminance(out, env.sourceLuma, env.cfg.MaxLuminanceDrift)
				return out, nil
			},
		},
		{
			name: StagePerturb,
			from: StateColorDone,
			next: StatePerturbed,
			run: func(in *PixelBuffer, env *stageEnv) (*PixelBuffer, error) {
				out, rep, err := ApplyPerturbation(in, env.params, env.rng, env.cfg)
				if env.report != nil {
					*env.report = rep
				}
				return out, err
			},
		},
		{
			name:     StageWatermark,
			from:     StatePerturbed,
			next:     StateWatermarked,
			cosmetic: true,
			run: func(in *PixelBuffer, env *stageEnv) (*PixelBuffer, error) {
				return ApplyWatermark(in, env.params, env.rng)
			},
		},
	}
}

// runStage executes st and applies the guard. Panics become a *StageError.
func runStage(st stage, in *PixelBuffer, env *stageEnv) (out *PixelBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &StageError{Stage: st.name, State: st.from, Reason: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	out, err = st.run(in, env)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StageError{Stage: st.name, State: st.from, Reason: "failed", Err: err}
	}

	if out.IsDegenerate(in) {
		return nil, &StageError{Stage: st.name, State: st.from, Reason: "guard", Err: ErrDegenerateOutput}
	}
	return out, nil
}
