package variation

// PipelineState is the position of one variant in the stage sequence.
type PipelineState int

const (
	StateInit PipelineState = iota
	StateGeometricDone
	StateColorDone
	StatePerturbed
	StateWatermarked
	StateFinal
)

func (s PipelineState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateGeometricDone:
		return "GEOMETRIC_DONE"
	case StateColorDone:
		return "COLOR_DONE"
	case StatePerturbed:
		return "PERTURBED"
	case StateWatermarked:
		return "WATERMARKED"
	case StateFinal:
		return "FINAL"
	default:
		return "UNKNOWN"
	}
}

// variantState tracks one variant through the state machine: the current
// state, the last good buffer, and which stages ran or were rolled back.
type variantState struct {
	state    PipelineState
	current  *PixelBuffer
	params   TransformParameters
	reduced  bool
	applied  []StageName
	skipped  []StageName
	failures []error
}

func newVariantState(source *PixelBuffer, params TransformParameters) *variantState {
	return &variantState{
		state:   StateInit,
		current: source.Snapshot(),
		params:  params,
	}
}

// advance commits a stage output and moves to the stage's target state.
func (v *variantState) advance(st stage, out *PixelBuffer) {
	v.current = out
	v.state = st.next
	v.applied = append(v.applied, st.name)
}

// rollback restores snap, records the failure and switches the remaining
// stages to reduced parameters. The state still advances so the sequence
// stays linear.
func (v *variantState) rollback(st stage, snap *PixelBuffer, err error) {
	v.current.Restore(snap)
	v.state = st.next
	v.skipped = append(v.skipped, st.name)
	v.failures = append(v.failures, err)
	if !v.reduced {
		v.params = v.params.Reduced()
		v.reduced = true
	}
}

// finish moves to FINAL.
func (v *variantState) finish() {
	v.state = StateFinal
}
