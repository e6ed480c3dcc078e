package plan

import (
	"errors"
	"fmt"

	"github.com/tensorwave/shsynth/internal/numeric"
	"github.com/tensorwave/shsynth/topology"
)

// FFTChunkSize is the number of consecutive half-sphere rings dealt to
// a CPU as one block (spec.md §2/§4.4 step 4, FFT_CHUNK_SIZE).
const FFTChunkSize = 4

// Sentinel error kinds, per spec.md §7.
var (
	ErrConfiguration         = errors.New("plan: invalid configuration")
	ErrIO                    = errors.New("plan: resource I/O failure")
	ErrResourceExhaustion    = errors.New("plan: resource allocation failed")
	ErrCorruptionDuringExecute = errors.New("plan: corruption detected during execute")
)

// ResourceRooter is the minimal surface plan needs from a library
// context: where to find the resource file for a given Nside. It lets
// plan.New depend on shsynth.Context by interface rather than by
// import, avoiding an import cycle between the root package (which
// must import plan to expose plan.Plan) and plan itself.
type ResourceRooter interface {
	ResourcePath(nside int) string
}

// Config carries everything spec.md §4.4's plan_to_healpix needs beyond
// the resource root: problem size, the caller's coefficient/pixel
// buffers, the two debug/benchmark flags from spec.md §6
// (WAVEMOTH_MEASURE, WAVEMOTH_NO_RESOURCE_COPY), and pluggable
// collaborators (Topology, BLAS, FFT) that default to topology.Linux,
// numeric.NaiveBLAS and numeric.DFTPlanner when left nil.
type Config struct {
	NSide, LMax, MMax, NMaps, NThreads int

	// Input is the packed coefficient array described in spec.md §3's
	// "Coefficient layout (input)"; Output is the packed pixel array
	// described by "Pixel layout (output)", pre-sized by the caller to
	// NMaps*12*NSide*NSide float64s.
	Input, Output []float64

	// ResourcePath, if non-empty, overrides the path a ResourceRooter
	// would otherwise derive — the debug/benchmark escape hatch from
	// spec.md §4.4 step 5 ("or use caller-supplied path").
	ResourcePath string

	Measure        bool
	NoResourceCopy bool

	Topology topology.Topology
	BLAS     numeric.BLAS
	FFT      numeric.FFT
}

func (c Config) validate() error {
	if c.NSide <= 0 {
		return errConfigf("NSide must be positive, got %d", c.NSide)
	}
	if c.LMax < 0 || c.MMax < 0 || c.MMax > c.LMax {
		return errConfigf("invalid (LMax=%d, MMax=%d)", c.LMax, c.MMax)
	}
	if c.NMaps <= 0 {
		return errConfigf("NMaps must be positive, got %d", c.NMaps)
	}
	if c.NThreads <= 0 {
		return errConfigf("NThreads must be positive, got %d", c.NThreads)
	}
	wantInput := coefficientArrayLen(c.LMax, c.MMax, c.NMaps)
	if len(c.Input) < wantInput {
		return errConfigf("Input too short: have %d, want at least %d", len(c.Input), wantInput)
	}
	wantOutput := c.NMaps * 12 * c.NSide * c.NSide
	if len(c.Output) < wantOutput {
		return errConfigf("Output too short: have %d, want %d", len(c.Output), wantOutput)
	}
	return nil
}

func errConfigf(format string, args ...any) error {
	return &configError{msg: fmt.Sprintf(format, args...)}
}

type configError struct{ msg string }

func (e *configError) Error() string { return "plan: " + e.msg }
func (e *configError) Unwrap() error { return ErrConfiguration }
