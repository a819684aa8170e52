// Package channel generates the synthetic channel realisations used by the
// benchmark sweeps and records how they were produced.
package channel

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

// ChannelPath is the dataset holding numChannels × maxUE × maxUE channels
const ChannelPath = "/channel"

// Generator draws maxUE × maxUE matrices of circularly symmetric complex
// Gaussian entries with unit variance. Entries are drawn row-major, real
// part first, so a generator restored from a state taken between two
// channels continues the sequence exactly.
type Generator struct {
	src   *rand.PCG
	norm  distuv.Normal
	maxUE int
}

// NewGenerator seeds a generator for maxUE × maxUE channels
func NewGenerator(seed1, seed2 uint64, maxUE int) *Generator {
	src := rand.NewPCG(seed1, seed2)
	return &Generator{
		src:   src,
		norm:  distuv.Normal{Mu: 0, Sigma: math.Sqrt(0.5), Src: src},
		maxUE: maxUE,
	}
}

// Restore rebuilds a generator from a captured state
func Restore(state []byte, maxUE int) (*Generator, error) {
	g := NewGenerator(0, 0, maxUE)
	if err := g.src.UnmarshalBinary(state); err != nil {
		return nil, fmt.Errorf("invalid PCG state: %w", err)
	}
	return g, nil
}

// State captures the generator state
func (g *Generator) State() ([]byte, error) {
	return g.src.MarshalBinary()
}

// MaxUE returns the matrix dimension
func (g *Generator) MaxUE() int { return g.maxUE }

// Next fills ch, which must hold maxUE × maxUE entries, with one channel
func (g *Generator) Next(ch []complex128) {
	for i := range ch {
		re := g.norm.Rand()
		im := g.norm.Rand()
		ch[i] = complex(re, im)
	}
}

// Draw returns count channels as a count × maxUE × maxUE array
func (g *Generator) Draw(count int) *ndarray.Array[complex128] {
	a := ndarray.New([]int{count, g.maxUE, g.maxUE}, complex128(0))
	for c := 0; c < count; c++ {
		g.Next(a.Slab(c))
	}
	return a
}

// Replay regenerates count channels from a captured state
func Replay(state []byte, maxUE, count int) (*ndarray.Array[complex128], error) {
	g, err := Restore(state, maxUE)
	if err != nil {
		return nil, err
	}
	return g.Draw(count), nil
}

// Options configures a channel file
type Options struct {
	OutFile     string
	NumChannels int
	MaxUE       int
	FirstBatch  int
	Seed1       uint64
	Seed2       uint64
}

// Report describes a generated channel file
type Report struct {
	NumChannels int                      `json:"num_channels"`
	MaxUE       int                      `json:"max_ue"`
	States      []models.ProvenanceState `json:"states"`
	Runtime     time.Duration            `json:"runtime"`
}

// Generate writes a fresh channel file. The channel dataset starts NaN
// filled and is written in two batches: the first FirstBatch channels,
// then the rest. The generator state is captured before each batch and
// stored with the provenance record.
func Generate(ctx context.Context, opts Options, logger zerolog.Logger) (*Report, error) {
	startTime := time.Now()
	if opts.NumChannels <= 0 || opts.MaxUE <= 0 {
		return nil, fmt.Errorf("channel count and size must be positive, got %d and %d", opts.NumChannels, opts.MaxUE)
	}

	out, err := container.Create(opts.OutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel file: %w", err)
	}
	defer out.Close()

	if err := writeProvenance(out, logger); err != nil {
		return nil, err
	}

	nan := complex(math.NaN(), math.NaN())
	ds, err := container.CreateDataset(out, ChannelPath, []int{opts.NumChannels, opts.MaxUE, opts.MaxUE}, 1, nan)
	if err != nil {
		return nil, err
	}

	g := NewGenerator(opts.Seed1, opts.Seed2, opts.MaxUE)
	report := &Report{NumChannels: opts.NumChannels, MaxUE: opts.MaxUE}

	first := min(max(opts.FirstBatch, 0), opts.NumChannels)
	for _, b := range [][2]int{{0, first}, {first, opts.NumChannels}} {
		if b[0] == b[1] {
			continue
		}
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		state, err := g.State()
		if err != nil {
			return report, err
		}
		report.States = append(report.States, models.ProvenanceState{BeforeChannelIdx: uint64(b[0]), State: state})

		batch := g.Draw(b[1] - b[0])
		err = out.Atomically(func() error {
			for c := 0; c < batch.Shape[0]; c++ {
				if err := ds.WriteChunk(batch.Slab(c), b[0]+c); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return report, fmt.Errorf("failed to write channels %d to %d: %w", b[0], b[1], err)
		}
		logger.Debug().Int("from", b[0]).Int("to", b[1]).Msg("Channel batch written")
	}

	if err := container.WriteSlice(out, StatePath, report.States); err != nil {
		return report, err
	}

	report.Runtime = time.Since(startTime)
	logger.Info().
		Int("channels", opts.NumChannels).
		Int("max_ue", opts.MaxUE).
		Int("states", len(report.States)).
		Dur("runtime", report.Runtime).
		Msg("Channel generation completed")
	return report, nil
}

// ReadStates returns the generator states stored in a channel file
func ReadStates(f *container.File) ([]models.ProvenanceState, error) {
	return container.ReadSlice[models.ProvenanceState](f, StatePath)
}
