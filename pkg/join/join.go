// Package join merges aggregated datasets that cover consecutive segments
// of the power axis into one dataset and archives the segments.
package join

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmatthiesen/efficient-global-opt/pkg/collect"
	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

// DefaultArchive is the group receiving the joined segments
const DefaultArchive = "individual_wp_results"

// AttrJoinedFrom lists the segments of a joined dataset
const AttrJoinedFrom = "joined from"

// Tolerance is the relative deviation allowed between axis steps
const Tolerance = 1e-9

var (
	// ErrNotIncreasing is returned when the joined axis is not strictly increasing
	ErrNotIncreasing = errors.New("power axis not increasing")
	// ErrNotEvenlySpaced is returned when the joined axis has more than one step size
	ErrNotEvenlySpaced = errors.New("power axis not evenly spaced")
)

// Options names the segments to join and the resulting dataset
type Options struct {
	File       string
	Names      []string
	JoinedName string
	Archive    string
}

// Report describes a completed join
type Report struct {
	Joined   string        `json:"joined"`
	Segments []string      `json:"segments"`
	P        []float64     `json:"p"`
	Joint    bool          `json:"joint"`
	Runtime  time.Duration `json:"runtime"`
}

type segment struct {
	name  string
	P     []float64
	raw   *ndarray.Array[models.Result]
	fill  models.Result
	joint *ndarray.Array[models.Result]
}

// Run joins the datasets opts.Names of opts.File, in the given order, into
// opts.JoinedName and moves the segments below the archive group. Every
// check runs before the file is touched and the mutation is a single
// transaction: on error the file is left as it was.
func Run(ctx context.Context, opts Options, logger zerolog.Logger) (*Report, error) {
	startTime := time.Now()
	if len(opts.Names) == 0 {
		return nil, fmt.Errorf("no datasets to join")
	}
	archive := opts.Archive
	if archive == "" {
		archive = DefaultArchive
	}
	archive = container.Clean(archive)
	joined := container.Clean(opts.JoinedName)
	if joined == "/" || archive == "/" {
		return nil, fmt.Errorf("joined name and archive must not be the root group")
	}

	f, err := container.Open(opts.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.File, err)
	}
	defer f.Close()

	segments := make([]segment, len(opts.Names))
	seen := make(map[string]bool, len(opts.Names))
	for i, name := range opts.Names {
		name = container.Clean(name)
		if seen[name] {
			return nil, fmt.Errorf("dataset %s listed twice", name)
		}
		seen[name] = true
		if name == archive || strings.HasPrefix(archive, name+"/") {
			return nil, fmt.Errorf("archive %s lies inside dataset %s", archive, name)
		}
		if segments[i], err = load(f, name); err != nil {
			return nil, err
		}
	}

	var P []float64
	for _, s := range segments {
		P = append(P, s.P...)
	}
	if err := CheckAxis(P); err != nil {
		return nil, err
	}

	withJoint := 0
	for _, s := range segments {
		if s.joint != nil {
			withJoint++
		}
	}
	if withJoint != 0 && withJoint != len(segments) {
		return nil, fmt.Errorf("%w: %d of %d datasets carry %s", models.ErrSchemaMismatch, withJoint, len(segments), collect.JointName)
	}

	raws := make([]*ndarray.Array[models.Result], len(segments))
	joints := make([]*ndarray.Array[models.Result], 0, withJoint)
	for i, s := range segments {
		raws[i] = s.raw
		if s.joint != nil {
			joints = append(joints, s.joint)
		}
	}
	raw, err := ndarray.Concat(1, raws...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSchemaMismatch, collect.RawName, err)
	}
	var joint *ndarray.Array[models.Result]
	if withJoint > 0 {
		if joint, err = ndarray.Concat(1, joints...); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrSchemaMismatch, collect.JointName, err)
		}
	}

	if ok, err := f.Has(joined); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%s: %w", joined, container.ErrExists)
	}
	if ok, err := f.Has(archive); err != nil {
		return nil, err
	} else if ok {
		isGroup, err := f.IsGroup(archive)
		if err != nil {
			return nil, err
		}
		if !isGroup {
			return nil, fmt.Errorf("archive %s: %w", archive, container.ErrNotGroup)
		}
	}
	for _, s := range segments {
		slot := container.Join(archive, s.name)
		if ok, err := f.Has(slot); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("archive slot %s: %w", slot, container.ErrExists)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	names := make([]string, len(segments))
	for i, s := range segments {
		names[i] = s.name
	}

	err = f.Atomically(func() error {
		input := container.Join(joined, collect.InputName)
		if err := container.CopyTree(f, container.Join(segments[0].name, collect.InputName), f, input); err != nil {
			return err
		}
		pPath := container.Join(input, "P")
		if err := f.Delete(pPath); err != nil {
			return err
		}
		if err := container.WriteSlice(f, pPath, P); err != nil {
			return err
		}
		if err := container.WriteArray(f, container.Join(joined, collect.RawName), raw, 2, segments[0].fill); err != nil {
			return err
		}
		if joint != nil {
			if err := container.WriteArray(f, container.Join(joined, collect.JointName), joint, 2, segments[0].fill); err != nil {
				return err
			}
		}
		if err := f.SetAttr(joined, AttrJoinedFrom, strings.Join(names, ",")); err != nil {
			return err
		}

		if err := f.CreateGroup(archive); err != nil {
			return err
		}
		for _, s := range segments {
			if err := f.Move(s.name, container.Join(archive, s.name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join into %s: %w", joined, err)
	}

	report := &Report{
		Joined:   joined,
		Segments: names,
		P:        P,
		Joint:    joint != nil,
		Runtime:  time.Since(startTime),
	}
	logger.Info().
		Str("joined", joined).
		Strs("segments", names).
		Int("power_levels", len(P)).
		Str("archive", archive).
		Dur("runtime", report.Runtime).
		Msg("Datasets joined")
	return report, nil
}

func load(f *container.File, name string) (segment, error) {
	s := segment{name: name}
	var err error
	if s.P, err = container.ReadSlice[float64](f, container.Join(name, collect.InputName, "P")); err != nil {
		return s, fmt.Errorf("dataset %s: %w", name, err)
	}

	raw, err := container.OpenDataset[models.Result](f, container.Join(name, collect.RawName))
	if err != nil {
		return s, fmt.Errorf("dataset %s: %w", name, err)
	}
	if s.raw, err = raw.Read(); err != nil {
		return s, err
	}
	s.fill = raw.Fill()
	if s.raw.Ndim() != 3 || s.raw.Shape[1] != len(s.P) {
		return s, fmt.Errorf("%w: %s has shape %v for %d power levels", models.ErrSchemaMismatch, raw.Path(), s.raw.Shape, len(s.P))
	}

	jointPath := container.Join(name, collect.JointName)
	if ok, err := f.Has(jointPath); err != nil {
		return s, err
	} else if ok {
		if s.joint, err = container.ReadArray[models.Result](f, jointPath); err != nil {
			return s, err
		}
		if s.joint.Ndim() != 2 || s.joint.Shape[1] != len(s.P) {
			return s, fmt.Errorf("%w: %s has shape %v for %d power levels", models.ErrSchemaMismatch, jointPath, s.joint.Shape, len(s.P))
		}
	}
	return s, nil
}

// CheckAxis verifies that P is strictly increasing with a single step size
func CheckAxis(P []float64) error {
	for i := 1; i < len(P); i++ {
		if !(P[i] > P[i-1]) {
			return fmt.Errorf("%w: P[%d] = %g follows P[%d] = %g", ErrNotIncreasing, i, P[i], i-1, P[i-1])
		}
	}
	if len(P) < 3 {
		return nil
	}
	step := P[1] - P[0]
	for i := 2; i < len(P); i++ {
		d := P[i] - P[i-1]
		if math.Abs(d-step) > Tolerance*math.Max(math.Abs(d), math.Abs(step)) {
			return fmt.Errorf("%w: step %g at P[%d], expected %g", ErrNotEvenlySpaced, d, i, step)
		}
	}
	return nil
}
