// Package collect gathers the result files of a parameter sweep into one
// aggregated dataset laid out on the WP grid.
package collect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/results"
	"github.com/bmatthiesen/efficient-global-opt/pkg/workpackage"
)

// Dataset names below the aggregated group
const (
	InputName = "input"
	RawName   = "raw_results"
	JointName = "joint_results"
)

// Group attributes written by Run
const (
	AttrCollectionID = "collection id"
	AttrGlobPattern  = "glob pattern"
	AttrResultsPath  = "results path"
	AttrWPFile       = "wp file"
	AttrCollectedAt  = "collected at"
)

// ErrMixedWPIndex is returned for a result file whose records disagree on
// their WP index
var ErrMixedWPIndex = errors.New("mixed WP indices in result file")

// Options selects the inputs and the target of a collection pass
type Options struct {
	WPFile      string
	OutFile     string
	DatasetName string
	ResultsPath string
	Pattern     string
}

// Report summarises a collection pass
type Report struct {
	CollectionID string        `json:"collection_id"`
	Files        int           `json:"files"`
	Collected    int           `json:"collected"`
	Skipped      []string      `json:"skipped"`
	Slots        int           `json:"slots"`
	Joint        bool          `json:"joint"`
	Runtime      time.Duration `json:"runtime"`
}

// Run collects every result file matching opts.Pattern below
// opts.ResultsPath into the group opts.DatasetName of opts.OutFile. An
// existing group of that name is replaced. Each file is written to disk as
// soon as it is read, so a pass aborted by a fatal error leaves the files
// processed so far in place.
func Run(ctx context.Context, opts Options, logger zerolog.Logger) (*Report, error) {
	startTime := time.Now()
	if container.Clean(opts.DatasetName) == "/" {
		return nil, fmt.Errorf("dataset name is required")
	}
	report := &Report{CollectionID: uuid.NewString(), Skipped: make([]string, 0)}

	wp, err := container.OpenReadOnly(opts.WPFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open WP file: %w", err)
	}
	defer wp.Close()

	table, err := workpackage.ReadFrom(wp)
	if err != nil {
		return nil, fmt.Errorf("invalid WP file %s: %w", opts.WPFile, err)
	}
	rows, cols := table.GridShape()

	out, err := container.Open(opts.OutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	defer out.Close()

	group := container.Clean(opts.DatasetName)
	err = out.Atomically(func() error {
		if ok, err := out.Has(group); err != nil {
			return err
		} else if ok {
			logger.Info().Str("dataset", group).Msg("Replacing existing dataset")
			if err := out.Delete(group); err != nil {
				return err
			}
		}
		if err := container.CopyTree(wp, workpackage.InputGroup, out, container.Join(group, InputName)); err != nil {
			return fmt.Errorf("failed to copy WP input: %w", err)
		}
		attrs := [][2]string{
			{AttrCollectionID, report.CollectionID},
			{AttrGlobPattern, opts.Pattern},
			{AttrResultsPath, opts.ResultsPath},
			{AttrWPFile, opts.WPFile},
			{AttrCollectedAt, startTime.UTC().Format(time.RFC3339)},
		}
		for _, kv := range attrs {
			if err := out.SetAttr(group, kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dataset %s: %w", group, err)
	}

	files, err := results.Glob(opts.ResultsPath, opts.Pattern)
	if err != nil {
		return nil, err
	}
	report.Files = len(files)

	logger.Info().
		Str("dataset", group).
		Int("channels", rows).
		Int("power_levels", cols).
		Int("files", len(files)).
		Msg("Starting collection")

	var (
		raw    *container.Dataset[models.Result]
		joint  *container.Dataset[models.Result]
		schema models.Schema
	)

	for _, fn := range files {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		recs, err := results.Read(fn)
		if errors.Is(err, results.ErrUnreadable) {
			logger.Warn().Err(err).Str("file", fn).Msg("Skipping unreadable result file")
			report.Skipped = append(report.Skipped, fn)
			continue
		} else if err != nil {
			return report, err
		}

		if raw == nil {
			schema = models.SchemaOf(recs[0])
			report.Slots = len(recs)
			report.Joint = len(recs) > 1

			fill := models.Unsolved(schema)
			raw, err = container.CreateDataset(out, container.Join(group, RawName), []int{rows, cols, report.Slots}, 2, fill)
			if err != nil {
				return report, err
			}
			if report.Joint {
				joint, err = container.CreateDataset(out, container.Join(group, JointName), []int{rows, cols}, 2, fill)
				if err != nil {
					return report, err
				}
			}
			logger.Debug().
				Int("slots", report.Slots).
				Str("schema", schema.String()).
				Str("file", fn).
				Msg("Record layout fixed by first file")
		}

		if len(recs) > report.Slots {
			return report, fmt.Errorf("%w: %s holds %d records, dataset has %d slots", models.ErrSchemaMismatch, fn, len(recs), report.Slots)
		}
		if got := models.SchemaOf(recs[0]); got != schema {
			return report, fmt.Errorf("%w: %s has %s, expected %s", models.ErrSchemaMismatch, fn, got, schema)
		}

		idx, err := results.WPIndex(recs)
		if err != nil {
			return report, fmt.Errorf("%w: %s: %v", ErrMixedWPIndex, fn, err)
		}
		row, col, err := table.Lookup(idx)
		if err != nil {
			return report, fmt.Errorf("%s: %w", fn, err)
		}

		// short sequences fill the leading slots, the rest stay unsolved
		slab := recs
		if len(recs) < report.Slots {
			slab = make([]models.Result, report.Slots)
			copy(slab, recs)
			for i := len(recs); i < len(slab); i++ {
				slab[i] = models.Unsolved(schema)
			}
		}
		if err := raw.WriteChunk(slab, row, col); err != nil {
			return report, err
		}
		if joint != nil {
			if err := joint.WriteChunk([]models.Result{JointRecord(recs)}, row, col); err != nil {
				return report, err
			}
		}
		report.Collected++
	}

	if raw == nil {
		logger.Warn().Str("dataset", group).Msg("No readable result files, dataset holds input only")
	}

	report.Runtime = time.Since(startTime)
	logger.Info().
		Int("collected", report.Collected).
		Int("skipped", len(report.Skipped)).
		Bool("joint", report.Joint).
		Dur("runtime", report.Runtime).
		Msg("Collection completed")

	return report, nil
}

// JointRecord combines the run slots of one work package into a single
// record: the slot with the largest objective, charged with the runtime of
// all slots and the peak memory of the hungriest one. Its WPIndex is the
// winning slot's position in recs. NaN objectives never win; when every
// objective is NaN, slot 0 is taken.
func JointRecord(recs []models.Result) models.Result {
	best := -1
	runtimes := make([]float64, len(recs))
	peak := models.Missing
	for i, r := range recs {
		runtimes[i] = r.Runtime
		if r.PeakRSS != models.Missing && (peak == models.Missing || r.PeakRSS > peak) {
			peak = r.PeakRSS
		}
		if math.IsNaN(r.Objective) {
			continue
		}
		if best < 0 || r.Objective > recs[best].Objective {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}

	j := recs[best].Clone()
	j.Runtime = floats.Sum(runtimes)
	j.PeakRSS = peak
	j.WPIndex = uint64(best)
	return j
}
