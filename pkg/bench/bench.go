// Package bench aggregates the scaling benchmark sweeps into one file and
// derives the runtime tables over the number of users and the number of
// clusters.
//
// The three source sweeps use two key conventions. The 2- and 3-cluster
// sweeps are stored as raw results/NC_<clusters>/C_<users>; the 7-user
// sweep is stored as raw results/C_7/NC_<clusters>.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/models"
	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
	"github.com/bmatthiesen/efficient-global-opt/pkg/results"
)

// Node paths inside a benchmark file
const (
	RawGroup  = "/raw results"
	ByUEGroup = "/runtime_numUE"
	ByNCGroup = "/runtime_numNC"
	DataName  = "data"
	DimNCName = "dim1_numNC"
	DimUEName = "dim2_numUE"
)

// FixedUsers is the user count of the cluster sweep
const FixedUsers = 7

const (
	clusterKey = "NC_"
	userKey    = "C_"
)

// ClusterCounts are the cluster counts swept over the number of users
var ClusterCounts = []int{2, 3}

var (
	// ErrNonContiguous is returned when the discovered counts have gaps
	ErrNonContiguous = errors.New("counts do not form a contiguous range")
	// ErrWPOutOfRange is returned for a record addressing a channel beyond NumChannels
	ErrWPOutOfRange = errors.New("WP index outside channel range")
)

// Source is one benchmark sweep directory
type Source struct {
	Dir     string
	Pattern string
}

// Options configures an aggregation pass
type Options struct {
	OutFile     string
	Cluster2    Source
	Cluster3    Source
	Users7      Source
	NumChannels int
}

// Report summarises an aggregation pass
type Report struct {
	Files    int           `json:"files"`
	Stored   int           `json:"stored"`
	Skipped  []string      `json:"skipped"`
	Rejected []string      `json:"rejected"`
	NumUE    []int         `json:"num_ue"`
	NumNC    []int         `json:"num_nc"`
	Runtime  time.Duration `json:"runtime"`
}

type aggregator struct {
	out      *container.File
	numChan  int
	datasets map[string]*container.Dataset[models.Result]
	report   *Report
	logger   zerolog.Logger
}

// Run aggregates the three sweeps into a new file at opts.OutFile and
// writes both runtime tables.
func Run(ctx context.Context, opts Options, logger zerolog.Logger) (*Report, error) {
	startTime := time.Now()
	if opts.NumChannels <= 0 {
		return nil, fmt.Errorf("number of channels must be positive, got %d", opts.NumChannels)
	}

	out, err := container.Create(opts.OutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	a := &aggregator{
		out:      out,
		numChan:  opts.NumChannels,
		datasets: make(map[string]*container.Dataset[models.Result]),
		report:   &Report{Skipped: make([]string, 0), Rejected: make([]string, 0)},
		logger:   logger,
	}

	groups := []string{userPath(FixedUsers)}
	for _, nc := range ClusterCounts {
		groups = append(groups, clusterPath(nc))
	}
	for _, g := range groups {
		if err := out.CreateGroup(g); err != nil {
			return nil, err
		}
	}

	for _, src := range []Source{opts.Cluster2, opts.Cluster3} {
		if err := a.collect(ctx, src, a.storeByCluster); err != nil {
			return a.report, err
		}
	}
	if err := a.collect(ctx, opts.Users7, a.storeByUsers); err != nil {
		return a.report, err
	}

	if a.report.NumUE, err = a.writeByUE(); err != nil {
		return a.report, err
	}
	if a.report.NumNC, err = a.writeByNC(); err != nil {
		return a.report, err
	}

	a.report.Runtime = time.Since(startTime)
	logger.Info().
		Int("files", a.report.Files).
		Int("stored", a.report.Stored).
		Int("skipped", len(a.report.Skipped)).
		Int("rejected", len(a.report.Rejected)).
		Ints("num_ue", a.report.NumUE).
		Ints("num_nc", a.report.NumNC).
		Dur("runtime", a.report.Runtime).
		Msg("Benchmark aggregation completed")

	return a.report, nil
}

func clusterPath(nc int) string { return container.Join(RawGroup, clusterKey+strconv.Itoa(nc)) }
func userPath(ue int) string { return container.Join(RawGroup, userKey+strconv.Itoa(ue)) }

// ByClusterPath returns the dataset of the user sweep at nc clusters
func ByClusterPath(nc, ue int) string {
	return container.Join(clusterPath(nc), userKey+strconv.Itoa(ue))
}

// ByUsersPath returns the dataset of the cluster sweep at ue users
func ByUsersPath(ue, nc int) string {
	return container.Join(userPath(ue), clusterKey+strconv.Itoa(nc))
}

type storeFunc func(fn string, users, clusters int) (string, bool)

func (a *aggregator) storeByCluster(fn string, users, clusters int) (string, bool) {
	if !slices.Contains(ClusterCounts, clusters) {
		a.logger.Error().Str("file", fn).Int("clusters", clusters).Msg("Unexpected cluster count, skipping")
		return "", false
	}
	return ByClusterPath(clusters, users), true
}

func (a *aggregator) storeByUsers(fn string, users, clusters int) (string, bool) {
	if users != FixedUsers {
		a.logger.Error().Str("file", fn).Int("users", users).Msg("Unexpected user count, skipping")
		return "", false
	}
	return ByUsersPath(users, clusters), true
}

func (a *aggregator) collect(ctx context.Context, src Source, target storeFunc) error {
	files, err := results.Glob(src.Dir, src.Pattern)
	if err != nil {
		return err
	}
	a.report.Files += len(files)

	for _, fn := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		recs, err := results.Read(fn)
		if errors.Is(err, results.ErrUnreadable) {
			a.logger.Warn().Err(err).Str("file", fn).Msg("Skipping unreadable result file")
			a.report.Skipped = append(a.report.Skipped, fn)
			continue
		} else if err != nil {
			return err
		}

		rec := recs[0]
		p, ok := target(fn, len(rec.XoptC), len(rec.XoptNC))
		if !ok {
			a.report.Rejected = append(a.report.Rejected, fn)
			continue
		}
		if rec.WPIndex >= uint64(a.numChan) {
			return fmt.Errorf("%w: %s has WP index %d, sweep has %d channels", ErrWPOutOfRange, fn, rec.WPIndex, a.numChan)
		}

		d, err := a.dataset(p)
		if err != nil {
			return err
		}
		if err := d.WriteChunk([]models.Result{rec}, int(rec.WPIndex)); err != nil {
			return err
		}
		a.report.Stored++
	}
	return nil
}

// dataset returns the record dataset at p, allocating it on first use.
// Unwritten channels read back as zero records, so their runtime is
// treated as missing.
func (a *aggregator) dataset(p string) (*container.Dataset[models.Result], error) {
	if d, ok := a.datasets[p]; ok {
		return d, nil
	}
	d, err := container.CreateDataset(a.out, p, []int{a.numChan}, 1, models.Result{Status: models.StatusUnsolved})
	if err != nil {
		return nil, err
	}
	a.datasets[p] = d
	return d, nil
}

func (a *aggregator) writeByUE() ([]int, error) {
	counts := make([][]int, len(ClusterCounts))
	lo, hi := math.MaxInt, math.MinInt
	for i, nc := range ClusterCounts {
		keys, err := childCounts(a.out, clusterPath(nc), userKey)
		if err != nil {
			return nil, err
		}
		klo, khi, err := Contiguous(keys)
		if err != nil {
			return nil, fmt.Errorf("user counts under %s: %w", clusterPath(nc), err)
		}
		counts[i] = keys
		lo, hi = min(lo, klo), max(hi, khi)
	}
	numUE := countRange(lo, hi)

	data := ndarray.New([]int{len(ClusterCounts), len(numUE), a.numChan}, math.NaN())
	for i, nc := range ClusterCounts {
		for _, ue := range counts[i] {
			rt, err := a.runtimes(ByClusterPath(nc, ue))
			if err != nil {
				return nil, err
			}
			copy(data.Slab(i, ue-lo), rt)
		}
	}

	return numUE, a.out.Atomically(func() error {
		if err := container.WriteSlice(a.out, container.Join(ByUEGroup, DimNCName), ClusterCounts); err != nil {
			return err
		}
		if err := container.WriteSlice(a.out, container.Join(ByUEGroup, DimUEName), numUE); err != nil {
			return err
		}
		return container.WriteArray(a.out, container.Join(ByUEGroup, DataName), data, 2, math.NaN())
	})
}

func (a *aggregator) writeByNC() ([]int, error) {
	keys, err := childCounts(a.out, userPath(FixedUsers), clusterKey)
	if err != nil {
		return nil, err
	}
	for _, nc := range ClusterCounts {
		if !slices.Contains(keys, nc) {
			keys = append(keys, nc)
		}
	}
	lo, hi, err := Contiguous(keys)
	if err != nil {
		return nil, fmt.Errorf("cluster counts for %d users: %w", FixedUsers, err)
	}
	numNC := countRange(lo, hi)

	data := ndarray.New([]int{len(numNC), a.numChan}, math.NaN())
	for i, nc := range numNC {
		rt, err := a.runtimes(ByUsersPath(FixedUsers, nc))
		if errors.Is(err, container.ErrNotFound) {
			// counts covered by the user sweeps are not repeated in the cluster sweep
			rt, err = a.runtimes(ByClusterPath(nc, FixedUsers))
		}
		if err != nil {
			return nil, fmt.Errorf("no results for %d users and %d clusters: %w", FixedUsers, nc, err)
		}
		copy(data.Slab(i), rt)
	}

	return numNC, a.out.Atomically(func() error {
		if err := container.WriteSlice(a.out, container.Join(ByNCGroup, DimNCName), numNC); err != nil {
			return err
		}
		return container.WriteArray(a.out, container.Join(ByNCGroup, DataName), data, 1, math.NaN())
	})
}

// runtimes returns the per-channel runtime of the dataset at p. A zero
// runtime is never measured and reads back as NaN.
func (a *aggregator) runtimes(p string) ([]float64, error) {
	recs, err := container.ReadSlice[models.Result](a.out, p)
	if err != nil {
		return nil, err
	}
	rt := make([]float64, len(recs))
	for i, r := range recs {
		rt[i] = r.Runtime
		if rt[i] == 0 {
			rt[i] = math.NaN()
		}
	}
	return rt, nil
}

// childCounts parses the children of group p named <prefix><n>
func childCounts(f *container.File, p, prefix string) ([]int, error) {
	names, err := f.Children(p)
	if err != nil {
		return nil, err
	}
	counts := make([]int, 0, len(names))
	for _, name := range names {
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil || !strings.HasPrefix(name, prefix) {
			return nil, fmt.Errorf("unexpected node %s in %s", name, p)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// Contiguous returns the bounds of counts and checks that counts holds
// every integer between them exactly once
func Contiguous(counts []int) (lo, hi int, err error) {
	if len(counts) == 0 {
		return 0, 0, fmt.Errorf("%w: no counts", ErrNonContiguous)
	}
	sorted := slices.Clone(counts)
	slices.Sort(sorted)
	lo, hi = sorted[0], sorted[len(sorted)-1]
	for i, c := range sorted {
		if c != lo+i {
			return lo, hi, fmt.Errorf("%w: %v", ErrNonContiguous, sorted)
		}
	}
	return lo, hi, nil
}

func countRange(lo, hi int) []int {
	r := make([]int, 0, hi-lo+1)
	for c := lo; c <= hi; c++ {
		r = append(r, c)
	}
	return r
}
