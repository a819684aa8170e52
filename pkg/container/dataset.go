package container

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/bmatthiesen/efficient-global-opt/pkg/ndarray"
)

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil)
)

// Dataset is a typed n-dimensional array stored in a container. Its data
// is split into chunks: the leading chunkRank indices select a chunk, the
// remaining axes span it. Chunks that were never written read back as the
// fill value.
type Dataset[T any] struct {
	f         *File
	path      string
	shape     []int
	chunkRank int
	fill      T
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

func encodeShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func decodeShape(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad shape %q: %w", s, err)
		}
		shape[i] = d
	}
	return shape, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return zenc.EncodeAll(buf.Bytes(), nil), nil
}

func decode(b []byte, v any) error {
	raw, err := zdec.DecodeAll(b, nil)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(v)
}

// CreateDataset creates a dataset at p. Missing parent groups are created.
func CreateDataset[T any](f *File, p string, shape []int, chunkRank int, fill T) (*Dataset[T], error) {
	if err := f.writable(); err != nil {
		return nil, err
	}
	p = Clean(p)
	if chunkRank < 0 || chunkRank > len(shape) {
		return nil, fmt.Errorf("chunk rank %d invalid for %d-d dataset %s", chunkRank, len(shape), p)
	}
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v of %s", shape, p)
		}
	}
	if ok, err := f.Has(p); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%s: %w", p, ErrExists)
	}

	fillBlob, err := encode(fill)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fill value of %s: %w", p, err)
	}

	err = f.Atomically(func() error {
		if err := f.CreateGroup(parentOf(p)); err != nil {
			return err
		}
		_, err := f.q().Exec(`INSERT INTO nodes (path, parent, kind, dtype, shape, chunk_rank, fill) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p, parentOf(p), kindDataset, typeName[T](), encodeShape(shape), chunkRank, fillBlob)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset %s: %w", p, err)
	}

	return &Dataset[T]{f: f, path: p, shape: append([]int(nil), shape...), chunkRank: chunkRank, fill: fill}, nil
}

// OpenDataset opens the dataset at p. The stored element type must be T.
func OpenDataset[T any](f *File, p string) (*Dataset[T], error) {
	p = Clean(p)
	var n nodeRow
	err := f.q().QueryRow(`SELECT kind, dtype, shape, chunk_rank, fill FROM nodes WHERE path = ?`, p).
		Scan(&n.kind, &n.dtype, &n.shape, &n.chunkRank, &n.fill)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", p, err)
	}
	if n.kind != kindDataset {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDataset)
	}
	if want := typeName[T](); n.dtype != want {
		return nil, fmt.Errorf("%s holds %s, requested %s: %w", p, n.dtype, want, ErrTypeMismatch)
	}

	shape, err := decodeShape(n.shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	d := &Dataset[T]{f: f, path: p, shape: shape, chunkRank: n.chunkRank}
	if err := decode(n.fill, &d.fill); err != nil {
		return nil, fmt.Errorf("failed to decode fill value of %s: %w", p, err)
	}
	return d, nil
}

// Path returns the node path of the dataset
func (d *Dataset[T]) Path() string { return d.path }

// Shape returns a copy of the dataset shape
func (d *Dataset[T]) Shape() []int { return append([]int(nil), d.shape...) }

// ChunkRank returns the number of leading axes that address chunks
func (d *Dataset[T]) ChunkRank() int { return d.chunkRank }

// ChunkLen returns the number of elements per chunk
func (d *Dataset[T]) ChunkLen() int { return ndarray.Size(d.shape[d.chunkRank:]) }

// Fill returns the fill value
func (d *Dataset[T]) Fill() T { return d.fillValue() }

// fillValue hands out a private copy of the fill value when the element
// type can clone itself, so that callers never share slice storage.
func (d *Dataset[T]) fillValue() T {
	if c, ok := any(d.fill).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return d.fill
}

func (d *Dataset[T]) chunkIndex(idx []int) (int64, error) {
	if len(idx) != d.chunkRank {
		return 0, fmt.Errorf("%s: chunk index needs %d components, got %d", d.path, d.chunkRank, len(idx))
	}
	var flat int64
	for axis, i := range idx {
		if i < 0 || i >= d.shape[axis] {
			return 0, fmt.Errorf("%s: index %d out of range for axis %d of size %d", d.path, i, axis, d.shape[axis])
		}
		flat = flat*int64(d.shape[axis]) + int64(i)
	}
	return flat, nil
}

// WriteChunk stores vals as the chunk selected by idx
func (d *Dataset[T]) WriteChunk(vals []T, idx ...int) error {
	if err := d.f.writable(); err != nil {
		return err
	}
	flat, err := d.chunkIndex(idx)
	if err != nil {
		return err
	}
	if len(vals) != d.ChunkLen() {
		return fmt.Errorf("%s: chunk needs %d elements, got %d", d.path, d.ChunkLen(), len(vals))
	}
	return d.writeFlat(flat, vals)
}

func (d *Dataset[T]) writeFlat(flat int64, vals []T) error {
	blob, err := encode(vals)
	if err != nil {
		return fmt.Errorf("failed to encode chunk %d of %s: %w", flat, d.path, err)
	}
	_, err = d.f.q().Exec(`INSERT INTO chunks (path, idx, data) VALUES (?, ?, ?)
		ON CONFLICT(path, idx) DO UPDATE SET data = excluded.data`, d.path, flat, blob)
	if err != nil {
		return fmt.Errorf("failed to write chunk %d of %s: %w", flat, d.path, err)
	}
	return nil
}

// ReadChunk returns the chunk selected by idx
func (d *Dataset[T]) ReadChunk(idx ...int) ([]T, error) {
	flat, err := d.chunkIndex(idx)
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = d.f.q().QueryRow(`SELECT data FROM chunks WHERE path = ? AND idx = ?`, d.path, flat).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		vals := make([]T, d.ChunkLen())
		for i := range vals {
			vals[i] = d.fillValue()
		}
		return vals, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %d of %s: %w", flat, d.path, err)
	}

	var vals []T
	if err := decode(blob, &vals); err != nil {
		return nil, fmt.Errorf("failed to decode chunk %d of %s: %w", flat, d.path, err)
	}
	if len(vals) != d.ChunkLen() {
		return nil, fmt.Errorf("%s: chunk %d holds %d elements, expected %d", d.path, flat, len(vals), d.ChunkLen())
	}
	return vals, nil
}

// Read loads the whole dataset
func (d *Dataset[T]) Read() (*ndarray.Array[T], error) {
	n := ndarray.Size(d.shape)
	a := &ndarray.Array[T]{Shape: d.Shape(), Data: make([]T, n)}
	chunkLen := d.ChunkLen()
	written := make([]bool, ndarray.Size(d.shape[:d.chunkRank]))

	rows, err := d.f.q().Query(`SELECT idx, data FROM chunks WHERE path = ?`, d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var flat int64
		var blob []byte
		if err := rows.Scan(&flat, &blob); err != nil {
			return nil, err
		}
		if flat < 0 || int(flat) >= len(written) {
			return nil, fmt.Errorf("%s: stray chunk %d", d.path, flat)
		}
		var vals []T
		if err := decode(blob, &vals); err != nil {
			return nil, fmt.Errorf("failed to decode chunk %d of %s: %w", flat, d.path, err)
		}
		if len(vals) != chunkLen {
			return nil, fmt.Errorf("%s: chunk %d holds %d elements, expected %d", d.path, flat, len(vals), chunkLen)
		}
		copy(a.Data[int(flat)*chunkLen:], vals)
		written[flat] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for c, ok := range written {
		if ok {
			continue
		}
		for i := c * chunkLen; i < (c+1)*chunkLen; i++ {
			a.Data[i] = d.fillValue()
		}
	}
	return a, nil
}

// Write stores every chunk of a, which must match the dataset shape
func (d *Dataset[T]) Write(a *ndarray.Array[T]) error {
	if !sameShape(a.Shape, d.shape) {
		return fmt.Errorf("%s: array shape %v does not match dataset shape %v", d.path, a.Shape, d.shape)
	}
	chunkLen := d.ChunkLen()
	chunks := ndarray.Size(d.shape[:d.chunkRank])
	return d.f.Atomically(func() error {
		for c := 0; c < chunks; c++ {
			if err := d.writeFlat(int64(c), a.Data[c*chunkLen:(c+1)*chunkLen]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteArray creates a dataset at p holding a
func WriteArray[T any](f *File, p string, a *ndarray.Array[T], chunkRank int, fill T) error {
	return f.Atomically(func() error {
		d, err := CreateDataset(f, p, a.Shape, chunkRank, fill)
		if err != nil {
			return err
		}
		return d.Write(a)
	})
}

// ReadArray loads the dataset at p
func ReadArray[T any](f *File, p string) (*ndarray.Array[T], error) {
	d, err := OpenDataset[T](f, p)
	if err != nil {
		return nil, err
	}
	return d.Read()
}

// WriteSlice stores a 1-d dataset at p
func WriteSlice[T any](f *File, p string, vals []T) error {
	var zero T
	return WriteArray(f, p, &ndarray.Array[T]{Shape: []int{len(vals)}, Data: vals}, 0, zero)
}

// ReadSlice loads a 1-d dataset at p
func ReadSlice[T any](f *File, p string) ([]T, error) {
	a, err := ReadArray[T](f, p)
	if err != nil {
		return nil, err
	}
	if a.Ndim() != 1 {
		return nil, fmt.Errorf("%s: expected 1-d dataset, got shape %v", Clean(p), a.Shape)
	}
	return a.Data, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
