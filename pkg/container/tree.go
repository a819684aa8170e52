package container

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

// Clean normalises a node path to its absolute form
func Clean(p string) string {
	return path.Clean("/" + p)
}

// Join builds a node path from its elements
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

func parentOf(p string) string {
	if p == "/" {
		return ""
	}
	return path.Dir(p)
}

// subtree returns the SQL predicate and arguments selecting p and all its
// descendants. Names may contain LIKE wildcards, so prefixes are compared
// with substr.
func subtree(p string) (string, []any) {
	if p == "/" {
		return "1 = 1", nil
	}
	prefix := p + "/"
	return "(path = ? OR substr(path, 1, ?) = ?)", []any{p, utf8.RuneCountInString(prefix), prefix}
}

func (f *File) kind(p string) (string, error) {
	var kind string
	err := f.q().QueryRow(`SELECT kind FROM nodes WHERE path = ?`, p).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", p, err)
	}
	return kind, nil
}

// Has reports whether a node exists at p
func (f *File) Has(p string) (bool, error) {
	_, err := f.kind(Clean(p))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IsGroup reports whether p exists and is a group
func (f *File) IsGroup(p string) (bool, error) {
	kind, err := f.kind(Clean(p))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return kind == kindGroup, err
}

// CreateGroup creates the group p and any missing ancestors. Creating an
// existing group is a no-op.
func (f *File) CreateGroup(p string) error {
	if err := f.writable(); err != nil {
		return err
	}
	p = Clean(p)
	if p == "/" {
		return nil
	}

	if err := f.CreateGroup(parentOf(p)); err != nil {
		return err
	}

	kind, err := f.kind(p)
	switch {
	case err == nil && kind == kindGroup:
		return nil
	case err == nil:
		return fmt.Errorf("%s: %w", p, ErrNotGroup)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if _, err := f.q().Exec(`INSERT INTO nodes (path, parent, kind) VALUES (?, ?, ?)`, p, parentOf(p), kindGroup); err != nil {
		return fmt.Errorf("failed to create group %s: %w", p, err)
	}
	return nil
}

// Children returns the sorted names of the direct children of group p
func (f *File) Children(p string) ([]string, error) {
	p = Clean(p)
	kind, err := f.kind(p)
	if err != nil {
		return nil, err
	}
	if kind != kindGroup {
		return nil, fmt.Errorf("%s: %w", p, ErrNotGroup)
	}

	rows, err := f.q().Query(`SELECT path FROM nodes WHERE parent = ?`, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		names = append(names, path.Base(child))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes p and everything below it
func (f *File) Delete(p string) error {
	if err := f.writable(); err != nil {
		return err
	}
	p = Clean(p)
	if p == "/" {
		return fmt.Errorf("cannot delete the root group")
	}
	if _, err := f.kind(p); err != nil {
		return err
	}

	return f.Atomically(func() error {
		where, args := subtree(p)
		for _, table := range []string{"nodes", "chunks", "attrs"} {
			if _, err := f.q().Exec(`DELETE FROM `+table+` WHERE `+where, args...); err != nil {
				return fmt.Errorf("failed to delete %s: %w", p, err)
			}
		}
		return nil
	})
}

// Move renames the subtree at src to dst. Missing ancestors of dst are
// created; dst itself must not exist.
func (f *File) Move(src, dst string) error {
	if err := f.writable(); err != nil {
		return err
	}
	src, dst = Clean(src), Clean(dst)
	if src == "/" {
		return fmt.Errorf("cannot move the root group")
	}
	if dst == src || strings.HasPrefix(dst, src+"/") {
		return fmt.Errorf("cannot move %s into itself (%s)", src, dst)
	}
	if _, err := f.kind(src); err != nil {
		return err
	}
	if ok, err := f.Has(dst); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%s: %w", dst, ErrExists)
	}

	return f.Atomically(func() error {
		if err := f.CreateGroup(parentOf(dst)); err != nil {
			return err
		}

		where, args := subtree(src)
		rest := utf8.RuneCountInString(src) + 1

		nodeArgs := append([]any{dst, rest, src, parentOf(dst), dst, rest}, args...)
		if _, err := f.q().Exec(`UPDATE nodes SET
			path = ? || substr(path, ?),
			parent = CASE WHEN path = ? THEN ? ELSE ? || substr(parent, ?) END
			WHERE `+where, nodeArgs...); err != nil {
			return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
		}

		for _, table := range []string{"chunks", "attrs"} {
			if _, err := f.q().Exec(`UPDATE `+table+` SET path = ? || substr(path, ?) WHERE `+where,
				append([]any{dst, rest}, args...)...); err != nil {
				return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
			}
		}
		return nil
	})
}

// SetAttr stores a string attribute on node p
func (f *File) SetAttr(p, key, value string) error {
	if err := f.writable(); err != nil {
		return err
	}
	p = Clean(p)
	if _, err := f.kind(p); err != nil {
		return err
	}
	_, err := f.q().Exec(`INSERT INTO attrs (path, key, value) VALUES (?, ?, ?)
		ON CONFLICT(path, key) DO UPDATE SET value = excluded.value`, p, key, value)
	if err != nil {
		return fmt.Errorf("failed to set attribute %s on %s: %w", key, p, err)
	}
	return nil
}

// Attr returns the attribute key of node p
func (f *File) Attr(p, key string) (string, bool, error) {
	var value string
	err := f.q().QueryRow(`SELECT value FROM attrs WHERE path = ? AND key = ?`, Clean(p), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

type nodeRow struct {
	path, parent, kind, dtype, shape string
	chunkRank                        int
	fill                             []byte
}

type blobRow struct {
	path string
	idx  int64
	data []byte
}

type attrRow struct {
	path, key, value string
}

// CopyTree copies the subtree srcPath of src to dstPath in dst. src and dst
// may be the same file. dstPath must not exist.
func CopyTree(src *File, srcPath string, dst *File, dstPath string) error {
	if err := dst.writable(); err != nil {
		return err
	}
	srcPath, dstPath = Clean(srcPath), Clean(dstPath)
	if srcPath == "/" || dstPath == "/" {
		return fmt.Errorf("cannot copy to or from the root group")
	}
	if _, err := src.kind(srcPath); err != nil {
		return err
	}
	if ok, err := dst.Has(dstPath); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%s: %w", dstPath, ErrExists)
	}

	where, args := subtree(srcPath)
	rebase := func(p string) string {
		return dstPath + strings.TrimPrefix(p, srcPath)
	}

	var nodes []nodeRow
	rows, err := src.q().Query(`SELECT path, parent, kind, dtype, shape, chunk_rank, fill FROM nodes WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}
	for rows.Next() {
		var n nodeRow
		if err := rows.Scan(&n.path, &n.parent, &n.kind, &n.dtype, &n.shape, &n.chunkRank, &n.fill); err != nil {
			rows.Close()
			return err
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var chunks []blobRow
	rows, err = src.q().Query(`SELECT path, idx, data FROM chunks WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}
	for rows.Next() {
		var c blobRow
		if err := rows.Scan(&c.path, &c.idx, &c.data); err != nil {
			rows.Close()
			return err
		}
		chunks = append(chunks, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var attrs []attrRow
	rows, err = src.q().Query(`SELECT path, key, value FROM attrs WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}
	for rows.Next() {
		var a attrRow
		if err := rows.Scan(&a.path, &a.key, &a.value); err != nil {
			rows.Close()
			return err
		}
		attrs = append(attrs, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	return dst.Atomically(func() error {
		if err := dst.CreateGroup(parentOf(dstPath)); err != nil {
			return err
		}
		for _, n := range nodes {
			parent := parentOf(dstPath)
			if n.path != srcPath {
				parent = rebase(n.parent)
			}
			if _, err := dst.q().Exec(`INSERT INTO nodes (path, parent, kind, dtype, shape, chunk_rank, fill) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rebase(n.path), parent, n.kind, n.dtype, n.shape, n.chunkRank, n.fill); err != nil {
				return fmt.Errorf("failed to copy %s: %w", n.path, err)
			}
		}
		for _, c := range chunks {
			if _, err := dst.q().Exec(`INSERT INTO chunks (path, idx, data) VALUES (?, ?, ?)`, rebase(c.path), c.idx, c.data); err != nil {
				return fmt.Errorf("failed to copy %s: %w", c.path, err)
			}
		}
		for _, a := range attrs {
			if _, err := dst.q().Exec(`INSERT INTO attrs (path, key, value) VALUES (?, ?, ?)`, rebase(a.path), a.key, a.value); err != nil {
				return fmt.Errorf("failed to copy %s: %w", a.path, err)
			}
		}
		return nil
	})
}
