// Package pathx builds collision-free archive paths.
//
// A Uniquifier remembers every path it has handed out and compares segments
// case-insensitively, so the resulting set can be extracted on filesystems
// that fold case. Returned paths keep the caller's original case.
package pathx

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how a colliding leaf name is made unique.
type Strategy int

const (
	// StrategySuffix inserts _N before the extension, counting up from 1.
	StrategySuffix Strategy = iota
	// StrategyUnderscore prepends a single underscore. It resolves one
	// collision per name; a second one is reported as ErrUnderscoreExhausted.
	StrategyUnderscore
)

var (
	ErrEmptyPath           = errors.New("empty path")
	ErrUnderscoreExhausted = errors.New("underscore strategy already used for this name")
)

func (s Strategy) String() string {
	switch s {
	case StrategySuffix:
		return "suffix"
	case StrategyUnderscore:
		return "underscore"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps "suffix" and "underscore" to their Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "suffix", "":
		return StrategySuffix, nil
	case "underscore":
		return StrategyUnderscore, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

// node is one path segment. Files and directories live in the same children
// map, keyed by the case-folded name.
type node struct {
	name     string
	dir      bool
	children map[string]*node
	// exact holds the exact-case names taken among children.
	exact map[string]struct{}
	// collisions counts suffixes handed out for this name.
	collisions int
}

func newNode(name string, dir bool) *node {
	return &node{
		name:     name,
		dir:      dir,
		children: make(map[string]*node),
		exact:    make(map[string]struct{}),
	}
}

func (n *node) insert(name string, dir bool) *node {
	child := newNode(name, dir)
	n.children[fold(name)] = child
	n.exact[name] = struct{}{}
	return child
}

// Uniquifier hands out unique paths. It is not safe for concurrent use; the
// export pipeline drives it from a single goroutine.
type Uniquifier struct {
	root *node
}

func NewUniquifier() *Uniquifier {
	return &Uniquifier{root: newNode("", true)}
}

// Add records path and returns it, or a renamed variant when a
// case-insensitive match already exists at the same level.
//
//	u.Add("/home/world.txt", StrategySuffix) // "/home/world.txt"
//	u.Add("/home/WORLD.txt", StrategySuffix) // "/home/WORLD_1.txt"
func (u *Uniquifier) Add(path string, strategy Strategy) (string, error) {
	prefix, segments := split(path)
	if len(segments) == 0 {
		return "", ErrEmptyPath
	}

	out := make([]string, 0, len(segments))
	cur := u.root

	for _, seg := range segments[:len(segments)-1] {
		next, name, err := u.enterDir(cur, seg, strategy)
		if err != nil {
			return "", err
		}
		out = append(out, name)
		cur = next
	}

	leaf := segments[len(segments)-1]
	name := leaf
	if existing, ok := cur.children[fold(leaf)]; ok {
		var err error
		name, err = resolve(cur, existing, leaf, strategy)
		if err != nil {
			return "", err
		}
	}
	cur.insert(name, false)
	out = append(out, name)

	return prefix + strings.Join(out, "/"), nil
}

// Exists reports whether path, compared case-insensitively segment by
// segment, was returned by Add or is a directory on the way to one. It never
// modifies the tree.
func (u *Uniquifier) Exists(path string) bool {
	_, segments := split(path)
	if len(segments) == 0 {
		return false
	}
	cur := u.root
	for _, seg := range segments {
		next, ok := cur.children[fold(seg)]
		if !ok {
			return false
		}
		cur = next
	}
	return true
}

// ExistsExact is Exists with case-sensitive comparison.
func (u *Uniquifier) ExistsExact(path string) bool {
	_, segments := split(path)
	if len(segments) == 0 {
		return false
	}
	cur := u.root
	for _, seg := range segments {
		if _, ok := cur.exact[seg]; !ok {
			return false
		}
		cur = cur.children[fold(seg)]
	}
	return true
}

// enterDir descends into the directory seg below parent, creating it when
// missing. A file holding the same folded name collides exactly like two
// files do; candidate names that are already directories are reused.
func (u *Uniquifier) enterDir(parent *node, seg string, strategy Strategy) (*node, string, error) {
	existing, ok := parent.children[fold(seg)]
	if !ok {
		return parent.insert(seg, true), seg, nil
	}
	if existing.dir {
		return existing, existing.name, nil
	}

	switch strategy {
	case StrategyUnderscore:
		name := "_" + seg
		if other, ok := parent.children[fold(name)]; ok {
			if other.dir {
				return other, other.name, nil
			}
			return nil, "", fmt.Errorf("%w: %q", ErrUnderscoreExhausted, seg)
		}
		return parent.insert(name, true), name, nil
	default:
		for n := 1; ; n++ {
			name := withSuffix(seg, n)
			other, ok := parent.children[fold(name)]
			if !ok {
				return parent.insert(name, true), name, nil
			}
			if other.dir {
				return other, other.name, nil
			}
		}
	}
}

func resolve(parent, existing *node, leaf string, strategy Strategy) (string, error) {
	switch strategy {
	case StrategyUnderscore:
		name := "_" + leaf
		if _, taken := parent.children[fold(name)]; taken {
			return "", fmt.Errorf("%w: %q", ErrUnderscoreExhausted, leaf)
		}
		return name, nil
	default:
		n := existing.collisions
		for {
			n++
			name := withSuffix(leaf, n)
			if _, taken := parent.children[fold(name)]; !taken {
				existing.collisions = n
				return name, nil
			}
		}
	}
}

// withSuffix inserts _n before the extension, the text after the final dot.
func withSuffix(name string, n int) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return fmt.Sprintf("%s_%d%s", name[:i], n, name[i:])
	}
	return fmt.Sprintf("%s_%d", name, n)
}

func split(path string) (prefix string, segments []string) {
	if strings.HasPrefix(path, "/") {
		prefix = "/"
	}
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return prefix, segments
}

func fold(s string) string {
	return strings.ToLower(s)
}
