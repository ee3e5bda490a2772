package formz

import (
	"strconv"
	"strings"
)

// Segment is one step of a parsed path. A segment addresses a Group child
// by Key, an Array item by Index, or both in sequence ("items[0]" walks the
// key "items" then the index 0). Index is -1 when the segment carries no
// index, or AnyIndex for the registration wildcard "[*]".
type Segment struct {
	Key   string
	Index int
}

// AnyIndex is the wildcard index produced by "[*]". It is only meaningful
// in registration paths, where it matches every item of an array; Resolve
// treats it as not-found.
const AnyIndex = -2

// ParsePath parses a dot-separated path with optional bracket indices into
// ordered segments:
//
//	"address.city"   → [{address -1} {city -1}]
//	"items[0].name"  → [{items 0} {name -1}]
//	"grid[1][2]"     → [{grid 1} {"" 2}]
//
// Malformed syntax (empty keys, unbalanced or non-numeric brackets) is a
// caller programming error and returns a ConfigError. Paths that parse but
// do not resolve against a tree are not errors; see Resolve.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, configErr("parse path", path, "empty path")
	}

	var segs []Segment
	i := 0
	expectKey := true
	for i < len(path) {
		switch path[i] {
		case '.':
			return nil, configErr("parse path", path, "empty key at offset %d", i)

		case '[':
			if expectKey && len(segs) == 0 {
				return nil, configErr("parse path", path, "path may not start with an index")
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, configErr("parse path", path, "unbalanced bracket at offset %d", i)
			}
			var idx int
			if path[i+1:i+end] == "*" {
				idx = AnyIndex
			} else {
				var err error
				idx, err = strconv.Atoi(path[i+1 : i+end])
				if err != nil || idx < 0 {
					return nil, configErr("parse path", path, "invalid index %q at offset %d", path[i+1:i+end], i)
				}
			}
			if expectKey {
				// Consecutive index, e.g. "grid[1][2]".
				segs = append(segs, Segment{Key: "", Index: idx})
			} else {
				segs[len(segs)-1].Index = idx
				expectKey = true
			}
			i += end + 1
			// After a bracket only '.', another '[', or end of path are legal.
			if i < len(path) && path[i] != '.' && path[i] != '[' {
				return nil, configErr("parse path", path, "unexpected character %q after index", string(path[i]))
			}
			if i < len(path) && path[i] == '.' {
				i++
				if i == len(path) {
					return nil, configErr("parse path", path, "trailing dot")
				}
				if path[i] == '.' || path[i] == '[' {
					return nil, configErr("parse path", path, "empty key at offset %d", i)
				}
			}

		default:
			key := readKey(path, &i)
			segs = append(segs, Segment{Key: key, Index: -1})
			expectKey = false
			if i < len(path) && path[i] == '.' {
				i++
				if i == len(path) {
					return nil, configErr("parse path", path, "trailing dot")
				}
				if path[i] == '.' || path[i] == '[' {
					return nil, configErr("parse path", path, "empty key at offset %d", i)
				}
			}
		}
	}
	return segs, nil
}

// readKey consumes characters up to the next '.' or '[' and advances i.
func readKey(path string, i *int) string {
	start := *i
	for *i < len(path) && path[*i] != '.' && path[*i] != '[' {
		*i++
	}
	return path[start:*i]
}

// JoinSegments renders segments back into path syntax. For any valid path
// P, JoinSegments(ParsePath(P)) == P.
func JoinSegments(segs []Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		if seg.Key != "" {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
		switch {
		case seg.Index >= 0:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		case seg.Index == AnyIndex:
			b.WriteString("[*]")
		}
	}
	return b.String()
}

// Resolve walks segments from root to the target node. Absence is an
// expected outcome, not an error: a dangling path (missing key, index out
// of range, or a kind mismatch along the way) returns (nil, false).
func Resolve(root Node, segs []Segment) (Node, bool) {
	current := root
	for _, seg := range segs {
		if current == nil {
			return nil, false
		}
		if seg.Key != "" {
			g, ok := current.(*Group)
			if !ok {
				return nil, false
			}
			child, ok := g.child(seg.Key)
			if !ok {
				return nil, false
			}
			current = child
		}
		if seg.Index == AnyIndex {
			return nil, false
		}
		if seg.Index >= 0 {
			a, ok := current.(*Array)
			if !ok {
				return nil, false
			}
			item, ok := a.at(seg.Index)
			if !ok {
				return nil, false
			}
			current = item
		}
	}
	return current, true
}

// segmentsMatch reports whether a registration path (which may contain
// AnyIndex wildcards) addresses a node at the given concrete address.
func segmentsMatch(reg, concrete []Segment) bool {
	if len(reg) != len(concrete) {
		return false
	}
	for i := range reg {
		if reg[i].Key != concrete[i].Key {
			return false
		}
		if reg[i].Index == concrete[i].Index {
			continue
		}
		if reg[i].Index == AnyIndex && concrete[i].Index >= 0 {
			continue
		}
		return false
	}
	return true
}

// ResolvePath parses and resolves a path in one step. It returns an error
// only for malformed syntax; a dangling path returns (nil, false, nil).
func ResolvePath(root Node, path string) (Node, bool, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false, err
	}
	n, ok := Resolve(root, segs)
	return n, ok, nil
}
