// SPDX-License-Identifier: Apache-2.0

package pathmerge

import "strings"

// SplitKeyPath splits a key field path into its segments.
//
// A dot separates segments unless it is enclosed in a pair of double quotes,
// so `"a.b".c` yields ["a.b", "c"]. Quote characters are removed from every
// segment. Trailing empty segments are dropped.
func SplitKeyPath(keyField string) []string {
	// A dot is a separator iff an even number of quotes follow it.
	var segments []string
	quotesAfter := 0
	end := len(keyField)
	for i := len(keyField) - 1; i >= 0; i-- {
		switch keyField[i] {
		case '"':
			quotesAfter++
		case '.':
			if quotesAfter%2 == 0 {
				segments = append(segments, keyField[i+1:end])
				end = i
			}
		}
	}
	segments = append(segments, keyField[:end])

	// segments were collected right to left
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	// No separator at all: the path is a single segment, even if empty.
	if len(segments) > 1 {
		for len(segments) > 0 && segments[len(segments)-1] == "" {
			segments = segments[:len(segments)-1]
		}
	}
	for i, s := range segments {
		segments[i] = strings.ReplaceAll(s, `"`, "")
	}
	return segments
}

// LookupKey extracts the identity of an array element for keyed merging.
//
// keyField is split with [SplitKeyPath] and its segments are followed as
// object field lookups starting at node. The text of the scalar found at the
// end of the walk is returned. The result is false if a lookup misses, if an
// intermediate node is not an object, or if the walk ends on a container.
func LookupKey(node *Node, keyField string) (string, bool) {
	current := node
	for _, segment := range SplitKeyPath(keyField) {
		next, ok := current.Get(segment)
		if !ok {
			return "", false
		}
		current = next
	}
	return current.Text()
}
