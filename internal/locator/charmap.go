// File: internal/locator/charmap.go
// Description: The pure mapping half of the text locator. Builds a flat
// character stream over a parsed document, collapses whitespace, and resolves
// a normalized target back to concrete (text node, rune offset) positions.
// No DOM mutation happens here, which keeps the matching logic testable
// against plain parsed fragments.

package locator

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

const nbsp = '\u00a0'

// skippedContainers are elements whose text content is never part of the
// rendered prose: code, styling, form internals and embedded media.
var skippedContainers = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"textarea": true,
	"option":   true,
	"canvas":   true,
	"svg":      true,
	"iframe":   true,
}

// position ties one character of the combined stream to its originating text
// node and rune offset. A nil node marks the synthetic separator inserted
// between adjacent text nodes.
type position struct {
	node   *html.Node
	offset int
}

// characterMap is the flattened view of a document subtree: every visible
// character in document order plus its origin. Built fresh per search and
// discarded immediately after use.
type characterMap struct {
	combined []rune
	origins  []position
	// nodes lists the contributing text nodes in document order, so a match
	// spanning several nodes can enumerate everything in between.
	nodes []*html.Node
	// nodeIndex maps a text node to its position in nodes.
	nodeIndex map[*html.Node]int
}

// normalizeTarget collapses whitespace and NBSP runs to single spaces, trims,
// and lowercases. An empty result means there is nothing to search for.
func normalizeTarget(target string) []rune {
	var out []rune
	for _, r := range target {
		if unicode.IsSpace(r) || r == nbsp {
			if len(out) > 0 && out[len(out)-1] != ' ' {
				out = append(out, ' ')
			}
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	// Trim a single trailing space left by a whitespace run at the end.
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return out
}

// buildCharacterMap walks all text-bearing descendants of root in document
// order, skipping non-content containers, and concatenates their text with a
// synthetic separator between nodes so words from different elements never
// fuse. NBSP inside node text is normalized to a plain space.
func buildCharacterMap(root *html.Node) *characterMap {
	cm := &characterMap{nodeIndex: make(map[*html.Node]int)}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedContainers[strings.ToLower(n.Data)] {
			return
		}
		if n.Type == html.TextNode {
			cm.nodeIndex[n] = len(cm.nodes)
			cm.nodes = append(cm.nodes, n)
			for i, r := range []rune(n.Data) {
				if r == nbsp {
					r = ' '
				}
				cm.combined = append(cm.combined, r)
				cm.origins = append(cm.origins, position{node: n, offset: i})
			}
			// Separator between nodes; maps to no origin.
			cm.combined = append(cm.combined, ' ')
			cm.origins = append(cm.origins, position{})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return cm
}

// collapsed is the whitespace-collapsed projection of a characterMap, with a
// map from each retained character back to its combined index.
type collapsed struct {
	text       []rune
	toCombined []int
}

// collapse folds consecutive whitespace in the combined stream into single
// spaces while retaining the index map back into combined.
func (cm *characterMap) collapse() collapsed {
	var col collapsed
	for i, r := range cm.combined {
		if unicode.IsSpace(r) {
			if len(col.text) > 0 && col.text[len(col.text)-1] != ' ' {
				col.text = append(col.text, ' ')
				col.toCombined = append(col.toCombined, i)
			}
			continue
		}
		col.text = append(col.text, r)
		col.toCombined = append(col.toCombined, i)
	}
	return col
}

// indexOfFold finds the first case-insensitive occurrence of target (already
// lowercased) in text. Lowercasing is done rune-by-rune so indices stay
// aligned with the collapsed map.
func indexOfFold(text, target []rune) int {
	if len(target) == 0 || len(target) > len(text) {
		return -1
	}
	lower := make([]rune, len(text))
	for i, r := range text {
		lower[i] = unicode.ToLower(r)
	}
	limit := len(lower) - len(target)
	for i := 0; i <= limit; i++ {
		j := 0
		for ; j < len(target); j++ {
			if lower[i+j] != target[j] {
				break
			}
		}
		if j == len(target) {
			return i
		}
	}
	return -1
}
