// File: internal/locator/locator.go
package locator

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/avelichko7/textlens/internal/config"
)

// MarkClass is the class attribute applied to every highlight wrapper.
const MarkClass = "textlens-highlight"

// Segment is the part of one text node covered by a match: rune offsets
// [Start, End) into the node's data.
type Segment struct {
	Node  *html.Node
	Start int
	End   int
}

// Match is a resolved occurrence of the target inside a document, possibly
// spanning many text nodes.
type Match struct {
	Segments []Segment
}

// Handle refers to the marks produced by a highlight, first mark first, so a
// caller can scroll the leading segment into view.
type Handle struct {
	Marks []*html.Node
}

// First returns the leading mark element, or nil when nothing was wrapped.
func (h *Handle) First() *html.Node {
	if h == nil || len(h.Marks) == 0 {
		return nil
	}
	return h.Marks[0]
}

// Find locates the first occurrence of target inside root, tolerating
// whitespace and NBSP substitution, case differences, and arbitrary inline
// markup splitting the target across elements. Returns false when the target
// is empty, whitespace-only, or absent.
func Find(root *html.Node, target string) (Match, bool) {
	normalized := normalizeTarget(target)
	if len(normalized) == 0 {
		return Match{}, false
	}

	cm := buildCharacterMap(root)
	col := cm.collapse()

	idx := indexOfFold(col.text, normalized)
	if idx < 0 {
		return Match{}, false
	}

	start := cm.origins[col.toCombined[idx]]
	end := cm.origins[col.toCombined[idx+len(normalized)-1]]
	if start.node == nil || end.node == nil {
		return Match{}, false
	}

	startIdx, ok := cm.nodeIndex[start.node]
	if !ok {
		return Match{}, false
	}
	endIdx, ok := cm.nodeIndex[end.node]
	if !ok || endIdx < startIdx {
		return Match{}, false
	}

	// Every text node between the first and last intersected node belongs to
	// the range, whole; the boundary nodes are trimmed to the match.
	var m Match
	for i := startIdx; i <= endIdx; i++ {
		node := cm.nodes[i]
		seg := Segment{Node: node, Start: 0, End: len([]rune(node.Data))}
		if node == start.node {
			seg.Start = start.offset
		}
		if node == end.node {
			seg.End = end.offset + 1
		}
		if seg.End > seg.Start {
			m.Segments = append(m.Segments, seg)
		}
	}
	if len(m.Segments) == 0 {
		return Match{}, false
	}
	return m, true
}

// Highlight wraps each matched segment in a <mark> element, leaving every
// character outside the match and all sibling markup untouched. A segment
// whose node cannot be wrapped (detached from the tree) is skipped, not fatal.
func Highlight(m Match) (*Handle, bool) {
	h := &Handle{}
	for _, seg := range m.Segments {
		mark, ok := wrapSegment(seg)
		if !ok {
			continue
		}
		h.Marks = append(h.Marks, mark)
	}
	return h, len(h.Marks) > 0
}

// wrapSegment splits a text node so that only the [Start, End) portion ends up
// inside a new mark element. The out-of-range text is preserved in fresh text
// nodes on either side.
func wrapSegment(seg Segment) (*html.Node, bool) {
	node := seg.Node
	parent := node.Parent
	if parent == nil || node.Type != html.TextNode {
		return nil, false
	}

	runes := []rune(node.Data)
	if seg.Start < 0 || seg.End > len(runes) || seg.Start >= seg.End {
		return nil, false
	}

	mark := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Mark,
		Data:     "mark",
		Attr:     []html.Attribute{{Key: "class", Val: MarkClass}},
	}
	mark.AppendChild(&html.Node{Type: html.TextNode, Data: string(runes[seg.Start:seg.End])})

	if seg.Start > 0 {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(runes[:seg.Start])}, node)
	}
	parent.InsertBefore(mark, node)
	if seg.End < len(runes) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(runes[seg.End:])}, node)
	}
	parent.RemoveChild(node)
	return mark, true
}

// Locate finds and highlights target inside root in one step. When the target
// is absent no mutation is performed.
func Locate(root *html.Node, target string) (*Handle, bool) {
	m, ok := Find(root, target)
	if !ok {
		return nil, false
	}
	return Highlight(m)
}

// Replayer retries a locate against a page that may still be rendering.
type Replayer struct {
	cfg config.LocatorConfig
	log *zap.Logger
}

// NewReplayer builds a Replayer with the configured retry budget.
func NewReplayer(cfg config.LocatorConfig, logger *zap.Logger) *Replayer {
	return &Replayer{cfg: cfg, log: logger.Named("locator")}
}

// Replay attempts to locate target in a freshly loaded document, retrying at
// a fixed interval up to the attempt cap to tolerate asynchronous rendering.
// Absence is not an error: after the budget is spent it gives up silently and
// reports false.
func (r *Replayer) Replay(ctx context.Context, load func(ctx context.Context) (*html.Node, error), target string) (*Handle, bool) {
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryInterval), uint64(maxRetries(r.cfg.MaxAttempts))),
		ctx,
	)

	var handle *Handle
	err := backoff.Retry(func() error {
		attempts++
		root, err := load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load document: %w", err)
		}
		h, ok := Locate(root, target)
		if !ok {
			return fmt.Errorf("target not found")
		}
		handle = h
		return nil
	}, policy)

	if err != nil {
		r.log.Debug("Giving up on highlight replay",
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, false
	}
	r.log.Debug("Highlight applied", zap.Int("attempts", attempts))
	return handle, true
}

func maxRetries(maxAttempts int) int {
	if maxAttempts <= 1 {
		return 0
	}
	return maxAttempts - 1
}
