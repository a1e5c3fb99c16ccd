// File: internal/locator/live/live.go
// Description: Applies a located highlight inside a real, rendering page via
// the DevTools protocol. The pure matching algorithm lives in the parent
// package; this file owns the browser session, the style injection, the
// bounded retry against asynchronous rendering, and the smooth scroll to the
// first mark.

package live

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/avelichko7/textlens/internal/config"
	"github.com/avelichko7/textlens/internal/locator"
)

// highlightCSS is injected into the target page so the marks are visible.
const highlightCSS = `
mark.` + locator.MarkClass + ` {
    background-color: #00ff00 !important;
    color: #000 !important;
    padding: 2px 0 !important;
    border-radius: 3px !important;
    box-shadow: 0 0 15px rgba(0, 255, 0, 0.8) !important;
    display: inline !important;
}`

// scrollScript smooth-scrolls the first mark into the viewport center.
const scrollScript = `(() => {
  const el = document.querySelector('mark.` + locator.MarkClass + `');
  if (el) el.scrollIntoView({ behavior: 'smooth', block: 'center' });
  return !!el;
})()`

// Highlighter drives one headless (or headful) browser session.
type Highlighter struct {
	browser config.BrowserConfig
	loc     config.LocatorConfig
	log     *zap.Logger
}

// New builds a Highlighter.
func New(browser config.BrowserConfig, loc config.LocatorConfig, logger *zap.Logger) *Highlighter {
	return &Highlighter{browser: browser, loc: loc, log: logger.Named("live_highlight")}
}

// Run navigates to pageURL, waits for the document, then replays the locator
// against the live DOM until the target appears or the retry budget runs out.
// On a hit the matched range is wrapped in-page and scrolled into view.
func (h *Highlighter) Run(ctx context.Context, pageURL, target string) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", h.browser.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	navCtx, cancelNav := context.WithTimeout(browserCtx, h.browser.NavigateTimeout)
	defer cancelNav()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open %s: %w", pageURL, err)
	}

	if err := injectStyles(browserCtx); err != nil {
		h.log.Warn("Failed to inject highlight styles", zap.Error(err))
	}

	replayer := locator.NewReplayer(h.loc, h.log)
	handle, ok := replayer.Replay(browserCtx, func(ctx context.Context) (*html.Node, error) {
		return snapshot(ctx)
	}, target)
	if !ok {
		h.log.Info("Target text not found on page", zap.String("url", pageURL))
		return nil // Absence is silent, never an error.
	}

	// The replay matched against a snapshot; re-run the wrap inside the live
	// document so the page itself carries the marks.
	if err := applyInPage(browserCtx, target); err != nil {
		return fmt.Errorf("failed to apply highlight in page: %w", err)
	}

	var scrolled bool
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(scrollScript, &scrolled)); err != nil {
		h.log.Debug("Scroll-into-view failed", zap.Error(err))
	}

	h.log.Info("Highlight applied",
		zap.String("url", pageURL),
		zap.Int("segments", len(handle.Marks)),
		zap.Bool("scrolled", scrolled))

	// Leave the page on screen briefly when running headful.
	if !h.browser.Headless {
		select {
		case <-time.After(10 * time.Second):
		case <-ctx.Done():
		}
	}
	return nil
}

// injectStyles appends the highlight CSS to the document head.
func injectStyles(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
  if (document.getElementById('textlens-highlight-styles')) return true;
  const style = document.createElement('style');
  style.id = 'textlens-highlight-styles';
  style.textContent = %q;
  document.head.appendChild(style);
  return true;
})()`, highlightCSS)
	var ok bool
	return chromedp.Run(ctx, chromedp.Evaluate(script, &ok))
}

// snapshot parses the current rendered document into an html.Node tree.
func snapshot(ctx context.Context) (*html.Node, error) {
	var outerHTML string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		outerHTML, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return parseHTML(outerHTML)
}

func parseHTML(s string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document snapshot: %w", err)
	}
	return doc, nil
}

// applyInPage runs the wrap inside the live document. The script mirrors the
// pure algorithm: walk visible text nodes, collapse whitespace, find the first
// occurrence, wrap each intersected text node portion in a mark element.
func applyInPage(ctx context.Context, target string) error {
	script := fmt.Sprintf(wrapScript, target, locator.MarkClass)
	var applied bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &applied)); err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("page content changed between snapshot and apply")
	}
	return nil
}

// wrapScript is the in-page counterpart of locator.Locate. %[1]q is the
// target text, %[2]q the mark class.
const wrapScript = `(() => {
  const target = %[1]q.replace(/[\s\u00a0]+/g, ' ').trim().toLowerCase();
  if (!target) return false;

  const bad = ['script', 'style', 'noscript', 'textarea', 'option', 'canvas', 'svg', 'iframe'];
  const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, {
    acceptNode: (node) => {
      const parent = node.parentElement;
      if (!parent || bad.includes(parent.tagName.toLowerCase())) return NodeFilter.FILTER_REJECT;
      return NodeFilter.FILTER_ACCEPT;
    }
  });

  let combined = '';
  const map = [];
  let node;
  while ((node = walker.nextNode())) {
    const text = node.nodeValue.replace(/\u00a0/g, ' ');
    for (let i = 0; i < text.length; i++) {
      combined += text[i];
      map.push({ node, offset: i });
    }
    combined += ' ';
    map.push(null);
  }

  let collapsed = '';
  const toCombined = [];
  for (let i = 0; i < combined.length; i++) {
    if (/\s/.test(combined[i])) {
      if (collapsed[collapsed.length - 1] !== ' ') {
        collapsed += ' ';
        toCombined.push(i);
      }
    } else {
      collapsed += combined[i];
      toCombined.push(i);
    }
  }

  const idx = collapsed.toLowerCase().indexOf(target);
  if (idx === -1) return false;

  const start = map[toCombined[idx]];
  const end = map[toCombined[idx + target.length - 1]];
  if (!start || !end) return false;

  const range = document.createRange();
  range.setStart(start.node, start.offset);
  range.setEnd(end.node, end.offset + 1);

  const nodes = [];
  const rangeWalker = document.createTreeWalker(range.commonAncestorContainer, NodeFilter.SHOW_TEXT, {
    acceptNode: (n) => range.intersectsNode(n) ? NodeFilter.FILTER_ACCEPT : NodeFilter.FILTER_REJECT
  });
  let curr;
  while ((curr = rangeWalker.nextNode())) nodes.push(curr);

  let wrapped = 0;
  for (const n of nodes) {
    const mark = document.createElement('mark');
    mark.className = %[2]q;
    const nodeRange = document.createRange();
    nodeRange.setStart(n, n === range.startContainer ? range.startOffset : 0);
    nodeRange.setEnd(n, n === range.endContainer ? range.endOffset : n.nodeValue.length);
    try {
      nodeRange.surroundContents(mark);
      wrapped++;
    } catch (e) {
      // A node that cannot be wrapped is skipped, not fatal.
    }
  }
  return wrapped > 0;
})()`
