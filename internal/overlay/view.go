// File: internal/overlay/view.go

package overlay

import (
	"fmt"
	"io"
	"sync"

	"github.com/avelichko7/textlens/api/schemas"
)

// TextView renders overlay state as plain text. Used by the CLI surfaces;
// chunks print incrementally, so only the delta since the last render is
// written.
type TextView struct {
	mu      sync.Mutex
	w       io.Writer
	written int
}

// NewTextView builds a TextView writing to w.
func NewTextView(w io.Writer) *TextView {
	return &TextView{w: w}
}

func (v *TextView) RenderAuth(status schemas.AuthStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if status.Authenticated {
		fmt.Fprintf(v.w, "[signed in: %s]\n", status.PlanID)
	} else {
		fmt.Fprintln(v.w, "[signed out]")
	}
}

func (v *TextView) RenderLoading() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.written = 0
	fmt.Fprintln(v.w, "...")
}

func (v *TextView) RenderStream(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.written < len(text) {
		io.WriteString(v.w, text[v.written:]) //nolint:errcheck
		v.written = len(text)
	}
}

func (v *TextView) RenderComplete(text string) {
	v.RenderStream(text)
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.w)
}

func (v *TextView) RenderError(code schemas.ErrorCode, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch code {
	case schemas.CodeLoginRequired:
		fmt.Fprintln(v.w, "Sign in to continue.")
	case schemas.CodeCreditsExhausted:
		fmt.Fprintf(v.w, "Plan limit reached: %s\n", message)
	default:
		if message == "" {
			message = "request failed"
		}
		fmt.Fprintln(v.w, message)
	}
}
