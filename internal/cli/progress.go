package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/nevercjunderscore/greenscreenmethod/internal/media"
)

// progressBar renders a single-line textual progress indicator that rewrites
// itself with carriage returns, padding to the previous line's length so
// shrinking lines do not leave stray characters.
type progressBar struct {
	w       io.Writer
	desc    string
	prevLen int
	wrote   bool
}

func newProgressBar(w io.Writer, desc string) *progressBar {
	return &progressBar{w: w, desc: desc}
}

// update renders the current frame counter. Safe to pass as a
// media.ProgressFunc.
func (b *progressBar) update(p media.Progress) {
	line := fmt.Sprintf("\r%s: %d/%d frames (%.2f%%)", b.desc, p.Frame, p.TotalFrames, p.Percent())
	if pad := b.prevLen - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	fmt.Fprint(b.w, line)
	b.prevLen = len(line)
	b.wrote = true
}

// finish terminates the progress line if anything was rendered.
func (b *progressBar) finish() {
	if b.wrote {
		fmt.Fprintln(b.w)
	}
}
