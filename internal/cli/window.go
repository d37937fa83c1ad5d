package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charlesng35/verifolio/internal/reconciler"
)

// terminalWindow stands in for the browser page the reconciler would drive.
// A terminal is never a popup, and navigation is reported rather than
// performed.
type terminalWindow struct {
	out         io.Writer
	destination string
}

func (w *terminalWindow) HasOpener() bool { return false }

func (w *terminalWindow) PostToOpener(context.Context, reconciler.Message) error { return nil }

func (w *terminalWindow) Close() error { return nil }

func (w *terminalWindow) ReplaceURL(context.Context) error { return nil }

func (w *terminalWindow) Navigate(_ context.Context, path string) error {
	w.destination = path
	fmt.Fprintf(w.out, "landing page: %s\n", path)
	return nil
}
