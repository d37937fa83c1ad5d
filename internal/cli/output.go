package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

// prompt reads one line when attached to a terminal. Non-interactive runs
// get an empty answer.
func (c *CLI) prompt(label string) (string, error) {
	if !c.Interactive || c.In == nil {
		return "", nil
	}
	fmt.Fprintf(c.Err, "%s: ", label)
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question. Non-interactive runs answer yes; callers
// gate destructive actions behind an explicit flag instead.
func (c *CLI) confirm(question string) (bool, error) {
	if !c.Interactive {
		return true, nil
	}
	answer, err := c.prompt(question + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
