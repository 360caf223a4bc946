package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// QuitCommand ends the chat loop, compared case-insensitively.
const QuitCommand = "quit"

// Labels prints the chat surface.
type Labels struct {
	user   *color.Color
	answer *color.Color
	err    *color.Color
	banner *color.Color
}

// NewLabels creates the chat labels. Plain disables color.
func NewLabels(plain bool) *Labels {
	l := &Labels{
		user:   color.New(color.FgGreen, color.Bold),
		answer: color.New(color.FgCyan, color.Bold),
		err:    color.New(color.FgRed, color.Bold),
		banner: color.New(color.FgHiBlack),
	}
	if plain {
		for _, c := range []*color.Color{l.user, l.answer, l.err, l.banner} {
			c.DisableColor()
		}
	}
	return l
}

// ChatLoop reads one query per line from in and writes answers to out until
// the user types quit, in is exhausted or ctx ends. Queries run one at a
// time. A reasoning engine failure is printed and ends the loop with that
// error; tool failures are part of the answer and never end it.
func (h *Host) ChatLoop(ctx context.Context, in io.Reader, out io.Writer, labels *Labels) error {
	if labels == nil {
		labels = NewLabels(true)
	}
	labels.banner.Fprintln(out, "\nMCP host started!")
	labels.banner.Fprintf(out, "Type your queries or '%s' to exit.\n", QuitCommand)

	// The reader stops at the next line once the loop returns.
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for {
		labels.user.Fprint(out, "\nUSER: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return <-readErr
			}
			line = l
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, QuitCommand) {
			return nil
		}

		res, err := h.Ask(ctx, query)
		if err != nil {
			if isAbort(err) && ctx.Err() != nil {
				fmt.Fprintln(out)
				return ctx.Err()
			}
			labels.err.Fprint(out, "\nError: ")
			fmt.Fprintln(out, err)
			h.logger.Error("query failed", "error", err)
			return err
		}

		labels.answer.Fprint(out, "\nMODEL RESPONSE: ")
		fmt.Fprintln(out, res.String())
	}
}
