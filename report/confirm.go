package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrNoAnswer is returned when input ends before an answer is read.
var ErrNoAnswer = errors.New("report: no answer on input")

// Prompter asks y/n questions on a line-oriented reader. It implements
// lifecycle.Confirmer. Only "y" and "yes" approve.
type Prompter struct {
	// AssumeYes answers every prompt without reading input.
	AssumeYes bool

	in  *bufio.Reader
	out io.Writer
	ask *color.Color
}

func NewPrompter(in io.Reader, out io.Writer, colored bool) *Prompter {
	ask := color.New(color.FgYellow)
	if colored {
		ask.EnableColor()
	} else {
		ask.DisableColor()
	}
	return &Prompter{in: bufio.NewReader(in), out: out, ask: ask}
}

func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if p.AssumeYes {
		fmt.Fprintf(p.out, "%s (y/n): y\n", prompt)
		return true, nil
	}
	p.ask.Fprintf(p.out, "%s (y/n): ", prompt)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-ch:
		input := strings.TrimSpace(strings.ToLower(a.line))
		if a.err != nil && input == "" {
			if errors.Is(a.err, io.EOF) {
				return false, ErrNoAnswer
			}
			return false, a.err
		}
		return input == "y" || input == "yes", nil
	}
}
