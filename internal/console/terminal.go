// Package console is the terminal operator: it shows each submission, reads
// the operator's decision from a line-oriented input and drives the menu.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/moon-harvester/internal/models"
	"github.com/xaenox/moon-harvester/internal/textfix"
)

const rule = "--------------------------------------------------------------------------------"

// Terminal answers processor decisions from a line-oriented input.
// Reads are not interruptible; a decision in progress runs to completion.
type Terminal struct {
	in       *bufio.Reader
	out      io.Writer
	commands models.Commands
}

func NewTerminal(in io.Reader, out io.Writer, commands models.Commands) *Terminal {
	return &Terminal{
		in:       bufio.NewReader(in),
		out:      out,
		commands: commands,
	}
}

// readLine returns the next line without its terminator. A final line
// without a newline is returned before io.EOF.
func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *Terminal) prompt(format string, args ...any) (string, error) {
	fmt.Fprintf(t.out, format, args...)
	return t.readLine()
}

func (t *Terminal) showItem(item models.Item) {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, "*NEW SUBMISSION*")
	fmt.Fprintf(t.out, "Title: %s\n\n", textfix.Normalize(item.Title))
	fmt.Fprintf(t.out, "Text: %s\n", textfix.Normalize(item.Text))
	fmt.Fprintln(t.out, " --- ")
	fmt.Fprintf(t.out, "Karma: %d\n", item.Score)
	fmt.Fprintf(t.out, "Submission ID: %s\n", item.ID)
	if !item.CreatedAt.IsZero() {
		fmt.Fprintf(t.out, "Date and time: %s\n", item.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(t.out, " --- ")
}

func (t *Terminal) Decide(ctx context.Context, item models.Item) (models.Decision, error) {
	t.showItem(item)
	line, err := t.prompt("Enter your comment (%s to skip, %s for suggestions): ", t.commands.Skip, t.commands.Generate)
	if err != nil {
		return models.Decision{}, err
	}

	d := t.commands.Parse(line)
	if d.Kind == models.DecisionSkip {
		fmt.Fprintln(t.out, "SKIPPING THIS POST")
	}
	return d, nil
}

func (t *Terminal) Choose(ctx context.Context, item models.Item, candidates []models.CandidateReply) (models.Choice, error) {
	fmt.Fprintln(t.out, "Suggested replies:")
	for i, c := range candidates {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, c.Text)
	}

	line, err := t.prompt("Pick a number, R to regenerate, M to write your own: ")
	if err != nil {
		return models.Choice{}, err
	}
	answer := strings.TrimSpace(line)

	switch strings.ToUpper(answer) {
	case "R":
		return models.Choice{Kind: models.ChoiceRegenerate}, nil
	case "M":
		text, err := t.prompt("Enter your comment: ")
		if err != nil {
			return models.Choice{}, err
		}
		return models.Choice{Kind: models.ChoiceManual, Text: text}, nil
	}

	n, err := strconv.Atoi(answer)
	if err != nil {
		// Out of range; the processor asks again.
		return models.Choice{Kind: models.ChoiceSelect, Index: -1}, nil
	}
	return models.Choice{Kind: models.ChoiceSelect, Index: n - 1}, nil
}

func (t *Terminal) Confirm(ctx context.Context, item models.Item, reply models.CandidateReply) (bool, error) {
	fmt.Fprintf(t.out, "Posting comment: %s\n", reply.Text)
	line, err := t.prompt("Submit? [y/N]: ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Notify prints the result of processing an item.
func (t *Terminal) Notify(msg string) {
	fmt.Fprintln(t.out, msg)
	fmt.Fprintln(t.out, rule)
}
