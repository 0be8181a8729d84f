package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Decision is the operator's answer for an already-existing resource.
type Decision int

const (
	// Skip leaves the existing resource untouched and continues.
	Skip Decision = iota
	// Proceed replaces or mutates the existing resource.
	Proceed
	// Quit terminates the run cleanly.
	Quit
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Proceed:
		return "proceed"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Prompter asks the operator what to do with resources that already exist.
// In non-interactive mode no questions are asked and the configured policy
// decides.
type Prompter struct {
	in              *bufio.Scanner
	out             io.Writer
	nonInteractive  bool
	autoSkipHealthy bool
}

// New creates a Prompter reading answers from in and writing prompts to out.
func New(in io.Reader, out io.Writer, nonInteractive, autoSkipHealthy bool) *Prompter {
	return &Prompter{
		in:              bufio.NewScanner(in),
		out:             out,
		nonInteractive:  nonInteractive,
		autoSkipHealthy: autoSkipHealthy,
	}
}

// AskExisting prompts for a decision about an existing resource. The details
// callback is invoked on [V]iew and the question is asked again afterwards.
// healthy reports whether the resource looks usable as-is; in non-interactive
// mode a healthy resource is skipped when auto-skip is enabled, otherwise the
// run proceeds.
func (p *Prompter) AskExisting(resource string, healthy bool, details func(io.Writer)) (Decision, error) {
	if p.nonInteractive {
		if healthy && p.autoSkipHealthy {
			fmt.Fprintf(p.out, "%s already exists and is healthy, skipping\n", resource)
			return Skip, nil
		}
		fmt.Fprintf(p.out, "%s already exists, proceeding (non-interactive)\n", resource)
		return Proceed, nil
	}

	for {
		fmt.Fprintf(p.out, "%s already exists. [S]kip / [P]roceed / [V]iew details / [Q]uit: ", resource)
		answer, err := p.readLine()
		if err != nil {
			return Quit, err
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "s", "skip", "":
			return Skip, nil
		case "p", "proceed":
			return Proceed, nil
		case "v", "view":
			if details != nil {
				details(p.out)
			} else {
				fmt.Fprintln(p.out, "no details available")
			}
		case "q", "quit":
			return Quit, nil
		default:
			fmt.Fprintln(p.out, "please answer S, P, V or Q")
		}
	}
}

// ConfirmDestructive asks a yes/no question twice. Both answers must be an
// explicit "yes" for the action to go ahead. Non-interactive mode refuses
// destructive actions outright.
func (p *Prompter) ConfirmDestructive(action string) (bool, error) {
	if p.nonInteractive {
		fmt.Fprintf(p.out, "refusing destructive action in non-interactive mode: %s\n", action)
		return false, nil
	}

	fmt.Fprintf(p.out, "%s. This cannot be undone. Continue? (yes/no): ", action)
	first, err := p.readLine()
	if err != nil {
		return false, err
	}
	if strings.ToLower(strings.TrimSpace(first)) != "yes" {
		return false, nil
	}

	fmt.Fprint(p.out, "Please confirm once more (yes/no): ")
	second, err := p.readLine()
	if err != nil {
		return false, err
	}

	return strings.ToLower(strings.TrimSpace(second)) == "yes", nil
}

func (p *Prompter) readLine() (string, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		return "", fmt.Errorf("input closed")
	}
	return p.in.Text(), nil
}
