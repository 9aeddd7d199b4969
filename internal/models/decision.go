package models

import "strings"

type DecisionKind int

const (
	DecisionSkip DecisionKind = iota
	DecisionManual
	DecisionGenerate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionSkip:
		return "skip"
	case DecisionManual:
		return "manual"
	case DecisionGenerate:
		return "generate"
	default:
		return "unknown"
	}
}

// Decision is what the operator wants done with an item.
// Text is only set for DecisionManual.
type Decision struct {
	Kind DecisionKind
	Text string
}

func Skip() Decision {
	return Decision{Kind: DecisionSkip}
}

func Generate() Decision {
	return Decision{Kind: DecisionGenerate}
}

func Manual(text string) Decision {
	return Decision{Kind: DecisionManual, Text: text}
}

type ChoiceKind int

const (
	ChoiceSelect ChoiceKind = iota
	ChoiceRegenerate
	ChoiceManual
)

// Choice is the operator's answer to a list of generated candidates.
type Choice struct {
	Kind  ChoiceKind
	Index int
	Text  string
}

// Commands holds the reserved words an operator types instead of reply text.
type Commands struct {
	Skip     string
	Generate string
}

func DefaultCommands() Commands {
	return Commands{Skip: "SKIP", Generate: "GENERATE"}
}

// Parse turns one line of operator input into a decision.
func (c Commands) Parse(input string) Decision {
	text := strings.TrimSpace(input)
	switch {
	case c.Skip != "" && strings.EqualFold(text, c.Skip):
		return Skip()
	case c.Generate != "" && strings.EqualFold(text, c.Generate):
		return Generate()
	default:
		return Manual(text)
	}
}
