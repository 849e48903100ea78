package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCancelled is returned when the session was cancelled between steps.
	ErrCancelled = errors.New("objective cancelled")
	// ErrLLMExhausted is returned when every LLM attempt failed.
	ErrLLMExhausted = errors.New("llm call failed after retries")
	// ErrInvalidObjective is returned for an objective with no prompt or an unknown kind.
	ErrInvalidObjective = errors.New("invalid objective")
)

// Kind distinguishes action objectives from read-only checks.
type Kind string

const (
	KindDirection    Kind = "direction"
	KindVerification Kind = "verification"
)

// ParseKind converts a stored kind string back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDirection, KindVerification:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidObjective, s)
	}
}

// Objective is one natural-language instruction the agent must satisfy.
type Objective struct {
	Kind   Kind
	Prompt string
}

func Direction(prompt string) Objective {
	return Objective{Kind: KindDirection, Prompt: prompt}
}

func Verification(prompt string) Objective {
	return Objective{Kind: KindVerification, Prompt: prompt}
}

func (o Objective) Validate() error {
	if strings.TrimSpace(o.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidObjective)
	}
	if _, err := ParseKind(string(o.Kind)); err != nil {
		return err
	}
	return nil
}

// Outcome is how an objective's loop ended.
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeFailed          Outcome = "failed"
	OutcomeMaxCallsReached Outcome = "max_calls_reached"
	OutcomeCancelled       Outcome = "cancelled"
)
