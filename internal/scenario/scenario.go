package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rahul/uipilot/internal/agent"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Step is one scenario entry. Exactly one of Direction or Verification is set.
type Step struct {
	Direction    string `yaml:"direction,omitempty"`
	Verification string `yaml:"verification,omitempty"`
}

func (s Step) Objective() (agent.Objective, error) {
	d, v := strings.TrimSpace(s.Direction), strings.TrimSpace(s.Verification)
	switch {
	case d != "" && v != "":
		return agent.Objective{}, fmt.Errorf("%w: step has both direction and verification", ErrInvalidScenario)
	case d != "":
		return agent.Direction(d), nil
	case v != "":
		return agent.Verification(v), nil
	default:
		return agent.Objective{}, fmt.Errorf("%w: step has neither direction nor verification", ErrInvalidScenario)
	}
}

// Key identifies the step in the action cache. Editing the step text
// invalidates its cached actions.
func (s Step) Key() string {
	obj, err := s.Objective()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256([]byte(string(obj.Kind) + "\x00" + obj.Prompt))
	return hex.EncodeToString(sum[:8])
}

// Scenario is an ordered list of objectives run against one application.
type Scenario struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform,omitempty"`
	StartURL string `yaml:"start_url,omitempty"`
	Steps    []Step `yaml:"steps"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	switch sc.Platform {
	case "":
		sc.Platform = "web"
	case "web", "desktop":
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidScenario, sc.Platform)
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}
	for i, s := range sc.Steps {
		if _, err := s.Objective(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
