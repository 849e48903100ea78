package agent

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	promptSystem         = "system.md"
	promptObjective      = "objective.md"
	promptReminderStatus = "reminder_status.md"
	promptReminderFocus  = "reminder_focus.md"
	promptReminderVerify = "reminder_verify.md"
)

// PromptManager renders prompt templates. Files in Directory override the
// built-in templates of the same name.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

type promptData struct {
	Platform     string
	Prompt       string
	Kind         Kind
	Verification bool
}

func (pm *PromptManager) load(name string) (string, error) {
	if pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("no prompt named %s: %w", name, err)
	}
	return string(data), nil
}

func (pm *PromptManager) render(name string, data promptData) (string, error) {
	text, err := pm.load(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// System renders the system prompt for a device platform.
func (pm *PromptManager) System(platform string) (string, error) {
	return pm.render(promptSystem, promptData{Platform: platform})
}

// Objective renders the objective turn.
func (pm *PromptManager) Objective(obj Objective) (string, error) {
	return pm.render(promptObjective, promptData{
		Prompt:       obj.Prompt,
		Kind:         obj.Kind,
		Verification: obj.Kind == KindVerification,
	})
}

// Reminder renders the reminder block. statusDue selects the "report status
// now" form; verification objectives also get the read-only reminder.
func (pm *PromptManager) Reminder(kind Kind, statusDue bool) (string, error) {
	name := promptReminderFocus
	if statusDue {
		name = promptReminderStatus
	}
	reminder, err := pm.render(name, promptData{Kind: kind})
	if err != nil {
		return "", err
	}
	if kind != KindVerification {
		return reminder, nil
	}
	verify, err := pm.render(promptReminderVerify, promptData{Kind: kind, Verification: true})
	if err != nil {
		return "", err
	}
	return reminder + "\n\n" + verify, nil
}
