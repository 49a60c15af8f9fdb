package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Persona holds the spoken personality of the assistant: the system prompt
// sent to the response generator, its fixed phrases and avatar hotkeys.
type Persona struct {
	Name         string            `yaml:"name"`
	SystemPrompt string            `yaml:"system_prompt"`
	Greetings    []string          `yaml:"greetings"`
	WakeMarkers  []string          `yaml:"wake_markers"`
	Phrases      Phrases           `yaml:"phrases"`
	Expressions  map[string]string `yaml:"expressions"` // mood -> hotkey name
	Acknowledge  string            `yaml:"acknowledge_expression"`
	Greeted      string            `yaml:"greeting_expression"`
	Clear        string            `yaml:"clear_expression"`
}

// Phrases are the fixed utterances spoken by the dialogue loop.
type Phrases struct {
	Reprompt    string `yaml:"reprompt"`
	Elaborate   string `yaml:"elaborate"`
	Apology     string `yaml:"apology"`
	Acknowledge string `yaml:"acknowledge"`
}

// DefaultPersona returns the built-in "Misa" persona
func DefaultPersona() Persona {
	return Persona{
		Name: "Misa",
		SystemPrompt: "You are Misa, a sharp, loyal assistant with edge. " +
			"Be succinct, direct, and helpful.",
		Greetings: []string{
			"Systems online. How can I help?",
			"Online and listening. What do you need?",
			"Ready. Say the word.",
		},
		Phrases: Phrases{
			Reprompt:    "I didn't catch that. Please repeat.",
			Elaborate:   "Please elaborate.",
			Apology:     "I couldn't process that.",
			Acknowledge: "Okay.",
		},
		Expressions: map[string]string{
			"happy":    "Heart Eyes",
			"sad":      "Angry Sign",
			"confused": "Shock Sign",
			"neutral":  "Remove Expressions",
		},
		Acknowledge: "Angry Sign",
		Greeted:     "Heart Eyes",
		Clear:       "Remove Expressions",
	}
}

// ExpressionsUsing lists the moods and cues that trigger hotkey, comma
// separated, or "-" when the persona never uses it.
func (p Persona) ExpressionsUsing(hotkey string) string {
	var uses []string
	for mood, name := range p.Expressions {
		if strings.EqualFold(name, hotkey) {
			uses = append(uses, mood)
		}
	}
	sort.Strings(uses)
	for _, cue := range []struct{ role, name string }{
		{"acknowledge", p.Acknowledge},
		{"greeting", p.Greeted},
		{"clear", p.Clear},
	} {
		if strings.EqualFold(cue.name, hotkey) {
			uses = append(uses, cue.role)
		}
	}
	if len(uses) == 0 {
		return "-"
	}
	return strings.Join(uses, ", ")
}

// LoadPersona reads a YAML persona file and overlays it on base.
// Fields absent from the file keep their base values.
func LoadPersona(path string, base Persona) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, &MissingResourceError{Resource: path, Hint: "PERSONA_FILE not found"}
		}
		return base, fmt.Errorf("failed to read persona file: %w", err)
	}

	var overlay Persona
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}

	out := base
	if overlay.Name != "" {
		out.Name = overlay.Name
	}
	if overlay.SystemPrompt != "" {
		out.SystemPrompt = overlay.SystemPrompt
	}
	if len(overlay.Greetings) > 0 {
		out.Greetings = overlay.Greetings
	}
	if len(overlay.WakeMarkers) > 0 {
		out.WakeMarkers = overlay.WakeMarkers
	}
	if overlay.Phrases.Reprompt != "" {
		out.Phrases.Reprompt = overlay.Phrases.Reprompt
	}
	if overlay.Phrases.Elaborate != "" {
		out.Phrases.Elaborate = overlay.Phrases.Elaborate
	}
	if overlay.Phrases.Apology != "" {
		out.Phrases.Apology = overlay.Phrases.Apology
	}
	if overlay.Phrases.Acknowledge != "" {
		out.Phrases.Acknowledge = overlay.Phrases.Acknowledge
	}
	if len(overlay.Expressions) > 0 {
		merged := make(map[string]string, len(base.Expressions))
		for k, v := range base.Expressions {
			merged[k] = v
		}
		for k, v := range overlay.Expressions {
			merged[k] = v
		}
		out.Expressions = merged
	}
	if overlay.Acknowledge != "" {
		out.Acknowledge = overlay.Acknowledge
	}
	if overlay.Greeted != "" {
		out.Greeted = overlay.Greeted
	}
	if overlay.Clear != "" {
		out.Clear = overlay.Clear
	}
	return out, nil
}
