package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Content is the static assessment copy shown around the generated questions.
type Content struct {
	ShortAnswerPrompt   string `yaml:"short_answer_prompt"`
	CommunicationPrompt string `yaml:"communication_prompt"`
	DefaultRole         string `yaml:"default_role"`
	DefaultExperience   string `yaml:"default_experience"`
	RecordingSeconds    int    `yaml:"recording_seconds"`
}

// DefaultContent returns the built-in copy.
func DefaultContent() Content {
	return Content{
		ShortAnswerPrompt:   "Explain how you would handle a sudden traffic spike in your application.",
		CommunicationPrompt: CommunicationPromptFor(20 * time.Second),
		DefaultRole:         "SDE",
		DefaultExperience:   "Student",
	}
}

const communicationPromptFormat = "Describe your most impactful project in %d seconds."

// CommunicationPromptFor returns the built-in recording prompt for a window of d.
func CommunicationPromptFor(d time.Duration) string {
	return fmt.Sprintf(communicationPromptFormat, int((d+time.Second-1)/time.Second))
}

// LoadContent reads a YAML content file.
func LoadContent(path string) (Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("read content file %s: %w", path, err)
	}

	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Content{}, fmt.Errorf("parse content file %s: %w", path, err)
	}
	if c.RecordingSeconds < 0 {
		return Content{}, fmt.Errorf("recording_seconds cannot be negative")
	}
	return c, nil
}

// merge overlays the non-empty fields of o.
func (c Content) merge(o Content) Content {
	if o.ShortAnswerPrompt != "" {
		c.ShortAnswerPrompt = o.ShortAnswerPrompt
	}
	if o.CommunicationPrompt != "" {
		c.CommunicationPrompt = o.CommunicationPrompt
	}
	if o.DefaultRole != "" {
		c.DefaultRole = o.DefaultRole
	}
	if o.DefaultExperience != "" {
		c.DefaultExperience = o.DefaultExperience
	}
	if o.RecordingSeconds > 0 {
		c.RecordingSeconds = o.RecordingSeconds
	}
	return c
}
