package services

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

//go:embed prompts.json
var defaultPrompts []byte

// PromptConfig holds the instructions for both verdict flows.
type PromptConfig struct {
	Text  FlowPrompt `json:"text"`
	Image FlowPrompt `json:"image"`
}

type FlowPrompt struct {
	Role         string       `json:"role"`
	Task         string       `json:"task"`
	Rules        []string     `json:"rules"`
	OutputFormat OutputFormat `json:"output_format"`
}

// OutputFormat keeps the structure as raw JSON so its key order survives
// into the prompt.
type OutputFormat struct {
	Type      string          `json:"type"`
	Structure json.RawMessage `json:"structure"`
}

// Prompt is the payload handed to a ModelClient. ImageDataURI, when set, is
// sent as its own content part next to User.
type Prompt struct {
	System       string
	User         string
	ImageDataURI string
}

// LoadPromptConfig reads a prompt file, or the built-in prompts when path is
// empty.
func LoadPromptConfig(path string) (*PromptConfig, error) {
	data := defaultPrompts
	source := "embedded"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt config: %w", err)
		}
		data = raw
		source = path
	}

	var cfg PromptConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse prompt config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("prompt config %s: %w", source, err)
	}

	slog.Debug("prompt config loaded", "source", source,
		"text_rules", len(cfg.Text.Rules), "image_rules", len(cfg.Image.Rules))
	return &cfg, nil
}

func (pc *PromptConfig) validate() error {
	for name, fp := range map[string]FlowPrompt{"text": pc.Text, "image": pc.Image} {
		if strings.TrimSpace(fp.Task) == "" {
			return fmt.Errorf("%s.task is empty", name)
		}
		if len(bytes.TrimSpace(fp.OutputFormat.Structure)) == 0 {
			return fmt.Errorf("%s.output_format.structure is empty", name)
		}
		if !json.Valid(fp.OutputFormat.Structure) {
			return fmt.Errorf("%s.output_format.structure is not valid JSON", name)
		}
	}
	return nil
}

// BuildTextPrompt embeds the user's text between --- delimiters.
func (pc *PromptConfig) BuildTextPrompt(text string) Prompt {
	var b strings.Builder
	pc.Text.writeInstructions(&b)
	b.WriteString("Text to analyze:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n")
	return Prompt{System: pc.Text.Role, User: b.String()}
}

// BuildImagePrompt pairs the instructions with the image as a separate part.
func (pc *PromptConfig) BuildImagePrompt(imageDataURI, hint string) Prompt {
	var b strings.Builder
	pc.Image.writeInstructions(&b)
	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = "No hint provided."
	}
	b.WriteString("Hint: ")
	b.WriteString(hint)
	b.WriteString("\n")
	return Prompt{System: pc.Image.Role, User: b.String(), ImageDataURI: imageDataURI}
}

func (fp FlowPrompt) writeInstructions(b *strings.Builder) {
	b.WriteString(fp.Task)
	b.WriteString("\n\n")

	if len(fp.Rules) > 0 {
		for _, rule := range fp.Rules {
			b.WriteString("- ")
			b.WriteString(rule)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	format := fp.OutputFormat.Type
	if format == "" {
		format = "JSON"
	}
	fmt.Fprintf(b, "Your response MUST be a valid %s object and nothing else. Do not include any text before or after the %s object.\n\n", format, format)
	b.WriteString("The object must have exactly this shape:\n")

	var structure bytes.Buffer
	if err := json.Indent(&structure, fp.OutputFormat.Structure, "", "  "); err != nil {
		structure.Reset()
		structure.Write(fp.OutputFormat.Structure)
	}
	b.WriteString(structure.String())
	b.WriteString("\n\n")
}
