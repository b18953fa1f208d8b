package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"

	"github.com/kirinonakar/llm-translator/langmeta"
	"github.com/kirinonakar/llm-translator/settings"
)

// ---------------------------------------------------------------------------
// Prompt templates
// ---------------------------------------------------------------------------

// Prompts holds the instruction templates. Placeholders:
// {{sourceLang}}, {{sourceCode}}, {{targetLang}}, {{targetCode}}.
type Prompts struct {
	// Pair is used when the source language is known or detected.
	Pair string `json:"pair"`
	// Auto asks the model to identify the source language itself.
	Auto string `json:"auto"`
}

// PromptsConfig is the on-disk shape of prompts.json.
type PromptsConfig struct {
	Prompts Prompts `json:"prompts"`
}

// DefaultPrompts are used for any template left empty.
var DefaultPrompts = Prompts{
	Pair: heredoc.Doc(`
		You are a professional {{sourceLang}} ({{sourceCode}}) to {{targetLang}} ({{targetCode}}) translator. Your goal is to accurately convey the meaning and nuances of the original {{sourceLang}} text while adhering to {{targetLang}} grammar, vocabulary, and cultural sensitivities.
		Produce only the {{targetLang}} translation, without any additional explanations or commentary. Please translate the following {{sourceLang}} text into {{targetLang}}:`),
	Auto: heredoc.Doc(`
		You are a professional translator. Identify the language of the following text and translate it into {{targetLang}} ({{targetCode}}). Your goal is to accurately convey the meaning and nuances of the original text while adhering to {{targetLang}} grammar, vocabulary, and cultural sensitivities.
		Produce only the {{targetLang}} translation, without any additional explanations or commentary. Please translate the following text into {{targetLang}}:`),
}

// withDefaults fills empty templates from DefaultPrompts.
func (p Prompts) withDefaults() Prompts {
	if strings.TrimSpace(p.Pair) == "" {
		p.Pair = DefaultPrompts.Pair
	}
	if strings.TrimSpace(p.Auto) == "" {
		p.Auto = DefaultPrompts.Auto
	}
	return p
}

// render substitutes language placeholders. An empty source renders as
// "auto".
func render(tmpl, source, target string) string {
	srcName, srcCode := "the source language", langmeta.Auto
	if source != "" {
		srcName, srcCode = langmeta.Resolve(source).English, source
	}
	return strings.NewReplacer(
		"{{sourceLang}}", srcName,
		"{{sourceCode}}", srcCode,
		"{{targetLang}}", langmeta.Resolve(target).English,
		"{{targetCode}}", target,
	).Replace(tmpl)
}

// ---------------------------------------------------------------------------
// prompts.json
// ---------------------------------------------------------------------------

// LoadPromptsFile loads templates from a JSON file. A missing file yields
// DefaultPrompts; empty fields fall back to the defaults.
func LoadPromptsFile(path string) (Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPrompts, nil
		}
		return Prompts{}, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var config PromptsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return Prompts{}, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	return config.Prompts.withDefaults(), nil
}

// createDefaultPromptsFile writes the built-in prompts to path as formatted JSON.
func createDefaultPromptsFile(path string) error {
	data, err := json.MarshalIndent(PromptsConfig{Prompts: DefaultPrompts}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling default prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing default prompts file: %w", err)
	}
	return nil
}

// LoadPromptsFromDefaultLocation loads prompts.json from the user data
// directory, creating it with the built-in prompts on first use. It returns
// the prompts and the file path.
func LoadPromptsFromDefaultLocation() (Prompts, string, error) {
	path, err := settings.PromptsFilePath()
	if err != nil {
		return DefaultPrompts, "", fmt.Errorf("cannot determine prompts file path: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultPromptsFile(path); err != nil {
			return DefaultPrompts, "", fmt.Errorf("creating default prompts file: %w", err)
		}
	}

	p, err := LoadPromptsFile(path)
	if err != nil {
		return DefaultPrompts, path, err
	}
	return p, path, nil
}
