package prompts

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// template is a parsed prompt template: a metadata block declaring inputs
// plus the body text with {token} placeholders.
type template struct {
	required []string
	optional []string
	body     string
}

// parseTemplate parses the leading metadata block:
//
//	---
//	required: context, query
//	optional: history
//	---
//	body...
//
// Every declared input must appear as a placeholder in the body; a template
// declaring an input its body never uses is rejected at load time.
func parseTemplate(raw string) (*template, error) {
	content := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(content, "---") {
		return nil, fmt.Errorf("missing metadata block")
	}
	rest := content[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return nil, fmt.Errorf("unterminated metadata block")
	}

	meta := rest[:end]
	body := strings.TrimSpace(rest[end+3:])
	if body == "" {
		return nil, fmt.Errorf("empty template body")
	}

	tpl := &template{body: body}
	for _, line := range strings.Split(meta, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed metadata line %q", line)
		}
		names := splitNames(value)
		switch strings.TrimSpace(key) {
		case "required":
			tpl.required = names
		case "optional":
			tpl.optional = names
		default:
			// Unknown metadata keys are ignored so the format stays additive
		}
	}

	placeholders := tpl.placeholders()
	for _, name := range append(append([]string{}, tpl.required...), tpl.optional...) {
		if _, ok := placeholders[name]; !ok {
			return nil, fmt.Errorf("declared input %q has no {%s} placeholder in body", name, name)
		}
	}
	return tpl, nil
}

func splitNames(value string) []string {
	var names []string
	for _, part := range strings.Split(value, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (t *template) placeholders() map[string]struct{} {
	found := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.body, -1) {
		found[m[1]] = struct{}{}
	}
	return found
}

// Prompt is a composed, ready-to-format prompt: policy then template body.
type Prompt struct {
	Version    string
	Capability string
	Language   string

	policy   string
	template *template
}

// Template returns the raw composed text before substitution
func (p *Prompt) Template() string {
	return p.policy + policySeparator + p.template.body
}

// Format validates that every required input is supplied and substitutes
// {token} placeholders. Missing inputs are validation errors.
func (p *Prompt) Format(kwargs map[string]string) (string, error) {
	for _, name := range p.template.required {
		if _, ok := kwargs[name]; !ok {
			return "", apperrors.Newf(apperrors.CodeValidation,
				"prompt %s/%s missing required input %q", p.Version, p.Capability, name)
		}
	}

	text := p.Template()
	for name, value := range kwargs {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text, nil
}
