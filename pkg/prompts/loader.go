// Package prompts loads versioned prompt templates and composes them with
// the security policy contract. The policy always precedes task text so
// retrieved content can never override the system contract.
package prompts

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

const (
	// FallbackVersion is used when the requested version file does not exist
	FallbackVersion = "v1"
	// policySeparator sits between the policy contract and the task template
	policySeparator = "\n\n---\n\n"
)

var versionPattern = regexp.MustCompile(`^v\d+$`)

// Capabilities known to the assembler
const (
	CapabilityRAGAnswer    = "rag_answer"
	CapabilityQueryRewrite = "query_rewrite"
	CapabilityRerank       = "rerank"
)

// Loader resolves (version, capability, language) into composed prompts.
// Results are cached per instance: create a new Loader to pick up file edits.
type Loader struct {
	fsys   fs.FS
	logger observability.Logger

	mu    sync.Mutex
	cache map[string]*Prompt
}

// NewLoader creates a loader over the given filesystem. The layout is
// policy/secure_contract_<lang>.md plus <version>/<capability>_<lang>.md.
func NewLoader(fsys fs.FS, logger observability.Logger) *Loader {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Loader{fsys: fsys, logger: logger, cache: make(map[string]*Prompt)}
}

// Get loads and composes the prompt for the given coordinates. A missing
// version file falls back to v1; a malformed version is a validation error.
func (l *Loader) Get(version, capability, language string) (*Prompt, error) {
	if !versionPattern.MatchString(version) {
		return nil, apperrors.Newf(apperrors.CodeValidation, "invalid prompt version %q", version)
	}
	if capability == "" || language == "" {
		return nil, apperrors.Validation("prompt capability and language are required")
	}

	cacheKey := version + "/" + capability + "/" + language
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.cache[cacheKey]; ok {
		return p, nil
	}

	policy, err := l.readPolicy(language)
	if err != nil {
		return nil, err
	}

	raw, resolvedVersion, err := l.readTemplate(version, capability, language)
	if err != nil {
		return nil, err
	}

	tpl, err := parseTemplate(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidation,
			fmt.Sprintf("prompt %s/%s_%s is malformed", resolvedVersion, capability, language))
	}

	prompt := &Prompt{
		Version:    resolvedVersion,
		Capability: capability,
		Language:   language,
		policy:     policy,
		template:   tpl,
	}
	l.cache[cacheKey] = prompt
	return prompt, nil
}

func (l *Loader) readPolicy(language string) (string, error) {
	path := fmt.Sprintf("policy/secure_contract_%s.md", language)
	data, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeValidation,
			fmt.Sprintf("policy contract not found for language %q", language))
	}
	return strings.TrimSpace(string(data)), nil
}

func (l *Loader) readTemplate(version, capability, language string) (string, string, error) {
	path := fmt.Sprintf("%s/%s_%s.md", version, capability, language)
	data, err := fs.ReadFile(l.fsys, path)
	if err == nil {
		return string(data), version, nil
	}
	if version == FallbackVersion {
		return "", "", apperrors.Wrap(err, apperrors.CodeValidation,
			fmt.Sprintf("prompt template %s not found", path))
	}

	l.logger.Warn("prompt version missing, falling back", map[string]interface{}{
		"requested":  version,
		"fallback":   FallbackVersion,
		"capability": capability,
		"language":   language,
	})
	fallbackPath := fmt.Sprintf("%s/%s_%s.md", FallbackVersion, capability, language)
	data, err = fs.ReadFile(l.fsys, fallbackPath)
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.CodeValidation,
			fmt.Sprintf("prompt template %s not found (no %s fallback)", path, FallbackVersion))
	}
	return string(data), FallbackVersion, nil
}
