package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"issue-scout/internal/shared/telemetry"
)

// StructuredProvider turns any Completer into a Provider by prompting for JSON and
// validating the reply against an embedded schema.
type StructuredProvider struct {
	completer Completer
	prompts   *promptSet
}

// NewStructuredProvider wraps completer.
func NewStructuredProvider(completer Completer) (*StructuredProvider, error) {
	ps, err := loadPrompts()
	if err != nil {
		return nil, err
	}
	return &StructuredProvider{completer: completer, prompts: ps}, nil
}

// Classify asks the model whether the signal deserves an issue.
func (p *StructuredProvider) Classify(ctx context.Context, signal SignalInput, repoContext string) (Classification, error) {
	user, err := render(p.prompts.classify, promptData{Repo: repoContext, Signal: signal, Schema: p.prompts.classifySchemaJS})
	if err != nil {
		return Classification{}, err
	}
	comp, err := p.completer.Complete(ctx, Prompt{User: user})
	if err != nil {
		return Classification{}, err
	}

	var out Classification
	if err := decodeStructured(comp.Text, p.prompts.classifySchema, &out); err != nil {
		return Classification{Usage: comp.Usage}, err
	}
	out.Usage = comp.Usage
	telemetry.Info("llm.classified", map[string]any{
		"signal_id":  signal.ID,
		"worthy":     out.Worthy,
		"confidence": out.Confidence,
		"provider":   comp.Usage.Provider,
	})
	return out, nil
}

// Draft asks the model to write an issue for the signal.
func (p *StructuredProvider) Draft(ctx context.Context, signal SignalInput, repoContext string) (Draft, error) {
	user, err := render(p.prompts.draft, promptData{Repo: repoContext, Signal: signal, Schema: p.prompts.draftSchemaJS})
	if err != nil {
		return Draft{}, err
	}
	comp, err := p.completer.Complete(ctx, Prompt{System: p.prompts.draftSystem, User: user})
	if err != nil {
		return Draft{}, err
	}

	var out Draft
	if err := decodeStructured(comp.Text, p.prompts.draftSchema, &out); err != nil {
		return Draft{Usage: comp.Usage}, err
	}
	out.Usage = comp.Usage
	telemetry.Info("llm.drafted", map[string]any{
		"signal_id": signal.ID,
		"category":  out.Category,
		"provider":  comp.Usage.Provider,
	})
	return out, nil
}

// decodeStructured extracts the JSON object from text, validates it and unmarshals into dst.
func decodeStructured(text string, schema *gojsonschema.Schema, dst any) error {
	raw, ok := extractJSONObject(text)
	if !ok {
		return fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}
	res, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// extractJSONObject strips markdown fences and surrounding prose around a JSON object.
func extractJSONObject(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	s = s[start : end+1]
	if !json.Valid([]byte(s)) {
		return "", false
	}
	return s, true
}

var _ Provider = (*StructuredProvider)(nil)
