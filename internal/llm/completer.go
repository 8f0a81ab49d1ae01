package llm

import "context"

// Prompt is one structured-output request.
type Prompt struct {
	System string
	User   string
}

// Completion is the raw text a model returned plus its token usage.
type Completion struct {
	Text  string
	Usage TokenUsage
}

// Completer sends one prompt to a model and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt Prompt) (Completion, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	return f(ctx, prompt)
}
