package synth

import (
	"context"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/llm"
)

// maxTokens caps the reply length per content type.
var maxTokens = map[activity.ContentType]int{
	activity.ContentPost:    500,
	activity.ContentThread:  2000,
	activity.ContentArticle: 4000,
}

// LLMGenerator generates content with a language model call.
type LLMGenerator struct {
	call llm.CallFunc
}

// NewLLMGenerator returns a Generator backed by call.
func NewLLMGenerator(call llm.CallFunc) *LLMGenerator {
	return &LLMGenerator{call: call}
}

func (g *LLMGenerator) Generate(ctx context.Context, template string, input Context) (string, error) {
	return g.call(ctx, llm.Request{
		Prompt:    input.Render(template),
		MaxTokens: maxTokens[input.Type],
	})
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, template string, input Context) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, template string, input Context) (string, error) {
	return f(ctx, template, input)
}
