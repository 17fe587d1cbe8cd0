package gate

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/papercomputeco/presence/pkg/llm"
)

// DefaultRubric is stored as rubric version 1 the first time the gate runs.
const DefaultRubric = `You are reviewing a {content_type} a developer is about to publish about their own work.

Content:
{content}

Prompts the developer gave their AI pair programmer:
{source_prompts}

Commits the content is based on:
{source_commits}

Score each dimension from 0 to 10:
- authenticity: does it describe what the sources show actually happened?
- insight_depth: does it say something a peer would learn from?
- clarity: is it easy to follow?
- voice_match: does it sound like a working developer rather than marketing?
- accessibility: can someone outside the project follow it?

Reply with a JSON object with the keys authenticity, insight_depth, clarity,
voice_match, accessibility (numbers) and feedback (one or two sentences).`

// LLMJudge judges content with a language model call. It accepts a JSON
// object reply and falls back to "DIMENSION: n/10" lines.
type LLMJudge struct {
	call      llm.CallFunc
	maxTokens int
}

// NewLLMJudge returns a Judge backed by call.
func NewLLMJudge(call llm.CallFunc) *LLMJudge {
	return &LLMJudge{call: call, maxTokens: 500}
}

func (j *LLMJudge) Judge(ctx context.Context, rubric string, in Input) (Judgement, error) {
	reply, err := j.call(ctx, llm.Request{
		Prompt:    renderRubric(rubric, in),
		MaxTokens: j.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return Judgement{}, err
	}
	return ParseJudgement(reply)
}

func renderRubric(rubric string, in Input) string {
	list := func(xs []string) string {
		if len(xs) == 0 {
			return "(none)"
		}
		return "- " + strings.Join(xs, "\n- ")
	}
	return strings.NewReplacer(
		"{content_type}", string(in.Type),
		"{content}", in.Content,
		"{source_prompts}", list(in.Prompts),
		"{source_commits}", list(in.Commits),
	).Replace(rubric)
}

var (
	dimLine      = regexp.MustCompile(`(?mi)^\W*([a-z_ ]+?)\W*:\s*(\d+(?:\.\d+)?)\s*/\s*10`)
	feedbackLine = regexp.MustCompile(`(?mi)^\W*(?:feedback|rationale)\W*:\s*(.+)$`)
	jsonObject   = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseJudgement extracts dimension scores and the rationale from a judge
// reply. Unknown keys are ignored; Score reports missing dimensions.
func ParseJudgement(reply string) (Judgement, error) {
	if j, ok := parseJSONJudgement(reply); ok {
		return j, nil
	}

	j := Judgement{Dimensions: map[string]float64{}}
	for _, m := range dimLine.FindAllStringSubmatch(reply, -1) {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "_")
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		j.Dimensions[name] = v
	}
	if m := feedbackLine.FindStringSubmatch(reply); m != nil {
		j.Rationale = strings.TrimSpace(m[1])
	}

	if len(j.Dimensions) == 0 {
		return Judgement{}, errors.New("no scores in judge reply")
	}
	return j, nil
}

func parseJSONJudgement(reply string) (Judgement, bool) {
	raw := jsonObject.FindString(reply)
	if raw == "" {
		return Judgement{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Judgement{}, false
	}

	j := Judgement{Dimensions: map[string]float64{}}
	for k, v := range fields {
		key := strings.ToLower(k)
		switch key {
		case "feedback", "rationale":
			_ = json.Unmarshal(v, &j.Rationale)
		default:
			var f float64
			if err := json.Unmarshal(v, &f); err == nil {
				j.Dimensions[key] = f
			}
		}
	}
	if len(j.Dimensions) == 0 {
		return Judgement{}, false
	}
	return j, true
}
