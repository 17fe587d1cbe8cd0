package activity

import (
	"strings"
	"time"
)

// TemplateKind names a family of versioned templates, e.g. "generate:post"
// or "rubric".
type TemplateKind string

// KindRubric is the judge rubric template family.
const KindRubric TemplateKind = "rubric"

// TemplateVersion is one immutable revision of a generation template or
// judge rubric. AvgScore and Uses accumulate gate results for drafts
// produced with this version.
type TemplateVersion struct {
	Kind      TemplateKind `json:"kind"`
	Version   int          `json:"version"`
	Text      string       `json:"text"`
	AvgScore  float64      `json:"avg_score"`
	Uses      int          `json:"uses"`
	CreatedAt time.Time    `json:"created_at"`
}

// RunningAverage folds score into an average over uses prior samples.
func RunningAverage(avg float64, uses int, score float64) float64 {
	return avg + (score-avg)/float64(uses+1)
}

// ParseTemplateKind maps a user-facing name to a template kind. The name may
// be a content type ("post", "x_thread"), a full kind ("generate:post") or
// "rubric".
func ParseTemplateKind(name string) TemplateKind {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, string(KindRubric)) {
		return KindRubric
	}
	if ct, err := ParseContentType(name); err == nil {
		return ct.TemplateKind()
	}
	return TemplateKind(name)
}
