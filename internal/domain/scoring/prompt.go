package scoring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Course levels.
const (
	LevelGraduate      = "graduate"
	LevelUndergraduate = "undergraduate"
)

// maxRefineInput bounds the comment text sent for refinement.
const maxRefineInput = 2000

// BuildPrompt renders the assessment prompt for one criterion.
func BuildPrompt(submissionID, level string, c Criterion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert academic assessor grading %s coursework.\n", levelOrDefault(level))
	fmt.Fprintf(&b, "Assess the %s component for submission %s based on the provided files.\n\n", c.Name, submissionID)
	fmt.Fprintf(&b, "# %s (/%s pts)\n", c.Name, trimFloat(c.MaxScore))
	if g := strings.TrimSpace(c.Guidance); g != "" {
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString("- No Evidence (0 pts): nothing relevant was submitted.\n\n")
	fmt.Fprintf(&b, "Return a JSON object with 'score' (number between 0 and %s) and 'comment' (string explaining the evidence found).\n",
		trimFloat(c.MaxScore))
	return b.String()
}

// RefineRequest asks for a comment to be rewritten in a course level's tone
// without changing what it says.
type RefineRequest struct {
	SubmissionID string
	Component    string
	Score        float64
	MaxScore     float64
	Comment      string
	Level        string
}

// RefinePrompt renders the tone refinement prompt.
func RefinePrompt(req RefineRequest) string {
	comment := req.Comment
	if len(comment) > maxRefineInput {
		comment = comment[:maxRefineInput] + "..."
	}
	persona := "a supportive professor guiding undergraduate learning"
	tone := "Use encouraging yet professional language. Balance constructive feedback with recognition of effort."
	if levelOrDefault(req.Level) == LevelGraduate {
		persona = "an experienced professor reviewing graduate-level research"
		tone = "Use sophisticated academic language. Emphasize critical analysis, methodology and technical depth."
	}
	return fmt.Sprintf(`You are %s. Rewrite the assessment comment below so it reads naturally, keeping every technical point and the same evaluation level.

ORIGINAL COMMENT:
%q

COMPONENT: %s
SCORE: %s / %s points

TONE: %s

Keep roughly the same length. Do not make it more positive or negative. Respond with ONLY the refined comment text.`,
		persona, comment, req.Component, trimFloat(req.Score), trimFloat(req.MaxScore), tone)
}

// Refiner rewrites a comment's tone.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (string, error)
}

func levelOrDefault(level string) string {
	if strings.EqualFold(strings.TrimSpace(level), LevelUndergraduate) {
		return LevelUndergraduate
	}
	return LevelGraduate
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*10)/10, 'f', -1, 64)
}
