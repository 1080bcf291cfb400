package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/rubric/internal/domain/scoring"
)

// ExtractJSON reduces model output to its JSON payload. It prefers a
// ```json fence, then any fence, then the outermost array or object,
// whichever opens first.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", fmt.Errorf("%w: empty response", scoring.ErrInvalidResponse)
	}
	if i := strings.Index(s, "```json"); i >= 0 {
		return fenceBody(s[i+len("```json"):]), nil
	}
	if i := strings.Index(s, "```"); i >= 0 {
		return fenceBody(s[i+3:]), nil
	}
	obj, arr := strings.Index(s, "{"), strings.Index(s, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		if end := strings.LastIndex(s, "]"); end > arr {
			return s[arr : end+1], nil
		}
	}
	if end := strings.LastIndex(s, "}"); obj >= 0 && end > obj {
		return s[obj : end+1], nil
	}
	return "", fmt.Errorf("%w: no JSON found", scoring.ErrInvalidResponse)
}

func fenceBody(rest string) string {
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber struct {
	value float64
	set   bool
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.SplitN(s, "/", 2)[0])
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("score %q is not a number", s)
		}
		f.value, f.set = v, true
		return nil
	}
	if err := json.Unmarshal(b, &f.value); err != nil {
		return err
	}
	f.set = true
	return nil
}

type assessment struct {
	Score   flexNumber `json:"score"`
	Comment string     `json:"comment"`
}

// ParseResult reads a {score, comment} verdict out of model output. An
// array response yields its first element that carries a score.
func ParseResult(text string) (scoring.Result, error) {
	payload, err := ExtractJSON(text)
	if err != nil {
		return scoring.Result{}, err
	}

	var one assessment
	if strings.HasPrefix(payload, "[") {
		var many []assessment
		if err := json.Unmarshal([]byte(payload), &many); err != nil {
			return scoring.Result{}, fmt.Errorf("%w: %v", scoring.ErrInvalidResponse, err)
		}
		for _, a := range many {
			if a.Score.set {
				one = a
				break
			}
		}
	} else if err := json.Unmarshal([]byte(payload), &one); err != nil {
		return scoring.Result{}, fmt.Errorf("%w: %v", scoring.ErrInvalidResponse, err)
	}

	if !one.Score.set {
		return scoring.Result{}, fmt.Errorf("%w: missing score", scoring.ErrInvalidResponse)
	}
	return scoring.Result{Score: one.Score.value, Comment: strings.TrimSpace(one.Comment)}, nil
}

// CleanRefined strips wrapping quotes and labels from a refined comment.
func CleanRefined(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(strings.ToUpper(s), "REFINED COMMENT:"); i >= 0 {
		s = strings.TrimSpace(s[i+len("REFINED COMMENT:"):])
	}
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
