package quiz

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/learnhub/lms-core/internal/domain/shared"
)

// Answers maps a question key to the submitted value.
// Questions without a key are answered under their zero-based position ("0", "1", ...).
type Answers map[string]any

// Lookup returns the answer for question q at position index.
// The positional key is only consulted when the question has no key.
func (a Answers) Lookup(q Question, index int) (any, bool) {
	key := q.Key
	if key == "" {
		key = strconv.Itoa(index)
	}
	v, ok := a[key]
	return v, ok
}

// Result is the outcome of grading one answer set.
type Result struct {
	CorrectCount   int  `json:"correct_count"`
	TotalQuestions int  `json:"total_questions"`
	Score          int  `json:"score"`
	Passed         bool `json:"passed"`
}

// Score grades answers against the definition in question order.
// A quiz with no questions scores 0.
func Score(def *Definition, answers Answers) Result {
	res := Result{TotalQuestions: len(def.Questions)}

	for i, q := range def.Questions {
		got, ok := answers.Lookup(q, i)
		if ok && Equal(got, q.CorrectAnswer) {
			res.CorrectCount++
		}
	}

	res.Score = shared.PercentOf(res.CorrectCount, res.TotalQuestions).Int()
	res.Passed = res.Score >= def.PassingScore
	return res
}

// Equal compares two answer values canonically.
// Numbers compare by value regardless of Go type, so a decoded JSON 0 equals int 0.
// Other composite values compare by their JSON encoding.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	an, aNum := toFloat(a)
	bn, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}

	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
