package shared

// ═══════════════════════════════════════════════════════════════════════════
// Percent Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percent is an integer percentage in [0, 100].
type Percent int

const (
	MinPercent Percent = 0
	MaxPercent Percent = 100
)

// Int returns the underlying int value.
func (p Percent) Int() int {
	return int(p)
}

// IsComplete reports whether the percentage reached 100.
func (p Percent) IsComplete() bool {
	return p >= MaxPercent
}

// PercentOf returns round(100 * part / whole) with halves rounded up.
// A non-positive whole yields 0.
func PercentOf(part, whole int) Percent {
	if whole <= 0 || part <= 0 {
		return MinPercent
	}
	return Percent(RoundDiv(100*part, whole))
}

// RoundDiv divides non-negative integers rounding halves up.
func RoundDiv(num, den int) int {
	if den <= 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ═══════════════════════════════════════════════════════════════════════════

// XP represents experience points credited to a learner.
type XP int

// Fixed award amounts.
const (
	LessonCompletionXP XP = 10
	QuizPassXP         XP = 50
)

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// Level calculates the level based on XP.
// Level n requires 100 * n*(n-1)/2 total XP.
func (x XP) Level() int {
	if x <= 0 {
		return 1
	}
	level := 1
	required := 100
	total := 0
	for total+required <= int(x) {
		total += required
		level++
		required = 100 * level
	}
	return level
}

// NewXP creates a new positive XP amount.
func NewXP(amount int) (XP, error) {
	if amount <= 0 {
		return 0, NewDomainError("shared", "NewXP", ErrNegativeValue, "XP amount must be positive")
	}
	return XP(amount), nil
}
