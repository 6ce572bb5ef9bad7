package assessment

// Strategy names a calculation algorithm. Tools select one per deployment.
type Strategy string

// Supported strategies.
const (
	StrategyWeighted    Strategy = "weighted"
	StrategyProbability Strategy = "probability"
	StrategyScoring     Strategy = "scoring"
)

// ParseStrategy validates a strategy name supplied over the wire. An
// unknown name is a programming/configuration error, reported distinctly
// from any access denial.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyWeighted, StrategyProbability, StrategyScoring:
		return Strategy(s), nil
	default:
		return "", NewUnknownStrategy(s)
	}
}

// Factor records one contribution to a computed value: the field label a
// user recognizes plus the contribution magnitude.
type Factor struct {
	Label  string  `json:"label"`
	Impact float64 `json:"impact"`
}

// Factors splits weighted-strategy contributions by direction. Zero
// contributions appear in neither list.
type Factors struct {
	Increase []Factor `json:"increase"`
	Decrease []Factor `json:"decrease"`
}

// Detail reports the outcome for one rubric question.
type Detail struct {
	FieldID    string `json:"field_id"`
	FieldLabel string `json:"field_label"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
}

// Result is the discriminated union over strategy outcomes.
type Result interface {
	// ResultStrategy names the strategy that produced this result.
	ResultStrategy() Strategy
}

// WeightedResult is the weighted-score outcome. Score is clamped to
// [0,100] and rounded to one decimal.
type WeightedResult struct {
	Strategy   Strategy `json:"strategy"`
	Score      float64  `json:"score"`
	Factors    Factors  `json:"factors"`
	Confidence int      `json:"confidence"`
}

func (r WeightedResult) ResultStrategy() Strategy { return r.Strategy }

// ProbabilityResult is the multiplicative-probability outcome. Probability
// is clamped to [0,100] and rounded to one decimal; Factors lists each
// applied adjustment as a percentage.
type ProbabilityResult struct {
	Strategy    Strategy `json:"strategy"`
	Probability float64  `json:"probability"`
	Factors     []Factor `json:"factors"`
	Confidence  int      `json:"confidence"`
}

func (r ProbabilityResult) ResultStrategy() Strategy { return r.Strategy }

// ScoringResult is the rubric outcome over fields carrying a correct-answer
// rule.
type ScoringResult struct {
	Strategy       Strategy `json:"strategy"`
	Score          float64  `json:"score"`
	CorrectAnswers int      `json:"correct_answers"`
	TotalQuestions int      `json:"total_questions"`
	Details        []Detail `json:"details"`
	Grade          string   `json:"grade"`
	Confidence     int      `json:"confidence"`
}

func (r ScoringResult) ResultStrategy() Strategy { return r.Strategy }

// Grade thresholds for the scoring strategy.
const (
	gradeA = 90
	gradeB = 80
	gradeC = 70
	gradeD = 60
)

// gradeFor maps a rubric score onto the fixed A-F bands.
func gradeFor(score float64) string {
	switch {
	case score >= gradeA:
		return "A"
	case score >= gradeB:
		return "B"
	case score >= gradeC:
		return "C"
	case score >= gradeD:
		return "D"
	default:
		return "F"
	}
}
