package timetable

import "math"

// Breakdown counts constraint violations for a single candidate. Hard
// violations (conflicts, unqualified assignments) are scored, not rejected,
// so infeasible candidates stay in the population and compete.
type Breakdown struct {
	TeacherConflicts  int     `json:"teacher_conflicts"`
	Unqualified       int     `json:"unqualified_assignments"`
	TeacherGaps       int     `json:"teacher_gaps"`
	ClassGaps         int     `json:"class_gaps"`
	EarlyGaps         int     `json:"early_gaps"`
	UnmetRequirements int     `json:"unmet_requirements"`
	SurplusLessons    int     `json:"surplus_lessons"`
	Distribution      float64 `json:"distribution_penalty"`
	TotalLessons      int     `json:"total_lessons"`
}

// Weights are the penalty factors applied to the breakdown. Hard-constraint
// weights sit an order of magnitude above the soft ones so that any feasible
// candidate outranks any infeasible one.
type Weights struct {
	Base             float64
	TeacherConflict  float64
	Unqualified      float64
	TeacherGap       float64
	ClassGap         float64
	EarlyGap         float64
	UnmetRequirement float64
	SurplusLesson    float64
	Distribution     float64
	LessonBonus      float64
}

// DefaultWeights returns the standard penalty factors.
func DefaultWeights() Weights {
	return Weights{
		Base:             1000,
		TeacherConflict:  100,
		Unqualified:      100,
		TeacherGap:       2,
		ClassGap:         2,
		EarlyGap:         1,
		UnmetRequirement: 40,
		SurplusLesson:    40,
		Distribution:     1,
		LessonBonus:      0.5,
	}
}

// Evaluator scores candidates against a problem description. Evaluation is
// deterministic and free of side effects; the result is memoized on the
// candidate so operators that leave it untouched pay nothing.
type Evaluator struct {
	problem *Problem
	weights Weights
}

// NewEvaluator builds an evaluator. Zero weights fall back to the defaults.
func NewEvaluator(p *Problem, w Weights) *Evaluator {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Evaluator{problem: p, weights: w}
}

// Score evaluates the candidate, memoizing fitness and breakdown on it.
func (e *Evaluator) Score(c *Candidate) float64 {
	if c.evaluated {
		return c.fitness
	}
	fitness, breakdown := e.Evaluate(c)
	c.fitness = fitness
	c.breakdown = breakdown
	c.evaluated = true
	return fitness
}

// Evaluate computes fitness and breakdown without touching the candidate.
func (e *Evaluator) Evaluate(c *Candidate) (float64, Breakdown) {
	b := Breakdown{
		TeacherConflicts: e.countTeacherConflicts(c),
		Unqualified:      e.countUnqualified(c),
		TeacherGaps:      e.countTeacherGaps(c),
		TotalLessons:     c.Lessons(),
	}
	b.UnmetRequirements, b.SurplusLessons = e.countRequirementDeviation(c)
	b.ClassGaps, b.EarlyGaps = e.countClassGaps(c)
	b.Distribution = e.distributionPenalty(c)

	w := e.weights
	score := w.Base
	score -= float64(b.TeacherConflicts) * w.TeacherConflict
	score -= float64(b.Unqualified) * w.Unqualified
	score -= float64(b.TeacherGaps) * w.TeacherGap
	score -= float64(b.ClassGaps) * w.ClassGap
	score -= float64(b.EarlyGaps) * w.EarlyGap
	score -= float64(b.UnmetRequirements) * w.UnmetRequirement
	score -= float64(b.SurplusLessons) * w.SurplusLesson
	score -= b.Distribution * w.Distribution
	// Only lessons counting toward a curriculum requirement earn the bonus,
	// so padding the grid past the curriculum can never pay off.
	score += float64(b.TotalLessons-b.SurplusLessons) * w.LessonBonus
	return score, b
}

// countTeacherConflicts counts, per slot, every class beyond the first that
// books the same teacher.
func (e *Evaluator) countTeacherConflicts(c *Candidate) int {
	conflicts := 0
	seen := make(map[string]bool, len(e.problem.Teachers))
	for day := 0; day < DaysPerWeek; day++ {
		for period := 0; period < PeriodsPerDay; period++ {
			clear(seen)
			for class := 0; class < c.classes; class++ {
				cell := c.At(day, period, class)
				if cell.Empty() {
					continue
				}
				if seen[cell.TeacherID] {
					conflicts++
				} else {
					seen[cell.TeacherID] = true
				}
			}
		}
	}
	return conflicts
}

func (e *Evaluator) countUnqualified(c *Candidate) int {
	unqualified := 0
	for _, cell := range c.cells {
		if cell.Empty() {
			continue
		}
		if !e.problem.Qualified(cell.TeacherID, cell.SubjectID) {
			unqualified++
		}
	}
	return unqualified
}

// countTeacherGaps counts, per teacher and day, the empty periods strictly
// between their first and last assigned period.
func (e *Evaluator) countTeacherGaps(c *Candidate) int {
	gaps := 0
	for _, teacher := range e.problem.Teachers {
		for day := 0; day < DaysPerWeek; day++ {
			first, last, taught := -1, -1, 0
			for period := 0; period < PeriodsPerDay; period++ {
				busy := false
				for class := 0; class < c.classes; class++ {
					if c.At(day, period, class).TeacherID == teacher.ID {
						busy = true
						break
					}
				}
				if busy {
					if first < 0 {
						first = period
					}
					last = period
					taught++
				}
			}
			if taught > 1 {
				gaps += last - first + 1 - taught
			}
		}
	}
	return gaps
}

// countClassGaps counts per class and day the empty periods between the first
// and last lesson (gaps) and the empty periods before the first lesson
// (early gaps).
func (e *Evaluator) countClassGaps(c *Candidate) (gaps, earlyGaps int) {
	for class := 0; class < c.classes; class++ {
		for day := 0; day < DaysPerWeek; day++ {
			first, last, taught := -1, -1, 0
			for period := 0; period < PeriodsPerDay; period++ {
				if c.At(day, period, class).Empty() {
					continue
				}
				if first < 0 {
					first = period
				}
				last = period
				taught++
			}
			if taught == 0 {
				continue
			}
			earlyGaps += first
			if taught > 1 {
				gaps += last - first + 1 - taught
			}
		}
	}
	return gaps, earlyGaps
}

// countRequirementDeviation compares each class's placed lessons against its
// curriculum. Lessons still missing toward a required weekly count are unmet;
// lessons beyond it, and lessons in subjects the curriculum never asked for,
// are surplus.
func (e *Evaluator) countRequirementDeviation(c *Candidate) (unmet, surplus int) {
	for class, cls := range e.problem.Classes {
		counts := make(map[string]int, len(cls.Curriculum))
		for day := 0; day < DaysPerWeek; day++ {
			for period := 0; period < PeriodsPerDay; period++ {
				cell := c.At(day, period, class)
				if !cell.Empty() {
					counts[cell.SubjectID]++
				}
			}
		}
		for subjectID, required := range cls.Curriculum {
			if missing := required - counts[subjectID]; missing > 0 {
				unmet += missing
			}
		}
		for subjectID, placed := range counts {
			required := cls.Curriculum[subjectID]
			if placed > required {
				surplus += placed - required
			}
		}
	}
	return unmet, surplus
}

// distributionPenalty sums each class's standard deviation of per-day lesson
// counts, rewarding an even spread across the week.
func (e *Evaluator) distributionPenalty(c *Candidate) float64 {
	penalty := 0.0
	for class := 0; class < c.classes; class++ {
		var counts [DaysPerWeek]float64
		total := 0.0
		for day := 0; day < DaysPerWeek; day++ {
			for period := 0; period < PeriodsPerDay; period++ {
				if !c.At(day, period, class).Empty() {
					counts[day]++
				}
			}
			total += counts[day]
		}
		mean := total / DaysPerWeek
		variance := 0.0
		for _, n := range counts {
			variance += (n - mean) * (n - mean)
		}
		variance /= DaysPerWeek
		penalty += math.Sqrt(variance)
	}
	return penalty
}
