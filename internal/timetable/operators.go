package timetable

import "math/rand"

const (
	// placementRetries bounds how often initialization retries a slot for a
	// required lesson before leaving the cell empty.
	placementRetries = 10
	// standardMutationShare is the chance a triggered mutation uses the
	// standard variant; the rest use compaction.
	standardMutationShare = 0.7
	// maxStandardMutations caps how many cells a standard mutation touches.
	maxStandardMutations = 5
	// compactionPasses bounds the final full-compaction sweeps.
	compactionPasses = 3
)

// operators bundles the stochastic genetic operators. All randomness flows
// through the injected rng so runs are reproducible under a fixed seed.
type operators struct {
	problem *Problem
	rng     *rand.Rand
}

func newOperators(p *Problem, rng *rand.Rand) *operators {
	return &operators{problem: p, rng: rng}
}

// randomCandidate builds an initial schedule from the curricula. Each
// required lesson is placed into a random free slot with a qualified teacher
// who is not already booked in that slot; after bounded retries the lesson is
// skipped rather than violating qualification at birth, leaving the deficit
// to the unmet-requirement penalty.
func (o *operators) randomCandidate() *Candidate {
	c := newCandidate(len(o.problem.Classes))

	// Teachers already booked per slot, across all classes placed so far.
	busy := make([]map[string]bool, SlotsPerWeek)
	for i := range busy {
		busy[i] = make(map[string]bool)
	}

	for class, cls := range o.problem.Classes {
		for _, subjectID := range curriculumSubjects(cls) {
			required := cls.Curriculum[subjectID]
			for lesson := 0; lesson < required; lesson++ {
				o.placeLesson(c, busy, class, subjectID)
			}
		}
	}
	return c
}

func (o *operators) placeLesson(c *Candidate, busy []map[string]bool, class int, subjectID string) {
	qualified := o.problem.qualifiedTeachers(subjectID)
	if len(qualified) == 0 {
		return
	}
	for attempt := 0; attempt < placementRetries; attempt++ {
		slot := o.rng.Intn(SlotsPerWeek)
		day, period := slot/PeriodsPerDay, slot%PeriodsPerDay
		if !c.At(day, period, class).Empty() {
			continue
		}
		free := make([]int, 0, len(qualified))
		for _, t := range qualified {
			if !busy[slot][o.problem.Teachers[t].ID] {
				free = append(free, t)
			}
		}
		if len(free) == 0 {
			continue
		}
		teacher := o.problem.Teachers[free[o.rng.Intn(len(free))]]
		c.set(day, period, class, Assignment{TeacherID: teacher.ID, SubjectID: subjectID})
		busy[slot][teacher.ID] = true
		return
	}
}

// crossover recombines two parents along the day axis: a cut point d is
// drawn from {1..4}; offspring A takes days before d from p1 and the rest
// from p2, offspring B the complement. Parents are read-only; the offspring
// are freshly owned. Feasibility is deliberately not checked here — new
// conflicts are scored, not rejected.
func (o *operators) crossover(p1, p2 *Candidate) (*Candidate, *Candidate) {
	a, b := newCandidate(p1.classes), newCandidate(p1.classes)
	cut := 1 + o.rng.Intn(DaysPerWeek-1)
	split := cut * PeriodsPerDay * p1.classes

	copy(a.cells[:split], p1.cells[:split])
	copy(a.cells[split:], p2.cells[split:])
	copy(b.cells[:split], p2.cells[:split])
	copy(b.cells[split:], p1.cells[split:])
	return a, b
}

// mutate applies one mutation variant to a candidate the caller exclusively
// owns. The per-offspring gate lives in the engine.
func (o *operators) mutate(c *Candidate) {
	if o.rng.Float64() < standardMutationShare {
		o.standardMutation(c)
	} else {
		o.compactionMutation(c)
	}
}

// standardMutation reassigns a small random number of cells, each to either
// empty or a qualified teacher/subject pair drawn from the class curriculum.
func (o *operators) standardMutation(c *Candidate) {
	changes := 1 + o.rng.Intn(maxStandardMutations)
	for i := 0; i < changes; i++ {
		day := o.rng.Intn(DaysPerWeek)
		period := o.rng.Intn(PeriodsPerDay)
		class := o.rng.Intn(c.classes)

		if o.rng.Float64() < 0.5 {
			c.set(day, period, class, Assignment{})
			continue
		}

		subjects := curriculumSubjects(o.problem.Classes[class])
		if len(subjects) == 0 {
			continue
		}
		subjectID := subjects[o.rng.Intn(len(subjects))]
		qualified := o.problem.qualifiedTeachers(subjectID)
		if len(qualified) == 0 {
			continue
		}
		teacher := o.problem.Teachers[qualified[o.rng.Intn(len(qualified))]]
		c.set(day, period, class, Assignment{TeacherID: teacher.ID, SubjectID: subjectID})
	}
}

// compactionMutation shifts one random class's lessons on one random day to
// the start of the day, removing its early gap and any holes between lessons.
func (o *operators) compactionMutation(c *Candidate) {
	class := o.rng.Intn(c.classes)
	day := o.rng.Intn(DaysPerWeek)
	o.compactClassDay(c, class, day, nil)
}

// compactClassDay rewrites one class/day column so its lessons occupy the
// earliest periods. When busy is non-nil, a lesson only moves into a period
// where its teacher is not already booked by another class; otherwise it
// stays put and the resulting gap is left for the evaluator to score.
func (o *operators) compactClassDay(c *Candidate, class, day int, busy func(period int, teacherID string) bool) bool {
	type placed struct {
		period int
		cell   Assignment
	}
	var lessons []placed
	for period := 0; period < PeriodsPerDay; period++ {
		if cell := c.At(day, period, class); !cell.Empty() {
			lessons = append(lessons, placed{period, cell})
			c.set(day, period, class, Assignment{})
		}
	}
	if len(lessons) == 0 {
		return false
	}

	moved := false
	next := 0
	for _, l := range lessons {
		target := l.period
		for period := next; period < l.period; period++ {
			if busy != nil && busy(period, l.cell.TeacherID) {
				continue
			}
			target = period
			break
		}
		c.set(day, target, class, l.cell)
		if target < l.period {
			moved = true
		}
		if target >= next {
			next = target + 1
		}
	}
	return moved
}

// compactAll runs bounded passes of conflict-aware compaction over every
// class and day. Used on the final best candidate so the returned schedule
// has no avoidable early gaps.
func (o *operators) compactAll(c *Candidate) {
	for pass := 0; pass < compactionPasses; pass++ {
		improved := false
		for class := 0; class < c.classes; class++ {
			for day := 0; day < DaysPerWeek; day++ {
				busy := func(period int, teacherID string) bool {
					for other := 0; other < c.classes; other++ {
						if other == class {
							continue
						}
						if c.At(day, period, other).TeacherID == teacherID {
							return true
						}
					}
					return false
				}
				if o.compactClassDay(c, class, day, busy) {
					improved = true
				}
			}
		}
		if !improved {
			return
		}
	}
}
