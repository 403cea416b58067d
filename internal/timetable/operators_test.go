package timetable

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCandidateRespectsQualification(t *testing.T) {
	problem := twoTeacherProblem()
	require.NoError(t, problem.Validate())

	ops := newOperators(problem, rand.New(rand.NewSource(7)))

	for i := 0; i < 20; i++ {
		c := ops.randomCandidate()
		for day := 0; day < DaysPerWeek; day++ {
			for period := 0; period < PeriodsPerDay; period++ {
				seen := map[string]bool{}
				for class := 0; class < c.Classes(); class++ {
					a := c.At(day, period, class)
					if a.Empty() {
						continue
					}
					assert.True(t, problem.Qualified(a.TeacherID, a.SubjectID),
						"teacher %s not qualified for %s", a.TeacherID, a.SubjectID)
					assert.False(t, seen[a.TeacherID],
						"teacher %s double booked on day %d period %d", a.TeacherID, day, period)
					seen[a.TeacherID] = true
				}
			}
		}
	}
}

func TestRandomCandidateCoversCurriculum(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(3)))
	eval := NewEvaluator(problem, Weights{})

	// 6 requested lessons fit comfortably in 30 slots, so the cautious
	// initializer should place them all most of the time.
	placed := 0
	for i := 0; i < 10; i++ {
		c := ops.randomCandidate()
		_, b := eval.Evaluate(c)
		placed += c.Lessons()
		assert.Zero(t, b.Unqualified)
	}
	assert.Equal(t, 60, placed)
}

func TestCrossoverSplitsOnDayBoundary(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(11)))

	p1 := newCandidate(2)
	p2 := newCandidate(2)
	for day := 0; day < DaysPerWeek; day++ {
		for period := 0; period < PeriodsPerDay; period++ {
			for class := 0; class < 2; class++ {
				p1.set(day, period, class, Assignment{TeacherID: "t1", SubjectID: "math"})
				p2.set(day, period, class, Assignment{TeacherID: "t2", SubjectID: "bio"})
			}
		}
	}

	for i := 0; i < 20; i++ {
		c1, c2 := ops.crossover(p1, p2)

		cut := -1
		for day := 0; day < DaysPerWeek; day++ {
			from := c1.At(day, 0, 0).TeacherID
			for period := 0; period < PeriodsPerDay; period++ {
				for class := 0; class < 2; class++ {
					assert.Equal(t, from, c1.At(day, period, class).TeacherID,
						"day %d mixes both parents", day)
				}
			}
			if from == "t2" && cut == -1 {
				cut = day
			}
			if cut != -1 {
				require.Equal(t, "t2", from, "parent material resumes after the cut")
			}
		}
		require.GreaterOrEqual(t, cut, 1)
		require.LessOrEqual(t, cut, DaysPerWeek-1)

		// The second child mirrors the first.
		for day := 0; day < DaysPerWeek; day++ {
			want := "t2"
			if day >= cut {
				want = "t1"
			}
			assert.Equal(t, want, c2.At(day, 0, 0).TeacherID)
		}
	}

	// Parents are untouched.
	assert.Equal(t, "t1", p1.At(4, 5, 1).TeacherID)
	assert.Equal(t, "t2", p2.At(4, 5, 1).TeacherID)
}

func TestStandardMutationKeepsQualification(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(5)))

	c := ops.randomCandidate()
	for i := 0; i < 50; i++ {
		ops.standardMutation(c)
	}
	for day := 0; day < DaysPerWeek; day++ {
		for period := 0; period < PeriodsPerDay; period++ {
			for class := 0; class < c.Classes(); class++ {
				a := c.At(day, period, class)
				if !a.Empty() {
					assert.True(t, problem.Qualified(a.TeacherID, a.SubjectID))
				}
			}
		}
	}
}

func TestCompactClassDayShiftsLessonsEarlier(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(1)))

	c := newCandidate(2)
	c.set(0, 2, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(0, 4, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})

	changed := ops.compactClassDay(c, 0, 0, func(int, string) bool { return false })
	assert.True(t, changed)

	assert.Equal(t, "t1", c.At(0, 0, 0).TeacherID)
	assert.Equal(t, "t2", c.At(0, 1, 0).TeacherID)
	for period := 2; period < PeriodsPerDay; period++ {
		assert.True(t, c.At(0, period, 0).Empty())
	}
}

func TestCompactClassDaySkipsBusyTeachers(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(1)))

	c := newCandidate(2)
	c.set(0, 3, 0, Assignment{TeacherID: "t1", SubjectID: "math"})

	// t1 is busy in periods 0 and 1, so the lesson lands in period 2.
	busy := func(period int, teacherID string) bool {
		return teacherID == "t1" && period < 2
	}
	changed := ops.compactClassDay(c, 0, 0, busy)
	assert.True(t, changed)
	assert.Equal(t, "t1", c.At(0, 2, 0).TeacherID)
	assert.True(t, c.At(0, 3, 0).Empty())
}

func TestCompactClassDayNeverMovesLessonsLater(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(1)))

	c := newCandidate(2)
	c.set(0, 1, 0, Assignment{TeacherID: "t1", SubjectID: "math"})

	// Every earlier period is blocked; the lesson must stay put.
	busy := func(period int, teacherID string) bool {
		return teacherID == "t1" && period < 1
	}
	changed := ops.compactClassDay(c, 0, 0, busy)
	assert.False(t, changed)
	assert.Equal(t, "t1", c.At(0, 1, 0).TeacherID)
}

func TestCompactAllAvoidsNewConflicts(t *testing.T) {
	problem := twoTeacherProblem()
	ops := newOperators(problem, rand.New(rand.NewSource(9)))
	eval := NewEvaluator(problem, Weights{})

	// t1 teaches class 0 at period 0 and class 1 at period 3. Pulling class 1
	// forward to period 0 would create a conflict.
	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(0, 3, 1, Assignment{TeacherID: "t1", SubjectID: "math"})

	ops.compactAll(c)

	_, b := eval.Evaluate(c)
	assert.Zero(t, b.TeacherConflicts)
	assert.Equal(t, 2, c.Lessons())
	assert.Equal(t, "t1", c.At(0, 0, 0).TeacherID)
	assert.Equal(t, "t1", c.At(0, 1, 1).TeacherID)
}
