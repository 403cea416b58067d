package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTeacherProblem() *Problem {
	return NewProblem(
		[]Subject{{ID: "math", Name: "Mathematics"}, {ID: "bio", Name: "Biology"}},
		[]Teacher{
			{ID: "t1", Name: "Teacher One", Subjects: []string{"math"}},
			{ID: "t2", Name: "Teacher Two", Subjects: []string{"bio"}},
		},
		[]Class{
			{ID: "5a", Name: "5A", Curriculum: map[string]int{"math": 2, "bio": 1}},
			{ID: "5b", Name: "5B", Curriculum: map[string]int{"math": 1, "bio": 2}},
		},
	)
}

func TestEvaluateClassGapExamples(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	// Monday periods 1, 3, 4 for class 0: one hole at period 2, no early gap.
	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(0, 2, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(0, 3, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})

	_, b := eval.Evaluate(c)
	assert.Equal(t, 1, b.ClassGaps)
	assert.Equal(t, 0, b.EarlyGaps)

	// Monday periods 3 and 4 only: no hole, two leading empty periods.
	c = newCandidate(2)
	c.set(0, 2, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(0, 3, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})

	_, b = eval.Evaluate(c)
	assert.Equal(t, 0, b.ClassGaps)
	assert.Equal(t, 2, b.EarlyGaps)
}

func TestEvaluateTeacherGaps(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	// t1 teaches periods 1 and 4 on Monday, split across both classes.
	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(0, 3, 1, Assignment{TeacherID: "t1", SubjectID: "math"})

	_, b := eval.Evaluate(c)
	assert.Equal(t, 2, b.TeacherGaps)
	assert.Equal(t, 0, b.TeacherConflicts)
}

func TestEvaluateConflictsStrictlyLowerFitness(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	conflicted := newCandidate(2)
	conflicted.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	conflicted.set(0, 0, 1, Assignment{TeacherID: "t1", SubjectID: "math"})

	resolved := conflicted.Clone()
	resolved.set(0, 0, 1, Assignment{TeacherID: "t2", SubjectID: "bio"})

	withConflict, b := eval.Evaluate(conflicted)
	require.Equal(t, 1, b.TeacherConflicts)
	withoutConflict, b := eval.Evaluate(resolved)
	require.Equal(t, 0, b.TeacherConflicts)

	assert.Less(t, withConflict, withoutConflict)
}

func TestEvaluateUnqualifiedAssignment(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	c := newCandidate(2)
	c.set(1, 0, 0, Assignment{TeacherID: "t1", SubjectID: "bio"})

	_, b := eval.Evaluate(c)
	assert.Equal(t, 1, b.Unqualified)
}

func TestEvaluateUnmetRequirements(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	// Class 5a needs math x2 and bio x1; give it a single math lesson.
	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})

	_, b := eval.Evaluate(c)
	// 1 math + 1 bio missing for 5a, 1 math + 2 bio for 5b.
	assert.Equal(t, 5, b.UnmetRequirements)
}

func TestEvaluateSurplusLessons(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	// 5a needs bio x1; schedule it twice.
	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})
	c.set(1, 0, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})

	_, b := eval.Evaluate(c)
	assert.Equal(t, 1, b.SurplusLessons)
	// math x2 still missing for 5a, math x1 + bio x2 for 5b.
	assert.Equal(t, 5, b.UnmetRequirements)
}

func TestEvaluateNonCurriculumSubjectIsSurplus(t *testing.T) {
	problem := NewProblem(
		[]Subject{{ID: "math", Name: "Mathematics"}, {ID: "bio", Name: "Biology"}},
		[]Teacher{
			{ID: "t1", Name: "Teacher One", Subjects: []string{"math"}},
			{ID: "t2", Name: "Teacher Two", Subjects: []string{"bio"}},
		},
		[]Class{{ID: "a", Name: "A", Curriculum: map[string]int{"math": 1}}},
	)
	eval := NewEvaluator(problem, Weights{})

	c := newCandidate(1)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.set(1, 0, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})

	_, b := eval.Evaluate(c)
	assert.Equal(t, 1, b.SurplusLessons)
	assert.Equal(t, 0, b.UnmetRequirements)
}

func TestEvaluateSurplusStrictlyLowersFitness(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	// Every curriculum requirement met exactly, all in period 0, conflict free.
	exact := newCandidate(2)
	exact.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	exact.set(1, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	exact.set(2, 0, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})
	exact.set(2, 0, 1, Assignment{TeacherID: "t1", SubjectID: "math"})
	exact.set(0, 0, 1, Assignment{TeacherID: "t2", SubjectID: "bio"})
	exact.set(1, 0, 1, Assignment{TeacherID: "t2", SubjectID: "bio"})

	// One extra qualified, conflict-free math lesson on top.
	padded := exact.Clone()
	padded.set(3, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})

	exactScore, b := eval.Evaluate(exact)
	require.Equal(t, 0, b.SurplusLessons)
	require.Equal(t, 0, b.UnmetRequirements)
	paddedScore, b := eval.Evaluate(padded)
	require.Equal(t, 1, b.SurplusLessons)

	assert.Less(t, paddedScore, exactScore)
}

func TestScoreMemoizesOnCandidate(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})

	first := eval.Score(c)
	assert.True(t, c.evaluated)
	assert.Equal(t, first, eval.Score(c))

	// Any write invalidates the memoized score.
	c.set(0, 1, 0, Assignment{TeacherID: "t2", SubjectID: "bio"})
	assert.False(t, c.evaluated)
}

func TestEvaluateIsPure(t *testing.T) {
	problem := twoTeacherProblem()
	eval := NewEvaluator(problem, Weights{})

	c := newCandidate(2)
	c.set(0, 0, 0, Assignment{TeacherID: "t1", SubjectID: "math"})
	c.evaluated = false

	fitness1, b1 := eval.Evaluate(c)
	fitness2, b2 := eval.Evaluate(c)
	assert.Equal(t, fitness1, fitness2)
	assert.Equal(t, b1, b2)
	assert.False(t, c.evaluated)
}
