package timetable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.Generations = 40
	cfg.Seed = seed
	cfg.Workers = 1
	return cfg
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"population too small", func(c *Config) { c.PopulationSize = 1 }},
		{"no generations", func(c *Config) { c.Generations = 0 }},
		{"negative mutation rate", func(c *Config) { c.MutationRate = -0.1 }},
		{"mutation rate above one", func(c *Config) { c.MutationRate = 1.5 }},
		{"tournament larger than population", func(c *Config) {
			c.PopulationSize = 4
			c.TournamentSize = 5
		}},
		{"elites exceed population", func(c *Config) {
			c.PopulationSize = 4
			c.TournamentSize = 2
			c.EliteCount = 4
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewRejectsInvalidProblem(t *testing.T) {
	problem := NewProblem(nil, nil, nil)
	_, err := New(problem, DefaultConfig())
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRunIsDeterministicUnderFixedSeed(t *testing.T) {
	problem := twoTeacherProblem()

	run := func() *Result {
		engine, err := New(problem, smallConfig(42))
		require.NoError(t, err)
		res, err := engine.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	r1, r2 := run(), run()
	assert.Equal(t, r1.Fitness, r2.Fitness)
	assert.Equal(t, r1.Generation, r2.Generation)
	assert.Equal(t, r1.Breakdown, r2.Breakdown)
	assert.Equal(t, r1.Best.cells, r2.Best.cells)
}

func TestRunBestFitnessNeverRegresses(t *testing.T) {
	problem := twoTeacherProblem()

	engine, err := New(problem, smallConfig(7))
	require.NoError(t, err)

	var history []float64
	engine.OnProgress(func(p Progress) {
		history = append(history, p.BestFitness)
	})

	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, history)

	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1],
			"best fitness regressed between progress reports %d and %d", i-1, i)
	}
}

func trivialProblem() *Problem {
	return NewProblem(
		[]Subject{{ID: "math", Name: "Mathematics"}, {ID: "bio", Name: "Biology"}},
		[]Teacher{
			{ID: "t1", Name: "Teacher One", Subjects: []string{"math"}},
			{ID: "t2", Name: "Teacher Two", Subjects: []string{"bio"}},
		},
		[]Class{
			{ID: "a", Name: "A", Curriculum: map[string]int{"math": 1}},
			{ID: "b", Name: "B", Curriculum: map[string]int{"bio": 1}},
		},
	)
}

func assertTrivialInstanceSolved(t *testing.T, res *Result) {
	t.Helper()
	assert.Equal(t, 2, res.Best.Lessons())
	assert.Zero(t, res.Breakdown.TeacherConflicts)
	assert.Zero(t, res.Breakdown.Unqualified)
	assert.Zero(t, res.Breakdown.UnmetRequirements)
	assert.Zero(t, res.Breakdown.SurplusLessons)
	assert.Zero(t, res.Breakdown.EarlyGaps)
	assert.Greater(t, res.Fitness, 990.0)
	// Two required lessons earn at most one fitness point over base.
	assert.LessOrEqual(t, res.Fitness, 1001.0)
}

func TestRunSolvesTrivialInstance(t *testing.T) {
	engine, err := New(trivialProblem(), smallConfig(13))
	require.NoError(t, err)
	res, err := engine.Run(context.Background())
	require.NoError(t, err)

	assertTrivialInstanceSolved(t, res)
}

// The same property must hold under the full default generation budget, so a
// budget change cannot quietly let the search pad the grid past the curricula.
func TestRunSolvesTrivialInstanceAtDefaultBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 99

	engine, err := New(trivialProblem(), cfg)
	require.NoError(t, err)
	res, err := engine.Run(context.Background())
	require.NoError(t, err)

	assertTrivialInstanceSolved(t, res)
}

func TestBestTrackerRecordsImprovementGeneration(t *testing.T) {
	scored := func(fitness float64) *Candidate {
		c := newCandidate(1)
		c.fitness = fitness
		c.evaluated = true
		return c
	}

	weak := newPopulation(2)
	weak.add(scored(10))
	weak.add(scored(5))

	tracker := newBestTracker()
	tracker.observe(weak, 0)
	assert.Equal(t, 0, tracker.generation)
	assert.Equal(t, 10.0, tracker.fitness)

	// Re-observing the same best later never moves the generation.
	tracker.observe(weak, 3)
	assert.Equal(t, 0, tracker.generation)

	// An improvement found in the offspring inspected after the loop is
	// attributed to the generation index it was observed under.
	strong := newPopulation(1)
	strong.add(scored(20))
	tracker.observe(strong, 5)
	assert.Equal(t, 5, tracker.generation)
	assert.Equal(t, 20.0, tracker.fitness)
}

func TestRunParallelEvaluationMatchesSerial(t *testing.T) {
	problem := twoTeacherProblem()

	serialCfg := smallConfig(21)
	parallelCfg := smallConfig(21)
	parallelCfg.Workers = 4

	serial, err := New(problem, serialCfg)
	require.NoError(t, err)
	parallel, err := New(problem, parallelCfg)
	require.NoError(t, err)

	r1, err := serial.Run(context.Background())
	require.NoError(t, err)
	r2, err := parallel.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, r1.Fitness, r2.Fitness)
	assert.Equal(t, r1.Best.cells, r2.Best.cells)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	problem := twoTeacherProblem()

	cfg := smallConfig(3)
	cfg.Generations = 10000
	engine, err := New(problem, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	engine.OnProgress(func(Progress) { cancel() })

	res, err := engine.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res, "cancellation still returns the best found so far")
	assert.NotNil(t, res.Best)
	assert.Less(t, res.Generation, 10000)
}

func TestRunReportsEvaluationCount(t *testing.T) {
	problem := twoTeacherProblem()

	engine, err := New(problem, smallConfig(5))
	require.NoError(t, err)
	res, err := engine.Run(context.Background())
	require.NoError(t, err)

	// Initial population plus fresh offspring each generation; elites carry
	// memoized scores and are not re-evaluated.
	assert.Greater(t, res.Evaluations, 20)
	assert.Positive(t, res.Duration)
}
