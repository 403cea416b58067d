package timetable

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"
)

// Config holds the genetic algorithm parameters for one run.
type Config struct {
	PopulationSize   int
	Generations      int
	MutationRate     float64
	TournamentSize   int
	EliteCount       int
	ProgressInterval int
	Workers          int
	Seed             int64
	Weights          Weights
}

// DefaultConfig returns the standard run parameters.
func DefaultConfig() Config {
	return Config{
		PopulationSize:   50,
		Generations:      200,
		MutationRate:     0.1,
		TournamentSize:   5,
		EliteCount:       5,
		ProgressInterval: 20,
		Workers:          runtime.GOMAXPROCS(0),
		Weights:          DefaultWeights(),
	}
}

// Validate rejects parameter combinations the loop cannot run with.
func (c Config) Validate() error {
	if c.PopulationSize <= 1 {
		return fmt.Errorf("population size must be > 1 (got %d)", c.PopulationSize)
	}
	if c.Generations <= 0 {
		return fmt.Errorf("generations must be > 0 (got %d)", c.Generations)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("mutation rate must be within [0,1] (got %f)", c.MutationRate)
	}
	if c.TournamentSize <= 0 || c.TournamentSize > c.PopulationSize {
		return fmt.Errorf("tournament size must be within [1, population] (got %d)", c.TournamentSize)
	}
	if c.EliteCount < 0 || c.EliteCount >= c.PopulationSize {
		return fmt.Errorf("elite count must be within [0, population) (got %d)", c.EliteCount)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be > 0 (got %d)", c.ProgressInterval)
	}
	return nil
}

// Progress is a read-only observation emitted at the reporting cadence.
type Progress struct {
	Generation     int
	BestFitness    float64
	BestGeneration int
}

// ProgressFunc receives progress observations. It must not block; it is
// called synchronously between generations.
type ProgressFunc func(Progress)

// Result is the outcome of a finished run: the best-ever candidate as a
// detached snapshot plus its statistics.
type Result struct {
	Best        *Candidate
	Fitness     float64
	Generation  int
	Breakdown   Breakdown
	Evaluations int
	Duration    time.Duration
}

// bestTracker keeps the best-ever candidate as a detached snapshot together
// with the generation index it was first observed in.
type bestTracker struct {
	best       *Candidate
	fitness    float64
	generation int
}

func newBestTracker() *bestTracker {
	return &bestTracker{fitness: math.Inf(-1)}
}

// observe records the population's best member if it improves on the best so
// far. gen is the generation index the population belongs to; the offspring
// inspected after the loop carry the index one past the last loop iteration.
func (b *bestTracker) observe(pop *Population, gen int) {
	i := pop.BestIndex()
	if pop.members[i].fitness > b.fitness {
		b.fitness = pop.members[i].fitness
		b.best = pop.members[i].Clone()
		b.generation = gen
	}
}

// Engine runs the generation loop: initialize, evaluate, select, recombine,
// mutate, repeat for a fixed budget, always retaining the best-ever
// candidate. The loop is synchronous; only candidate evaluation inside a
// generation fans out across workers.
type Engine struct {
	problem  *Problem
	cfg      Config
	rng      *rand.Rand
	eval     *Evaluator
	ops      *operators
	progress ProgressFunc
}

// New validates the problem and configuration and prepares an engine. A zero
// seed picks a time-based one; pass an explicit seed for reproducible runs.
func New(problem *Problem, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Engine{
		problem: problem,
		cfg:     cfg,
		rng:     rng,
		eval:    NewEvaluator(problem, cfg.Weights),
		ops:     newOperators(problem, rng),
	}, nil
}

// OnProgress registers the progress callback. Must be set before Run.
func (e *Engine) OnProgress(fn ProgressFunc) {
	e.progress = fn
}

// Run executes the full generation budget and returns the best-ever
// candidate with its statistics. Cancellation is honoured only at generation
// boundaries; an in-flight generation always completes. On cancellation the
// best result so far is returned together with the context error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	pop := newPopulation(e.cfg.PopulationSize)
	for i := 0; i < e.cfg.PopulationSize; i++ {
		pop.add(e.ops.randomCandidate())
	}
	evaluations := e.evaluateAll(pop)

	tracker := newBestTracker()

	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return e.result(tracker, evaluations, start), err
		}

		tracker.observe(pop, gen)

		if e.progress != nil && gen%e.cfg.ProgressInterval == 0 {
			e.progress(Progress{Generation: gen, BestFitness: tracker.fitness, BestGeneration: tracker.generation})
		}

		next := newPopulation(e.cfg.PopulationSize)
		for _, i := range pop.eliteIndexes(e.cfg.EliteCount) {
			next.add(pop.members[i])
		}
		for next.Len() < e.cfg.PopulationSize {
			p1 := pop.Select(e.rng, e.cfg.TournamentSize)
			p2 := pop.Select(e.rng, e.cfg.TournamentSize)

			c1, c2 := e.ops.crossover(p1, p2)
			if e.rng.Float64() < e.cfg.MutationRate {
				e.ops.mutate(c1)
			}
			if e.rng.Float64() < e.cfg.MutationRate {
				e.ops.mutate(c2)
			}

			next.add(c1)
			if next.Len() < e.cfg.PopulationSize {
				next.add(c2)
			}
		}
		evaluations += e.evaluateAll(next)
		pop = next
	}

	// The last generation's offspring have not been inspected yet.
	tracker.observe(pop, e.cfg.Generations)

	// Final cleanup: compact the winner and keep the compacted version
	// unless compaction somehow scored worse, preserving non-regression.
	if tracker.best != nil {
		compacted := tracker.best.Clone()
		e.ops.compactAll(compacted)
		e.eval.Score(compacted)
		if compacted.fitness >= tracker.fitness {
			tracker.best = compacted
			tracker.fitness = compacted.fitness
		}
		evaluations++
	}

	if e.progress != nil {
		e.progress(Progress{Generation: e.cfg.Generations, BestFitness: tracker.fitness, BestGeneration: tracker.generation})
	}

	return e.result(tracker, evaluations, start), nil
}

func (e *Engine) result(tracker *bestTracker, evaluations int, start time.Time) *Result {
	if tracker.best == nil {
		return &Result{Evaluations: evaluations, Duration: time.Since(start)}
	}
	return &Result{
		Best:        tracker.best.Clone(),
		Fitness:     tracker.fitness,
		Generation:  tracker.generation,
		Breakdown:   tracker.best.breakdown,
		Evaluations: evaluations,
		Duration:    time.Since(start),
	}
}

// evaluateAll scores every unevaluated member, fanning out across workers.
// Candidates share no mutable state, and which member ends up best is decided
// afterwards by index order, so the fan-out cannot perturb results.
func (e *Engine) evaluateAll(pop *Population) int {
	pending := make([]*Candidate, 0, pop.Len())
	for _, m := range pop.members {
		if !m.evaluated {
			pending = append(pending, m)
		}
	}

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers == 1 || len(pending) < 2 {
		for _, m := range pending {
			e.eval.Score(m)
		}
		return len(pending)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < len(pending); i += workers {
				e.eval.Score(pending[i])
			}
		}(w)
	}
	wg.Wait()
	return len(pending)
}
