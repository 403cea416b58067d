package timetable

import "math/rand"

// Population is one generation's ordered collection of candidates. Size is
// fixed for a run's lifetime; the engine owns the population exclusively for
// the duration of a generation.
type Population struct {
	members []*Candidate
}

func newPopulation(size int) *Population {
	return &Population{members: make([]*Candidate, 0, size)}
}

// Len returns the population size.
func (p *Population) Len() int {
	return len(p.members)
}

func (p *Population) add(c *Candidate) {
	p.members = append(p.members, c)
}

// BestIndex returns the index of the fittest member. Ties resolve to the
// lowest index so runs stay reproducible regardless of evaluation order.
func (p *Population) BestIndex() int {
	best := 0
	for i := 1; i < len(p.members); i++ {
		if p.members[i].fitness > p.members[best].fitness {
			best = i
		}
	}
	return best
}

// Select runs one tournament: sample tournamentSize members uniformly at
// random without replacement and return the fittest. The returned candidate
// is a read-only reference into the population; it is never mutated.
func (p *Population) Select(rng *rand.Rand, tournamentSize int) *Candidate {
	if tournamentSize > len(p.members) {
		tournamentSize = len(p.members)
	}
	order := rng.Perm(len(p.members))
	best := p.members[order[0]]
	for _, i := range order[1:tournamentSize] {
		if p.members[i].fitness > best.fitness {
			best = p.members[i]
		}
	}
	return best
}

// eliteIndexes returns the indexes of the n fittest members in descending
// fitness order, breaking ties by index.
func (p *Population) eliteIndexes(n int) []int {
	if n > len(p.members) {
		n = len(p.members)
	}
	idx := make([]int, len(p.members))
	for i := range idx {
		idx[i] = i
	}
	// Insertion sort keeps the tie-break stable without allocating a
	// comparator closure per generation.
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && p.members[idx[j]].fitness > p.members[idx[j-1]].fitness; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx[:n]
}
