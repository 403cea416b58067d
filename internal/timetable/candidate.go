package timetable

// Assignment occupies one (slot, class) cell of the weekly grid. The zero
// value means the cell is free.
type Assignment struct {
	TeacherID string `json:"teacher_id"`
	SubjectID string `json:"subject_id"`
}

// Empty reports whether the cell holds no lesson.
func (a Assignment) Empty() bool {
	return a.TeacherID == "" && a.SubjectID == ""
}

// Candidate is one complete proposed weekly schedule: a dense grid of
// assignments (slot-major, class-minor) plus its memoized fitness. A
// candidate is owned by whoever created it; operators hand out fresh copies
// instead of mutating across ownership boundaries.
type Candidate struct {
	classes   int
	cells     []Assignment
	fitness   float64
	breakdown Breakdown
	evaluated bool
}

func newCandidate(classes int) *Candidate {
	return &Candidate{
		classes: classes,
		cells:   make([]Assignment, SlotsPerWeek*classes),
	}
}

func (c *Candidate) index(day, period, class int) int {
	return (day*PeriodsPerDay+period)*c.classes + class
}

// At returns the assignment at the given grid coordinate.
func (c *Candidate) At(day, period, class int) Assignment {
	return c.cells[c.index(day, period, class)]
}

// set writes a cell and invalidates the memoized fitness.
func (c *Candidate) set(day, period, class int, a Assignment) {
	c.cells[c.index(day, period, class)] = a
	c.evaluated = false
}

// Classes returns the number of class columns in the grid.
func (c *Candidate) Classes() int {
	return c.classes
}

// Lessons counts the non-empty cells.
func (c *Candidate) Lessons() int {
	n := 0
	for _, cell := range c.cells {
		if !cell.Empty() {
			n++
		}
	}
	return n
}

// Fitness returns the memoized score. Valid only after evaluation.
func (c *Candidate) Fitness() float64 {
	return c.fitness
}

// Breakdown returns the memoized violation counts. Valid only after evaluation.
func (c *Candidate) Breakdown() Breakdown {
	return c.breakdown
}

// Clone returns a deep copy the caller exclusively owns. The memoized
// fitness travels with the copy.
func (c *Candidate) Clone() *Candidate {
	dup := &Candidate{
		classes:   c.classes,
		cells:     make([]Assignment, len(c.cells)),
		fitness:   c.fitness,
		breakdown: c.breakdown,
		evaluated: c.evaluated,
	}
	copy(dup.cells, c.cells)
	return dup
}
