package timetable

import (
	"fmt"
	"sort"
)

// Weekly grid dimensions. Fixed for every run.
const (
	DaysPerWeek  = 5
	PeriodsPerDay = 6
	SlotsPerWeek = DaysPerWeek * PeriodsPerDay
)

// DayNames lists weekdays in grid order.
var DayNames = [DaysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// Subject is an academic subject taught at the school.
type Subject struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// Teacher is an instructor together with the subjects they are qualified to teach.
type Teacher struct {
	ID       string   `json:"id" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Subjects []string `json:"subjects"`
}

// Class is a school class with its weekly curriculum: required lesson count per subject.
type Class struct {
	ID         string         `json:"id" validate:"required"`
	Name       string         `json:"name" validate:"required"`
	Curriculum map[string]int `json:"curriculum"`
}

// ConfigurationError reports a problem description that cannot produce a
// usable schedule. It is detected before a run starts; the search loop itself
// never fails.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "timetable: invalid problem: " + e.Reason
}

// Problem is the immutable input to the scheduler: subjects, teachers with
// qualifications and classes with curricula, plus derived lookup indexes.
// Build it once with NewProblem and treat it as read-only for the run.
type Problem struct {
	Subjects []Subject
	Teachers []Teacher
	Classes  []Class

	subjectsByID      map[string]int
	teachersByID      map[string]int
	classesByID       map[string]int
	teachersBySubject map[string][]int
}

// NewProblem builds the lookup indexes over the given entities. The slices
// are retained by reference; callers must not modify them afterwards.
func NewProblem(subjects []Subject, teachers []Teacher, classes []Class) *Problem {
	p := &Problem{
		Subjects:          subjects,
		Teachers:          teachers,
		Classes:           classes,
		subjectsByID:      make(map[string]int, len(subjects)),
		teachersByID:      make(map[string]int, len(teachers)),
		classesByID:       make(map[string]int, len(classes)),
		teachersBySubject: make(map[string][]int),
	}
	for i, s := range subjects {
		p.subjectsByID[s.ID] = i
	}
	for i, t := range teachers {
		p.teachersByID[t.ID] = i
		for _, subjectID := range t.Subjects {
			p.teachersBySubject[subjectID] = append(p.teachersBySubject[subjectID], i)
		}
	}
	for i, c := range classes {
		p.classesByID[c.ID] = i
	}
	return p
}

// Validate checks the problem description against the configuration error
// cases: empty rosters, dangling references, subjects demanded by a
// curriculum with no qualified teacher, and curricula that cannot fit the
// weekly grid even nominally.
func (p *Problem) Validate() error {
	if len(p.Subjects) == 0 {
		return &ConfigurationError{Reason: "no subjects defined"}
	}
	if len(p.Teachers) == 0 {
		return &ConfigurationError{Reason: "no teachers defined"}
	}
	if len(p.Classes) == 0 {
		return &ConfigurationError{Reason: "no classes defined"}
	}

	for _, t := range p.Teachers {
		for _, subjectID := range t.Subjects {
			if _, ok := p.subjectsByID[subjectID]; !ok {
				return &ConfigurationError{Reason: fmt.Sprintf("teacher %s references unknown subject %s", t.ID, subjectID)}
			}
		}
	}

	for _, c := range p.Classes {
		total := 0
		for subjectID, count := range c.Curriculum {
			if count < 0 {
				return &ConfigurationError{Reason: fmt.Sprintf("class %s requires a negative count for subject %s", c.ID, subjectID)}
			}
			if _, ok := p.subjectsByID[subjectID]; !ok {
				return &ConfigurationError{Reason: fmt.Sprintf("class %s references unknown subject %s", c.ID, subjectID)}
			}
			if count > 0 && len(p.teachersBySubject[subjectID]) == 0 {
				return &ConfigurationError{Reason: fmt.Sprintf("subject %s required by class %s has no qualified teacher", subjectID, c.ID)}
			}
			total += count
		}
		if total > SlotsPerWeek {
			return &ConfigurationError{Reason: fmt.Sprintf("class %s requires %d weekly lessons but the grid holds %d", c.ID, total, SlotsPerWeek)}
		}
	}
	return nil
}

// SubjectByID returns the subject record for the given id.
func (p *Problem) SubjectByID(id string) (Subject, bool) {
	i, ok := p.subjectsByID[id]
	if !ok {
		return Subject{}, false
	}
	return p.Subjects[i], true
}

// TeacherByID returns the teacher record for the given id.
func (p *Problem) TeacherByID(id string) (Teacher, bool) {
	i, ok := p.teachersByID[id]
	if !ok {
		return Teacher{}, false
	}
	return p.Teachers[i], true
}

// ClassByID returns the class record for the given id.
func (p *Problem) ClassByID(id string) (Class, bool) {
	i, ok := p.classesByID[id]
	if !ok {
		return Class{}, false
	}
	return p.Classes[i], true
}

// Qualified reports whether the teacher may teach the subject.
func (p *Problem) Qualified(teacherID, subjectID string) bool {
	i, ok := p.teachersByID[teacherID]
	if !ok {
		return false
	}
	for _, s := range p.Teachers[i].Subjects {
		if s == subjectID {
			return true
		}
	}
	return false
}

// qualifiedTeachers returns indexes into Teachers for the subject, in roster
// order so that runs stay reproducible under a fixed seed.
func (p *Problem) qualifiedTeachers(subjectID string) []int {
	return p.teachersBySubject[subjectID]
}

// curriculumSubjects returns the subject ids of a class curriculum in a
// deterministic order.
func curriculumSubjects(c Class) []string {
	ids := make([]string, 0, len(c.Curriculum))
	for id := range c.Curriculum {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
