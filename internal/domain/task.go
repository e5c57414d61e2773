package domain

import (
	"sort"
	"time"
)

// Task is one item of one subtest within an evaluation. Tasks are created
// once, when the evaluation is populated from the item bank; afterwards only
// Response and LastModifiedAt change.
type Task struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`

	// EvaluationID is the owning evaluation.
	EvaluationID string `json:"evaluationId"`

	// Subtest is the subtest the item belongs to.
	Subtest Subtest `json:"subtest"`

	// Position orders the task within its subtest (0-based).
	Position int `json:"position"`

	// Item is the item code printed on the record form, e.g. "A1".
	Item string `json:"item"`

	// Category is the language structure category of the item.
	Category string `json:"category"`

	// Description describes what the item probes.
	Description string `json:"description"`

	// Response is the recorded outcome.
	Response Response `json:"response"`

	// LastModifiedAt records the latest response write.
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

// TasksFor returns the tasks belonging to subtest, ordered by position.
func TasksFor(tasks []Task, subtest Subtest) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Subtest == subtest {
			out = append(out, t)
		}
	}
	SortTasks(out)
	return out
}

// SortTasks orders tasks by subtest presentation order and then position.
func SortTasks(tasks []Task) {
	rank := func(s Subtest) int {
		for i, v := range Subtests {
			if v == s {
				return i
			}
		}
		return len(Subtests)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := rank(tasks[i].Subtest), rank(tasks[j].Subtest)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].Position < tasks[j].Position
	})
}

// FindTask returns the task with the given id.
func FindTask(tasks []Task, taskID string) (Task, bool) {
	for _, t := range tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return Task{}, false
}
