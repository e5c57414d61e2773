package domain

// RawScore is the aggregate of one subtest's responses.
// Invariant: 0 <= Raw <= Answered <= ItemCount.
type RawScore struct {
	// Subtest is the subtest the score was computed for.
	Subtest Subtest `json:"subtest"`

	// Raw counts tasks answered Correct.
	Raw int `json:"raw"`

	// ItemCount is the number of tasks in the subtest.
	ItemCount int `json:"itemCount"`

	// Answered counts tasks whose response is not Unanswered.
	Answered int `json:"answered"`
}

// Complete reports whether every task in the subtest has been answered.
func (r RawScore) Complete() bool { return r.ItemCount > 0 && r.Answered == r.ItemCount }

// ComputeRaw counts the responses of subtest's tasks. Tasks belonging to
// other subtests are ignored. It has no side effects and is valid in any
// lifecycle state.
func ComputeRaw(tasks []Task, subtest Subtest) RawScore {
	score := RawScore{Subtest: subtest}
	for _, t := range tasks {
		if t.Subtest != subtest {
			continue
		}
		score.ItemCount++
		if t.Response.Answered() {
			score.Answered++
		}
		if t.Response == ResponseCorrect {
			score.Raw++
		}
	}
	return score
}

// ComputeAllRaw returns the raw score of every subtest, keyed by subtest.
func ComputeAllRaw(tasks []Task) map[Subtest]RawScore {
	out := make(map[Subtest]RawScore, len(Subtests))
	for _, s := range Subtests {
		out[s] = ComputeRaw(tasks, s)
	}
	return out
}
