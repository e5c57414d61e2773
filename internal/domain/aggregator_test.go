package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t-%d", n)
	}
}

// answer sets the first correct tasks of subtest to Correct and the next
// incorrect tasks to Incorrect.
func answer(tasks []Task, subtest Subtest, correct, incorrect int) {
	i := 0
	for k := range tasks {
		if tasks[k].Subtest != subtest {
			continue
		}
		switch {
		case i < correct:
			tasks[k].Response = ResponseCorrect
		case i < correct+incorrect:
			tasks[k].Response = ResponseIncorrect
		}
		i++
	}
}

func TestComputeRaw(t *testing.T) {
	bank := DefaultItemBank()

	tests := []struct {
		name                  string
		correct, incorrect    int
		wantRaw, wantAnswered int
		wantComplete          bool
	}{
		{name: "nothing answered", wantRaw: 0, wantAnswered: 0},
		{name: "some correct", correct: 18, incorrect: 2, wantRaw: 18, wantAnswered: 20},
		{name: "all incorrect", incorrect: 25, wantRaw: 0, wantAnswered: 25, wantComplete: true},
		{name: "all correct", correct: 25, wantRaw: 25, wantAnswered: 25, wantComplete: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := bank.NewTasks("ev-1", time.Now(), sequentialIDs())
			answer(tasks, OralExpression, tt.correct, tt.incorrect)
			answer(tasks, ListeningComprehension, 25, 0)

			got := ComputeRaw(tasks, OralExpression)
			assert.Equal(t, OralExpression, got.Subtest)
			assert.Equal(t, tt.wantRaw, got.Raw)
			assert.Equal(t, 25, got.ItemCount)
			assert.Equal(t, tt.wantAnswered, got.Answered)
			assert.Equal(t, tt.wantComplete, got.Complete())
			assert.GreaterOrEqual(t, got.Raw, 0)
			assert.LessOrEqual(t, got.Raw, got.ItemCount)
		})
	}
}

func TestComputeRawMatchesCorrectCount(t *testing.T) {
	tasks := DefaultItemBank().NewTasks("ev-1", time.Now(), sequentialIDs())
	// Alternate responses across every task of both subtests.
	responses := []Response{ResponseCorrect, ResponseIncorrect, ResponseUnanswered}
	for i := range tasks {
		tasks[i].Response = responses[i%len(responses)]
	}

	all := ComputeAllRaw(tasks)
	require.Len(t, all, 2)
	for _, s := range Subtests {
		want := 0
		for _, task := range tasks {
			if task.Subtest == s && task.Response == ResponseCorrect {
				want++
			}
		}
		assert.Equal(t, want, all[s].Raw, s)
		assert.LessOrEqual(t, all[s].Raw, all[s].ItemCount)
	}
}

func TestComputeRawEmpty(t *testing.T) {
	got := ComputeRaw(nil, ListeningComprehension)
	assert.Equal(t, RawScore{Subtest: ListeningComprehension}, got)
	assert.False(t, got.Complete())
}
