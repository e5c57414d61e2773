package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultItemBank(t *testing.T) {
	bank := DefaultItemBank()
	require.NoError(t, bank.Validate())
	for _, s := range Subtests {
		assert.Equal(t, 25, bank.Size(s), s)
		assert.Equal(t, "A1", bank.Items[s][0].Item)
		assert.Equal(t, "A25", bank.Items[s][24].Item)
	}
}

func TestItemBankValidate(t *testing.T) {
	tests := []struct {
		name    string
		bank    ItemBank
		wantErr string
	}{
		{
			name:    "missing subtest",
			bank:    ItemBank{Items: map[Subtest][]BankItem{OralExpression: {{Item: "A1", Category: CategorySyntactic}}}},
			wantErr: "subtest listening_comprehension has no items",
		},
		{
			name: "duplicate item",
			bank: ItemBank{Items: map[Subtest][]BankItem{
				OralExpression:         {{Item: "A1", Category: CategorySyntactic}, {Item: "A1", Category: CategorySyntactic}},
				ListeningComprehension: {{Item: "A1", Category: CategorySyntactic}},
			}},
			wantErr: `duplicate item "A1"`,
		},
		{
			name: "unknown category",
			bank: ItemBank{Items: map[Subtest][]BankItem{
				OralExpression:         {{Item: "A1", Category: "Phonology"}},
				ListeningComprehension: {{Item: "A1", Category: CategoryPragmatic}},
			}},
			wantErr: `unknown category "Phonology"`,
		},
		{
			name: "unknown subtest",
			bank: ItemBank{Items: map[Subtest][]BankItem{
				OralExpression:         {{Item: "A1", Category: CategoryPragmatic}},
				ListeningComprehension: {{Item: "A1", Category: CategoryPragmatic}},
				Subtest("reading"):     {{Item: "A1", Category: CategoryPragmatic}},
			}},
			wantErr: `unknown subtest "reading"`,
		},
		{
			name: "item code too long",
			bank: ItemBank{Items: map[Subtest][]BankItem{
				OralExpression:         {{Item: strings.Repeat("A", MaxItemCodeLength+1), Category: CategoryPragmatic}},
				ListeningComprehension: {{Item: "A1", Category: CategoryPragmatic}},
			}},
			wantErr: "code must be at most 32 characters",
		},
		{
			name: "description too long",
			bank: ItemBank{Items: map[Subtest][]BankItem{
				OralExpression:         {{Item: "A1", Category: CategoryPragmatic, Description: strings.Repeat("d", MaxDescriptionLength+1)}},
				ListeningComprehension: {{Item: "A1", Category: CategoryPragmatic, Description: strings.Repeat("d", MaxDescriptionLength)}},
			}},
			wantErr: `item "A1" description must be at most 500 characters`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bank.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewTasks(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tasks := DefaultItemBank().NewTasks("ev-7", now, sequentialIDs())
	require.Len(t, tasks, 50)

	seen := map[string]bool{}
	for _, task := range tasks {
		assert.Equal(t, "ev-7", task.EvaluationID)
		assert.Equal(t, ResponseUnanswered, task.Response)
		assert.Equal(t, now, task.LastModifiedAt)
		assert.False(t, seen[task.ID], "duplicate task id %s", task.ID)
		seen[task.ID] = true
	}

	oe := TasksFor(tasks, OralExpression)
	require.Len(t, oe, 25)
	for i, task := range oe {
		assert.Equal(t, i, task.Position)
	}

	found, ok := FindTask(tasks, oe[3].ID)
	require.True(t, ok)
	assert.Equal(t, "A4", found.Item)
	_, ok = FindTask(tasks, "missing")
	assert.False(t, ok)
}

func TestSortTasks(t *testing.T) {
	tasks := []Task{
		{ID: "c", Subtest: OralExpression, Position: 1},
		{ID: "a", Subtest: ListeningComprehension, Position: 1},
		{ID: "b", Subtest: OralExpression, Position: 0},
		{ID: "d", Subtest: ListeningComprehension, Position: 0},
	}
	SortTasks(tasks)
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}
