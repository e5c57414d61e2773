package domain

import (
	"fmt"
	"time"
)

// Item categories used by the record form.
const (
	CategoryLexicalSemantic = "Lexical/Semantic"
	CategorySyntactic       = "Syntactic"
	CategorySupralinguistic = "Supralinguistic"
	CategoryPragmatic       = "Pragmatic"
)

// Categories lists the valid item categories.
var Categories = []string{
	CategoryLexicalSemantic,
	CategorySyntactic,
	CategorySupralinguistic,
	CategoryPragmatic,
}

// BankItem is one item definition in the fixed item bank.
type BankItem struct {
	Item        string `json:"item" yaml:"item"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description" yaml:"description"`
}

// ItemBank holds the fixed item definitions for every subtest. Every new
// evaluation receives one task per bank item.
type ItemBank struct {
	Items map[Subtest][]BankItem
}

// Size returns the number of items in subtest.
func (b ItemBank) Size(subtest Subtest) int { return len(b.Items[subtest]) }

// Validate checks that every subtest has at least one item, that item codes
// are unique within a subtest, that categories are known and that codes and
// descriptions fit their length limits.
func (b ItemBank) Validate() error {
	verr := NewValidationError("item bank")
	for _, s := range Subtests {
		items := b.Items[s]
		if len(items) == 0 {
			verr.AddErrorf("subtest %s has no items", s)
			continue
		}
		seen := make(map[string]struct{}, len(items))
		for i, it := range items {
			if it.Item == "" {
				verr.AddErrorf("subtest %s item %d has no item code", s, i)
			}
			if TooLong(it.Item, MaxItemCodeLength) {
				verr.AddErrorf("subtest %s item %d code must be at most %d characters", s, i, MaxItemCodeLength)
			}
			if TooLong(it.Description, MaxDescriptionLength) {
				verr.AddErrorf("subtest %s item %q description must be at most %d characters", s, it.Item, MaxDescriptionLength)
			}
			if _, dup := seen[it.Item]; dup {
				verr.AddErrorf("subtest %s has duplicate item %q", s, it.Item)
			}
			seen[it.Item] = struct{}{}
			if !knownCategory(it.Category) {
				verr.AddErrorf("subtest %s item %q has unknown category %q", s, it.Item, it.Category)
			}
		}
	}
	for s := range b.Items {
		if !s.Valid() {
			verr.AddErrorf("unknown subtest %q", s)
		}
	}
	return verr.ErrOrNil()
}

func knownCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// NewTasks allocates the task set of a new evaluation: one Unanswered task
// per bank item of every subtest. newID supplies task identifiers.
func (b ItemBank) NewTasks(evaluationID string, now time.Time, newID func() string) []Task {
	total := 0
	for _, s := range Subtests {
		total += len(b.Items[s])
	}
	tasks := make([]Task, 0, total)
	for _, s := range Subtests {
		for i, it := range b.Items[s] {
			tasks = append(tasks, Task{
				ID:             newID(),
				EvaluationID:   evaluationID,
				Subtest:        s,
				Position:       i,
				Item:           it.Item,
				Category:       it.Category,
				Description:    it.Description,
				Response:       ResponseUnanswered,
				LastModifiedAt: now,
			})
		}
	}
	return tasks
}

// DefaultItemBank returns the built-in item bank with 25 items per subtest.
func DefaultItemBank() ItemBank {
	return ItemBank{Items: map[Subtest][]BankItem{
		ListeningComprehension: buildItems([]itemDef{
			{CategoryLexicalSemantic, "vocabulary (nouns: word, letter)"},
			{CategorySyntactic, "compound subjects"},
			{CategoryLexicalSemantic, "vocabulary (verbs)"},
			{CategoryLexicalSemantic, "prepositions (in, on, under)"},
			{CategorySyntactic, "negation"},
			{CategorySyntactic, "plural nouns"},
			{CategorySyntactic, "subjective pronouns"},
			{CategoryLexicalSemantic, "vocabulary (adjectives)"},
			{CategorySyntactic, "regular past tense"},
			{CategoryLexicalSemantic, "comparatives"},
			{CategorySyntactic, "possessive nouns"},
			{CategorySupralinguistic, "idioms"},
			{CategorySyntactic, "direct and indirect objects"},
			{CategorySyntactic, "passive voice"},
			{CategorySyntactic, "conjunctions (and, but)"},
			{CategorySupralinguistic, "inference"},
			{CategoryLexicalSemantic, "vocabulary (adverbs)"},
			{CategorySyntactic, "relative clauses"},
			{CategoryLexicalSemantic, "multiple meaning words"},
			{CategorySyntactic, "modal auxiliaries"},
			{CategorySyntactic, "future tense"},
			{CategoryLexicalSemantic, "superlatives"},
			{CategoryPragmatic, "indirect requests"},
			{CategorySyntactic, "embedded clauses"},
			{CategorySupralinguistic, "ambiguous sentences"},
		}),
		OralExpression: buildItems([]itemDef{
			{CategoryLexicalSemantic, "noun phrases"},
			{CategoryLexicalSemantic, "adjectives (ex: three)"},
			{CategorySyntactic, "verb phrases"},
			{CategoryLexicalSemantic, "prepositional phrases"},
			{CategorySyntactic, "plural nouns"},
			{CategorySyntactic, "possessive nouns"},
			{CategorySyntactic, "objective pronouns"},
			{CategorySyntactic, "present progressive"},
			{CategorySyntactic, "irregular past tense"},
			{CategorySyntactic, "copula"},
			{CategoryPragmatic, "wh- questions"},
			{CategorySyntactic, "negation"},
			{CategoryLexicalSemantic, "comparatives"},
			{CategorySyntactic, "conjunctions"},
			{CategoryLexicalSemantic, "synonyms"},
			{CategoryLexicalSemantic, "antonyms"},
			{CategorySupralinguistic, "idioms"},
			{CategoryPragmatic, "polite requests"},
			{CategorySyntactic, "subordinate clauses"},
			{CategorySyntactic, "relative clauses"},
			{CategorySyntactic, "future tense"},
			{CategoryLexicalSemantic, "multiple meaning words"},
			{CategorySupralinguistic, "inference"},
			{CategoryPragmatic, "topic maintenance"},
			{CategorySyntactic, "complex sentences"},
		}),
	}}
}

type itemDef struct {
	category    string
	description string
}

func buildItems(defs []itemDef) []BankItem {
	items := make([]BankItem, len(defs))
	for i, d := range defs {
		items[i] = BankItem{
			Item:        fmt.Sprintf("A%d", i+1),
			Category:    d.category,
			Description: d.description,
		}
	}
	return items
}
