package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStudent() Student {
	return Student{FirstName: "Ada", LastName: "Lovelace", AgeYears: 6, AgeMonths: 3, School: "Riverside"}
}

func TestStudentValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Student)
		wantErr string
	}{
		{name: "valid", mutate: func(*Student) {}},
		{name: "age lower bound", mutate: func(s *Student) { s.AgeYears, s.AgeMonths = 0, 0 }},
		{name: "age upper bound", mutate: func(s *Student) { s.AgeYears, s.AgeMonths = 22, 11 }},
		{name: "blank first name", mutate: func(s *Student) { s.FirstName = "   " }, wantErr: "firstName is required"},
		{name: "missing last name", mutate: func(s *Student) { s.LastName = "" }, wantErr: "lastName is required"},
		{name: "missing school", mutate: func(s *Student) { s.School = "" }, wantErr: "school is required"},
		{name: "years too high", mutate: func(s *Student) { s.AgeYears = 23 }, wantErr: "ageYears must be between 0 and 22, got 23"},
		{name: "negative years", mutate: func(s *Student) { s.AgeYears = -1 }, wantErr: "ageYears must be between 0 and 22, got -1"},
		{name: "months too high", mutate: func(s *Student) { s.AgeMonths = 12 }, wantErr: "ageMonths must be between 0 and 11, got 12"},
		{name: "first name at limit", mutate: func(s *Student) { s.FirstName = strings.Repeat("a", MaxNameLength) }},
		{name: "multibyte name at limit", mutate: func(s *Student) { s.LastName = strings.Repeat("é", MaxNameLength) }},
		{name: "first name too long", mutate: func(s *Student) { s.FirstName = strings.Repeat("a", 5000) }, wantErr: "firstName must be at most 200 characters"},
		{name: "last name too long", mutate: func(s *Student) { s.LastName = strings.Repeat("é", MaxNameLength+1) }, wantErr: "lastName must be at most 200 characters"},
		{name: "school too long", mutate: func(s *Student) { s.School = strings.Repeat("s", MaxSchoolLength+1) }, wantErr: "school must be at most 200 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validStudent()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStudentDerivedFields(t *testing.T) {
	s := validStudent()
	assert.Equal(t, 75, s.AgeInMonths())
	assert.Equal(t, "Ada Lovelace", s.FullName())
	assert.Equal(t, "6y 3m", s.AgeLabel())

	padded := Student{FirstName: " Ada ", LastName: "Lovelace\t", School: " Riverside"}
	n := padded.Normalized()
	assert.Equal(t, "Ada", n.FirstName)
	assert.Equal(t, "Lovelace", n.LastName)
	assert.Equal(t, "Riverside", n.School)

	ev := Evaluation{Student: s, Status: StatusInProgress}
	assert.Equal(t, 75, ev.AgeInMonths())
	assert.False(t, ev.Completed())
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusInProgress, StatusCompleted} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("archived").Valid())
}
