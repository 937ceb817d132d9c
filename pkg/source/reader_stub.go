package source

import (
	"context"
	"sync"
)

type ReaderStub struct {
	mu          sync.RWMutex
	assignments map[string][]Assignment
	workouts    map[string][]Workout
	meals       map[string][]Meal
	sleepLogs   map[string][]SleepLog
	// Calls counts reads per domain.
	Calls map[string]int
	Err   error
}

func NewReaderStub() *ReaderStub {
	return &ReaderStub{
		assignments: make(map[string][]Assignment),
		workouts:    make(map[string][]Workout),
		meals:       make(map[string][]Meal),
		sleepLogs:   make(map[string][]SleepLog),
		Calls:       make(map[string]int),
	}
}

func (s *ReaderStub) AddAssignments(userId string, items ...Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userId] = append(s.assignments[userId], items...)
}

func (s *ReaderStub) AddWorkouts(userId string, items ...Workout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workouts[userId] = append(s.workouts[userId], items...)
}

func (s *ReaderStub) AddMeals(userId string, items ...Meal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meals[userId] = append(s.meals[userId], items...)
}

func (s *ReaderStub) AddSleepLogs(userId string, items ...SleepLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleepLogs[userId] = append(s.sleepLogs[userId], items...)
}

func (s *ReaderStub) Assignments(ctx context.Context, userId string, r Range) ([]Assignment, error) {
	return stubRead(s, "assignments", func() []Assignment { return s.assignments[userId] }, func(a Assignment) bool { return r.Contains(a.DueDate) })
}

func (s *ReaderStub) Workouts(ctx context.Context, userId string, r Range) ([]Workout, error) {
	return stubRead(s, "workouts", func() []Workout { return s.workouts[userId] }, func(w Workout) bool { return r.Contains(w.Date) })
}

func (s *ReaderStub) Meals(ctx context.Context, userId string, r Range) ([]Meal, error) {
	return stubRead(s, "meals", func() []Meal { return s.meals[userId] }, func(m Meal) bool { return r.Contains(m.Date) })
}

func (s *ReaderStub) SleepLogs(ctx context.Context, userId string, r Range) ([]SleepLog, error) {
	return stubRead(s, "sleep", func() []SleepLog { return s.sleepLogs[userId] }, func(l SleepLog) bool { return r.Contains(l.Date) })
}

func stubRead[T any](s *ReaderStub, what string, items func() []T, keep func(T) bool) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls[what]++
	if s.Err != nil {
		return nil, s.Err
	}
	result := make([]T, 0)
	for _, item := range items() {
		if keep(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

var _ Reader = (*ReaderStub)(nil)
