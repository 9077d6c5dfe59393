package models

import "errors"

// ErrLessonNotFound is returned by lesson caches for stages without stored
// lesson text.
var ErrLessonNotFound = errors.New("lesson not found")

type Quiz struct {
	Question string
	Answer   string
}

type Stage struct {
	Index int
	Name  string
	Quiz  Quiz
}
