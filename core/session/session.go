// Package session keeps per-user navigation state in memory.
package session

import "time"

// State is the position of a user inside the menu tree.
type State string

const (
	// MainMenu is the initial state: the category list is shown.
	MainMenu State = "main_menu"
	// CategorySelected means a category is chosen and its questions are shown.
	CategorySelected State = "category_selected"
	// QuestionSelected means an answer is shown.
	QuestionSelected State = "question_selected"
)

// NoQuestion marks an empty question selection.
const NoQuestion = -1

// Valid reports whether st is one of the known states.
func (st State) Valid() bool {
	switch st {
	case MainMenu, CategorySelected, QuestionSelected:
		return true
	}
	return false
}

// Session is the navigation record of one user.
// SelectedCategory is set iff State != MainMenu; SelectedQuestion is set iff State == QuestionSelected.
type Session struct {
	UserID           string
	State            State
	SelectedCategory string
	SelectedQuestion int
	LastInteraction  time.Time
}

func newSession(userID string, now time.Time) Session {
	s := Session{UserID: userID}
	s.Reset(now)
	return s
}

// Reset returns the session to the main menu and clears selections.
func (s *Session) Reset(now time.Time) {
	s.State = MainMenu
	s.SelectedCategory = ""
	s.SelectedQuestion = NoQuestion
	s.LastInteraction = now
}

// Touch records activity.
func (s *Session) Touch(now time.Time) {
	s.LastInteraction = now
}

// SelectCategory moves to the question list of key.
func (s *Session) SelectCategory(key string) {
	s.State = CategorySelected
	s.SelectedCategory = key
	s.SelectedQuestion = NoQuestion
}

// SelectQuestion moves to the answer of the 0-based question index.
func (s *Session) SelectQuestion(index int) {
	s.State = QuestionSelected
	s.SelectedQuestion = index
}

// BackToCategory leaves the answer view and keeps the selected category.
func (s *Session) BackToCategory() {
	s.State = CategorySelected
	s.SelectedQuestion = NoQuestion
}
