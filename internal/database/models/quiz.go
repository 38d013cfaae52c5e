package models

import "github.com/google/uuid"

// Quiz questions are stored as a JSON document; the backend treats them
// as opaque and only the frontend interprets the structure.
type Quiz struct {
	Base
	Title     string `gorm:"not null" json:"title"`
	Questions string `gorm:"type:text;default:'[]'" json:"questions"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// QuizResponse holds one user's answers for a quiz. A resubmission
// overwrites the previous response.
type QuizResponse struct {
	Base
	QuizID  uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:ux_quiz_responses_quiz_user,priority:1" json:"quiz_id"`
	UserID  uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:ux_quiz_responses_quiz_user,priority:2" json:"user_id"`
	Answers string    `gorm:"type:text;default:'[]'" json:"answers"`
	Score   int       `json:"score"`
}

func (QuizResponse) TableName() string {
	return "quiz_responses"
}
