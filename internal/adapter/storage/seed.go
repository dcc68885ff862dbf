package storage

import "github.com/rl1809/lesson-booking/internal/core/domain"

// DefaultLessons is the catalog written on first start.
func DefaultLessons() []domain.Lesson {
	return []domain.Lesson{
		{ID: "math-london", Subject: "Math", Location: "London", Price: 100, SpacesAvailable: 5, Icon: "fa-calculator", Description: "Algebra and geometry for GCSE students."},
		{ID: "english-oxford", Subject: "English", Location: "Oxford", Price: 80, SpacesAvailable: 5, Icon: "fa-book", Description: "Creative writing and literature analysis."},
		{ID: "science-york", Subject: "Science", Location: "York", Price: 90, SpacesAvailable: 5, Icon: "fa-flask", Description: "Hands-on chemistry and physics experiments."},
		{ID: "music-bristol", Subject: "Music", Location: "Bristol", Price: 70, SpacesAvailable: 5, Icon: "fa-music", Description: "Piano and music theory for beginners."},
		{ID: "art-manchester", Subject: "Art", Location: "Manchester", Price: 60, SpacesAvailable: 5, Icon: "fa-palette", Description: "Drawing, painting and colour theory."},
		{ID: "coding-cambridge", Subject: "Coding", Location: "Cambridge", Price: 120, SpacesAvailable: 5, Icon: "fa-code", Description: "Introduction to programming with Python."},
		{ID: "history-leeds", Subject: "History", Location: "Leeds", Price: 75, SpacesAvailable: 5, Icon: "fa-landmark", Description: "Modern British and European history."},
		{ID: "french-brighton", Subject: "French", Location: "Brighton", Price: 85, SpacesAvailable: 5, Icon: "fa-language", Description: "Conversational French for all levels."},
	}
}
