package domain

type Lesson struct {
	ID              string  `json:"id" db:"id"`
	Subject         string  `json:"subject" db:"subject"`
	Location        string  `json:"location" db:"location"`
	Price           float64 `json:"price" db:"price"`
	SpacesAvailable int     `json:"spacesAvailable" db:"spaces_available"`
	Icon            string  `json:"icon" db:"icon"`
	Description     string  `json:"description" db:"description"`
}

// LessonUpdate is a partial administrative overwrite. Nil fields are left untouched.
type LessonUpdate struct {
	Subject         *string  `json:"subject,omitempty" validate:"omitempty,min=1"`
	Location        *string  `json:"location,omitempty" validate:"omitempty,min=1"`
	Price           *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	SpacesAvailable *int     `json:"spacesAvailable,omitempty" validate:"omitempty,gte=0"`
	Icon            *string  `json:"icon,omitempty"`
	Description     *string  `json:"description,omitempty"`
}

func (u LessonUpdate) IsEmpty() bool {
	return u.Subject == nil && u.Location == nil && u.Price == nil &&
		u.SpacesAvailable == nil && u.Icon == nil && u.Description == nil
}

// Apply returns a copy of l with the non-nil fields of u written over it.
func (u LessonUpdate) Apply(l Lesson) Lesson {
	if u.Subject != nil {
		l.Subject = *u.Subject
	}
	if u.Location != nil {
		l.Location = *u.Location
	}
	if u.Price != nil {
		l.Price = *u.Price
	}
	if u.SpacesAvailable != nil {
		l.SpacesAvailable = *u.SpacesAvailable
	}
	if u.Icon != nil {
		l.Icon = *u.Icon
	}
	if u.Description != nil {
		l.Description = *u.Description
	}
	return l
}
