package models

import (
	"coachyard/backend/internal/utils"
)

type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.ID = utils.NewSixID()
	}
}

func NewBase() Base {
	return Base{ID: utils.NewSixID()}
}
