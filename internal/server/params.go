package server

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Presence of text fields is checked by the workflow so blank and missing values fail the
// same way. The tags here only bound sizes and ranges.
type PlanParams struct {
	SyllabusText string `json:"syllabus_text" form:"syllabus_text"`
	Timetable    string `json:"timetable" form:"timetable"`
	Week         int    `json:"week" form:"week" validate:"gte=0,lte=53"`
	Progress     int    `json:"progress" form:"progress" validate:"gte=0,lte=100"`
}

type IngestParams struct {
	SyllabusText string `json:"syllabus_text" form:"syllabus_text"`
}

type ApproveParams struct {
	PlanID int64 `json:"plan_id" form:"plan_id" validate:"gte=0"`
}

type DoubtParams struct {
	Question       string `json:"question" form:"question" validate:"max=4000"`
	ConversationID int64  `json:"conversation_id" form:"conversation_id" validate:"gte=0"`
}

type NotesParams struct {
	Topic string `json:"topic" form:"topic" validate:"max=200"`
}

// validateParams returns field -> failed tag, or nil when params are valid.
func validateParams(params any) map[string]string {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]string{"request": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}
