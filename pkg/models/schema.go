package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEventEnvelope(env *EventEnvelope) error {
	if env == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "event envelope cannot be nil",
		}
	}

	if env.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "envelope ID is required",
		}
	}

	if env.Source == "" {
		return &ValidationError{
			Field:   "source",
			Message: "envelope source is required",
		}
	}

	if env.Timestamp.IsZero() {
		return &ValidationError{
			Field:   "timestamp",
			Message: "envelope timestamp is required",
		}
	}

	if env.Event.SourceMessageID == "" {
		return &ValidationError{
			Field:   "event.source_message_id",
			Message: "source message id is required",
		}
	}

	if env.Event.ChatID == 0 {
		return &ValidationError{
			Field:   "event.chat_id",
			Message: "chat id is required",
		}
	}

	if env.Event.Text == "" && env.Event.Media == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event must carry text or media",
		}
	}

	return nil
}
