package enums

// EventStatus is the terminal outcome recorded in the processed-event audit log.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "SUCCESS"
	EventStatusFailed  EventStatus = "FAILED"
	EventStatusSkipped EventStatus = "SKIPPED"
)
