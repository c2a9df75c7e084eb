package domain

// EventType defines the type of real-time event.
type EventType string

const (
	EventCollectionStarted   EventType = "COLLECTION_STARTED"
	EventCollectionCompleted EventType = "COLLECTION_COMPLETED"
	EventCollectionFailed    EventType = "COLLECTION_FAILED"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	ProjectID int64       `json:"projectId"` // Used for routing to project rooms
}

// CollectionEventPayload describes a collection run to subscribers.
type CollectionEventPayload struct {
	RunID           string           `json:"runId"`
	Trigger         string           `json:"trigger"`
	Status          CollectionStatus `json:"status"`
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
	PointsRecorded  int              `json:"pointsRecorded,omitempty"`
	CountersWritten int              `json:"countersWritten,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// NewCollectionEvent builds the event announcing a run's state.
func NewCollectionEvent(eventType EventType, result *CollectionResult) Event {
	payload := CollectionEventPayload{
		RunID:           result.RunID.String(),
		Trigger:         string(result.Trigger),
		Status:          result.Status,
		StartDate:       result.Range.Start.Format(DateLayout),
		EndDate:         result.Range.End.Format(DateLayout),
		PointsRecorded:  result.Runs.PointsRecorded,
		CountersWritten: result.CaseCountersWritten + result.Runs.CountersWritten,
	}
	if err := result.Err(); err != nil {
		payload.Error = err.Error()
	}
	return Event{Type: eventType, Payload: payload, ProjectID: result.ProjectID}
}
