package audit

import "time"

// EventType represents the type of audit event recorded for a case.
type EventType string

const (
	// Orchestrator events
	EventRequestReceived   EventType = "request.received"
	EventPlanProduced      EventType = "orchestrator.plan"
	EventEvidenceCollected EventType = "orchestrator.execute"
	EventAnswerInterpreted EventType = "orchestrator.interpret"
	EventAnswerRetried     EventType = "orchestrator.retry"
	EventAnswerReturned    EventType = "orchestrator.answered"

	// Guard / grounding events
	EventInventionDetected EventType = "guard.invention_detected"
	EventClaimContradicted EventType = "guard.contradiction"

	// Fact store events
	EventFactVerified  EventType = "facts.verified"
	EventFactLifecycle EventType = "facts.lifecycle_transition"

	// Mutation events
	EventMutationProposed EventType = "mutation.proposed"
	EventMutationApplied  EventType = "mutation.applied"
	EventMutationBlocked  EventType = "mutation.policy_blocked"
	EventRollbackApplied  EventType = "mutation.rollback"

	// Fix-It events
	EventFixItStarted    EventType = "fixit.started"
	EventFixItTransition EventType = "fixit.transition"
	EventFixItStuck      EventType = "fixit.stuck"
	EventFixItResolved   EventType = "fixit.resolved"

	// Recipe events
	EventRecipeCreated  EventType = "recipe.created"
	EventRecipeDemoted  EventType = "recipe.demoted"
	EventRecipeMatched  EventType = "recipe.matched"

	// Configuration / system events
	EventConfigLoaded   EventType = "config.loaded"
	EventConfigReloaded EventType = "config.reload"
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventHealthCheck    EventType = "system.health_check"
)

// Result represents the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	User string `json:"user,omitempty"`

	Resource     string `json:"resource,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`

	Action      string                 `json:"action,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

func (e *Event) WithResource(resource, resourceType string) *Event {
	e.Resource = resource
	e.ResourceType = resourceType
	return e
}

func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
