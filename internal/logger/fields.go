package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the pipeline run ID
	FieldJobID = "job_id"

	// FieldFamily is the entity family a job processes
	FieldFamily = "family"

	// FieldPhase is the pipeline phase (validate, extract, transform, load)
	FieldPhase = "phase"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldEntityID is the remote identifier of a single record
	FieldEntityID = "entity_id"
)

// Metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldAttempt is the 1-based attempt number of a retried operation
	FieldAttempt = "attempt"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is the data size in bytes
	FieldSize = "size"
)
