package logging

// ContextKey defines the context key type.
type ContextKey string

// ContextIDKey holds the key of the context ID used to correlate the
// log lines of one frame moving through the pipelines.
const ContextIDKey ContextKey = "ctx_id"
