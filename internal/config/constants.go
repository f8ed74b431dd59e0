package config

// JobState is the lifecycle state of an analysis job.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCancelled  JobState = "cancelled"
)

const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// KnownProviders is the fixed vocabulary of analysis backends a job
// may request. Enqueue rejects anything outside this list.
var KnownProviders = []string{"openai", "anthropic", "xai", "gemini"}
