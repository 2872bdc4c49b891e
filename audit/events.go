package audit

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionJobEnqueued    = "job.enqueued"
	ActionJobStarted     = "job.started"
	ActionJobCompleted   = "job.completed"
	ActionJobFailed      = "job.failed"
	ActionJobRetrying    = "job.retrying"
	ActionJobDLQ         = "job.dlq"
	ActionCycleStarted   = "cycle.started"
	ActionCycleCompleted = "cycle.completed"
	ActionCronFired      = "cron.fired"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "marketsync.job"
	CategoryCycle = "marketsync.cycle"
	CategoryCron  = "marketsync.cron"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceCycle = "ingestion_cycle"
	ResourceCron  = "cron_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobRetrying,
		ActionJobDLQ,
		ActionCycleStarted,
		ActionCycleCompleted,
		ActionCronFired,
	}
}
