package constants

// Advisory lock identifiers. Obligation mutations take a per-row lock derived
// from the obligation id so two concurrent updates cannot each unregister the
// other's job.
const (
	MigrationLock int64 = iota + 1
	SchedulerLock
)

// ObligationLockBase offsets per-obligation lock ids away from the fixed ones.
const ObligationLockBase int64 = 1 << 16

func ObligationLock(obligationID int64) int64 {
	return ObligationLockBase + obligationID
}

var Locks = []int64{
	MigrationLock,
	SchedulerLock,
}

const (
	// MaxTransientRetries is how many extra attempts a transient-looking
	// scheduler or store failure gets before surfacing a job sync error.
	MaxTransientRetries = 1
)
