package lock

// DistributedLockManager serializes mutations across instances. Obligation
// mutations acquire a per-obligation lock for the duration of their store
// transaction.
type DistributedLockManager interface {
	Acquire(lockID int64) error
	Release(lockID int64) error
}
