package dispatch

import (
	"strconv"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	PurposeDispatch    = "dispatch"
	PurposeMaintenance = "maintenance"
)

// Lease marks an account as owned by one job or one maintenance operation.
type Lease struct {
	AccountID  int64
	Purpose    string
	Job        *Job // nil for maintenance leases
	AcquiredAt time.Time
}

// Registry enforces at most one lease per account for the whole process.
type Registry struct {
	leases cmap.ConcurrentMap[string, *Lease]
}

func NewRegistry() *Registry {
	return &Registry{leases: cmap.New[*Lease]()}
}

func leaseKey(accountID int64) string {
	return strconv.FormatInt(accountID, 10)
}

// TryAcquire returns a new lease, or the current holder and false. job is
// nil for maintenance leases.
func (r *Registry) TryAcquire(accountID int64, purpose string, job *Job) (*Lease, bool) {
	l := &Lease{AccountID: accountID, Purpose: purpose, Job: job, AcquiredAt: time.Now()}
	if r.leases.SetIfAbsent(leaseKey(accountID), l) {
		return l, true
	}
	cur, _ := r.leases.Get(leaseKey(accountID))
	return cur, false
}

// Release removes l only if it is still the account's current lease.
func (r *Registry) Release(l *Lease) bool {
	if l == nil {
		return false
	}
	return r.leases.RemoveCb(leaseKey(l.AccountID), func(_ string, cur *Lease, exists bool) bool {
		return exists && cur == l
	})
}

func (r *Registry) Get(accountID int64) (*Lease, bool) {
	return r.leases.Get(leaseKey(accountID))
}

func (r *Registry) IsLeased(accountID int64) bool {
	return r.leases.Has(leaseKey(accountID))
}

// Jobs lists the jobs currently holding a lease.
func (r *Registry) Jobs() []*Job {
	var jobs []*Job
	for _, l := range r.leases.Items() {
		if l.Job != nil {
			jobs = append(jobs, l.Job)
		}
	}
	return jobs
}
