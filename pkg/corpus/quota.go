package corpus

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/frame/datastore/pool"
)

// UnlimitedQuota is the sentinel daily limit for privileged roles.
const UnlimitedQuota = -1

// ErrQuotaExceeded is returned when an identity has no download slots left
// today.
var ErrQuotaExceeded = errors.New("daily download quota exceeded")

// QuotaPolicy resolves the daily limit for a role. The thresholds are
// external configuration; the core only reads them.
type QuotaPolicy func(role string) int

// QuotaStatus is the read-only view of an identity's quota exposed outward.
type QuotaStatus struct {
	Remaining  int       `json:"remaining"`
	DailyLimit int       `json:"daily_limit"`
	ResetsAt   time.Time `json:"resets_at"`
}

// QuotaStore enforces the per-identity daily download ceiling. Check and
// increment happen inside one locking transaction so two concurrent
// requests can never both take the last slot.
type QuotaStore struct {
	pool   pool.Pool
	policy QuotaPolicy
}

// NewQuotaStore creates a quota store with the given role policy.
func NewQuotaStore(pool pool.Pool, policy QuotaPolicy) *QuotaStore {
	return &QuotaStore{pool: pool, policy: policy}
}

func startOfDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Status returns the identity's remaining slots, limit and reset time
// without consuming anything.
func (q *QuotaStore) Status(ctx context.Context, identityID, role string) (QuotaStatus, error) {
	limit := q.policy(role)
	day := startOfDay(time.Now())
	st := QuotaStatus{DailyLimit: limit, ResetsAt: day.Add(24 * time.Hour)}

	if limit == UnlimitedQuota {
		st.Remaining = UnlimitedQuota
		return st, nil
	}

	var usage QuotaUsage
	err := q.pool.DB(ctx, true).
		Where("identity_id = ? AND day = ?", identityID, day).
		First(&usage).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		st.Remaining = limit
	case err != nil:
		return st, err
	default:
		st.Remaining = max(limit-usage.Used, 0)
	}
	return st, nil
}

// CheckRemaining fails fast with ErrQuotaExceeded when the identity has no
// slots left, without consuming one. Used before any packaging work begins.
func (q *QuotaStore) CheckRemaining(ctx context.Context, identityID, role string) (QuotaStatus, error) {
	st, err := q.Status(ctx, identityID, role)
	if err != nil {
		return st, err
	}
	if st.DailyLimit != UnlimitedQuota && st.Remaining <= 0 {
		return st, ErrQuotaExceeded
	}
	return st, nil
}

// Consume atomically takes one slot for today, or returns ErrQuotaExceeded
// when the ceiling is reached. Called only on a successful completion so
// failed attempts never penalize the requester.
func (q *QuotaStore) Consume(ctx context.Context, identityID, role string) error {
	limit := q.policy(role)
	if limit == UnlimitedQuota {
		return nil
	}

	day := startOfDay(time.Now())
	return q.pool.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		var usage QuotaUsage
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("identity_id = ? AND day = ?", identityID, day).
			First(&usage).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if limit < 1 {
				return ErrQuotaExceeded
			}
			usage = QuotaUsage{IdentityID: identityID, Day: day, Used: 1}
			return tx.Create(&usage).Error
		case err != nil:
			return err
		}

		if usage.Used >= limit {
			return ErrQuotaExceeded
		}
		return tx.Model(&QuotaUsage{}).Where("id = ?", usage.ID).
			Update("used", gorm.Expr("used + 1")).Error
	})
}
