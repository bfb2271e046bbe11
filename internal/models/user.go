package models

import "time"

// Значения users.trial_status.
const (
	TrialActive    = "active"
	TrialCancelled = "cancelled"
)

// User часть записи пользователя, которую читает и пишет биллинг.
type User struct {
	ID                 int64
	Email              string
	FullName           string
	SubscriptionStatus int
	TrialStatus        *string // nil, если пробный период ещё не выдавался
	TrialStart         *time.Time
	TrialEnd           *time.Time
}

// TrialEligible сообщает, можно ли выдать пользователю пробный период.
func (u *User) TrialEligible() bool {
	return u.TrialStatus == nil
}
