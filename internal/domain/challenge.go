package domain

import "time"

// Purpose tags distinguish independent verification flows that share the same
// mechanism. The set is closed; stores reject unknown values at the service boundary.
const (
	PurposeRegisterEmailVerify = "REGISTER_EMAIL_VERIFY"
	PurposeRegisterEmail       = "REGISTER_EMAIL"
)

// Challenge status values. Locked and expired are derived (attempt count and
// clock respectively), not stored, so a challenge superseded by a newer issuance
// is never confused with one that was genuinely verified.
const (
	ChallengeStatusActive     = "active"
	ChallengeStatusVerified   = "verified"
	ChallengeStatusSuperseded = "superseded"
)

// MaxVerifyAttempts is the lockout threshold. Once a challenge records this many
// failed attempts it is permanently unusable, even for the correct code.
const MaxVerifyAttempts = 5

// OTPChallenge is one issued email verification code.
// PK: vkey ("email#purpose"), SK: challenge_id (ULID, creation-ordered).
// The plaintext code is never persisted; only its one-way hash.
type OTPChallenge struct {
	VKey         string     `json:"-" dynamodbav:"vkey"`
	ChallengeID  string     `json:"id" dynamodbav:"challenge_id"`
	Email        string     `json:"email" dynamodbav:"email"`
	Purpose      string     `json:"purpose" dynamodbav:"purpose"`
	CodeHash     string     `json:"-" dynamodbav:"code_hash"`
	Status       string     `json:"status" dynamodbav:"status"`
	AttemptCount int        `json:"attempt_count" dynamodbav:"attempt_count"`
	ResendCount  int        `json:"resend_count" dynamodbav:"resend_count"`
	UserID       string     `json:"user_id,omitempty" dynamodbav:"user_id"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	LastSentAt   time.Time  `json:"last_sent_at" dynamodbav:"last_sent_at"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty" dynamodbav:"consumed_at"`
}

// VerificationKey builds the store partition key for an (email, purpose) pair.
func VerificationKey(email, purpose string) string {
	return email + "#" + purpose
}

func (c *OTPChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *OTPChallenge) IsLocked() bool {
	return c.AttemptCount >= MaxVerifyAttempts
}
