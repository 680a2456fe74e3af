package secret

import "golang.org/x/crypto/bcrypt"

// Hasher one-way hashes short secrets (OTP codes, verification tokens) and
// verifies submissions against a stored hash. Hashes are never reversible.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(hashed, plaintext string) bool
}

// Bcrypt implements Hasher with bcrypt, so a stolen store yields neither codes
// nor tokens and comparison cost does not depend on where the guess diverges.
type Bcrypt struct {
	cost int
}

func NewBcrypt(cost int) Bcrypt {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return Bcrypt{cost: cost}
}

func (h Bcrypt) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h Bcrypt) Verify(hashed, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}
