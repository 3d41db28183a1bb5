package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed = errors.New("passcode hashing failed")
	MinPasscodeLen   = 4
)

// PasswordHasher hashes and checks staff passcodes
type PasswordHasher interface {
	Hash(passcode string) (string, error)
	Compare(hashed, passcode string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(passcode string) (string, error) {
	if len(passcode) < MinPasscodeLen {
		return "", errors.New("passcode too short")
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(passcode), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashed, passcode string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(passcode))
}
