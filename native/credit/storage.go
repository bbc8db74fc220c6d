package credit

import (
	"errors"
	"fmt"
)

// storage abstracts the subset of state manager functionality required by the
// profile and loan-index ledgers.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	profilePrefix   = []byte("credit/profile/")
	loanIndexPrefix = []byte("credit/loans/")
)

func profileKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", profilePrefix, user))
}

func loanIndexKey(user [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", loanIndexPrefix, user))
}

// storedProfile is the RLP-safe persisted form of UserProfile.
type storedProfile struct {
	User             [20]byte
	TotalLoansTaken  uint64
	TotalLoansRepaid uint64
	TotalDefaults    uint64
	ReputationScore  uint64
	LastLoanTs       uint64
}

// Ledger persists per-borrower reputation profiles and the per-borrower index
// of open loan records.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

// ProfilePut stores the borrower's profile, overwriting any previous record.
func (l *Ledger) ProfilePut(profile *UserProfile) error {
	if l == nil || l.store == nil {
		return errors.New("credit: ledger storage unavailable")
	}
	if profile == nil {
		return errors.New("credit: profile required")
	}
	stored := storedProfile{
		User:             profile.User,
		TotalLoansTaken:  profile.TotalLoansTaken,
		TotalLoansRepaid: profile.TotalLoansRepaid,
		TotalDefaults:    profile.TotalDefaults,
		ReputationScore:  profile.ReputationScore,
	}
	if profile.LastLoanTs > 0 {
		stored.LastLoanTs = uint64(profile.LastLoanTs)
	}
	return l.store.KVPut(profileKey(profile.User), &stored)
}

// ProfileGet retrieves the borrower's profile. The boolean reports whether a
// profile exists.
func (l *Ledger) ProfileGet(user [20]byte) (*UserProfile, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errors.New("credit: ledger storage unavailable")
	}
	var stored storedProfile
	ok, err := l.store.KVGet(profileKey(user), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	profile := &UserProfile{
		User:             stored.User,
		TotalLoansTaken:  stored.TotalLoansTaken,
		TotalLoansRepaid: stored.TotalLoansRepaid,
		TotalDefaults:    stored.TotalDefaults,
		ReputationScore:  stored.ReputationScore,
		LastLoanTs:       int64(stored.LastLoanTs),
	}
	return profile, true, nil
}

// IndexAppend records a loan id in the borrower's loan index. Appending an id
// already present is a no-op, keeping the index deterministic.
func (l *Ledger) IndexAppend(user [20]byte, id [32]byte) error {
	if l == nil || l.store == nil {
		return errors.New("credit: ledger storage unavailable")
	}
	return l.store.KVAppend(loanIndexKey(user), id[:])
}

// IndexRemove drops a loan id from the borrower's loan index on closure.
func (l *Ledger) IndexRemove(user [20]byte, id [32]byte) error {
	if l == nil || l.store == nil {
		return errors.New("credit: ledger storage unavailable")
	}
	return l.store.KVRemove(loanIndexKey(user), id[:])
}

// IndexLoans returns the ordered loan ids currently open for the borrower.
func (l *Ledger) IndexLoans(user [20]byte) ([][32]byte, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("credit: ledger storage unavailable")
	}
	var raw [][]byte
	if err := l.store.KVGetList(loanIndexKey(user), &raw); err != nil {
		return nil, err
	}
	ids := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("credit: malformed loan index entry of %d bytes", len(entry))
		}
		var id [32]byte
		copy(id[:], entry)
		ids = append(ids, id)
	}
	return ids, nil
}
