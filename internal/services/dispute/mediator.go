package dispute

import (
	"math/rand"
	"sync"

	"taskpay/internal/models"
	"taskpay/internal/repositories"
)

// MediatorAssigner selects a human reviewer for escalated disputes.
// The selection policy is uniform random among active mediators; it
// carries no load-balancing guarantee.
type MediatorAssigner struct {
	users repositories.UserRepository

	// mu guards rnd; rand.Rand is not safe for concurrent use and
	// Pick is called from concurrent request handlers.
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMediatorAssigner(users repositories.UserRepository, seed int64) *MediatorAssigner {
	return &MediatorAssigner{
		users: users,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// Pick returns a random active mediator, or ErrNoMediators when the
// directory has none.
func (a *MediatorAssigner) Pick() (*models.User, error) {
	mediators, err := a.users.FindActiveMediators()
	if err != nil {
		return nil, err
	}
	if len(mediators) == 0 {
		return nil, ErrNoMediators
	}
	a.mu.Lock()
	idx := a.rnd.Intn(len(mediators))
	a.mu.Unlock()

	chosen := mediators[idx]
	return &chosen, nil
}
