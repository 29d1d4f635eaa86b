package compliance

import (
	"context"
	"fmt"
	"sync"

	"invest-engine-go/internal/models"
)

// StaticProfiles is an in-memory ProfileSource for demos and tests. The
// real identity/KYC collaborator lives outside this system and is reached
// through the same interface.
type StaticProfiles struct {
	mu       sync.RWMutex
	profiles map[string]models.InvestorProfile
}

var _ ProfileSource = (*StaticProfiles)(nil)

// NewStaticProfiles creates an empty profile source.
func NewStaticProfiles() *StaticProfiles {
	return &StaticProfiles{profiles: make(map[string]models.InvestorProfile)}
}

// Put registers or replaces a profile.
func (s *StaticProfiles) Put(p models.InvestorProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.InvestorId] = p
}

func (s *StaticProfiles) GetInvestorProfile(_ context.Context, investorId string) (*models.InvestorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[investorId]
	if !ok {
		return nil, fmt.Errorf("no profile for investor %s", investorId)
	}
	return &p, nil
}
