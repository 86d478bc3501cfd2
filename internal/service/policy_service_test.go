package service

import (
	"context"
	"testing"
	"time"

	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/transfer"
)

type fakePolicyStore struct {
	policies map[int64]*models.AutoPilotPolicy
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: make(map[int64]*models.AutoPilotPolicy)}
}

func (f *fakePolicyStore) GetByUserID(ctx context.Context, userID int64) (*models.AutoPilotPolicy, bool, error) {
	p, ok := f.policies[userID]
	return p, ok, nil
}

func (f *fakePolicyStore) Upsert(ctx context.Context, policy *models.AutoPilotPolicy) error {
	f.policies[policy.UserID] = policy
	return nil
}

func (f *fakePolicyStore) ListEnabled(ctx context.Context) ([]*models.AutoPilotPolicy, error) {
	var out []*models.AutoPilotPolicy
	for _, p := range f.policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestGetPolicyDefault(t *testing.T) {
	s := NewPolicyService(newFakePolicyStore())

	policy, err := s.GetPolicy(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if policy.Enabled {
		t.Error("default policy must be disabled")
	}
	if policy.ConfidenceThreshold != 0.8 || policy.PostsPerWeek != 3 {
		t.Errorf("unexpected defaults: %+v", policy)
	}
	if policy.Location() != time.UTC {
		t.Errorf("default timezone should resolve to UTC, got %v", policy.Location())
	}
}

func TestUpdatePolicyValidation(t *testing.T) {
	store := newFakePolicyStore()
	s := NewPolicyService(store)
	ctx := context.Background()

	valid := transfer.PolicyUpdate{
		Enabled:             true,
		PostsPerWeek:        5,
		ConfidenceThreshold: 0.7,
		PreferredSlots:      []string{"09:00", "17:30"},
		AutoSchedule:        true,
		ImagesPerPost:       2,
		Timezone:            "Europe/Berlin",
	}
	if err := s.UpdatePolicy(ctx, 1, valid); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}
	if store.policies[1] == nil || !store.policies[1].Enabled {
		t.Fatal("valid update not persisted")
	}

	bad := []transfer.PolicyUpdate{
		{PostsPerWeek: -1},
		{PostsPerWeek: 51},
		{ConfidenceThreshold: 1.2},
		{ImagesPerPost: 4},
		{PreferredSlots: []string{"25:00"}},
		{Timezone: "Mars/Olympus"},
	}
	for _, update := range bad {
		if err := s.UpdatePolicy(ctx, 1, update); err == nil {
			t.Errorf("expected rejection of %+v", update)
		}
	}
}
