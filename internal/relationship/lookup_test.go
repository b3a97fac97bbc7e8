package relationship

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clinovault/clinovault/internal/policy"
)

type stubCareTeam struct {
	members map[string]bool
	calls   int
}

func (s *stubCareTeam) OnCareTeam(ctx context.Context, providerID, patientID string) (bool, error) {
	s.calls++
	return s.members[providerID+":"+patientID], nil
}

func TestCareTeamPredicate(t *testing.T) {
	store := &stubCareTeam{members: map[string]bool{"prov-1:pat-1": true}}
	lookup := NewLookup(store, nil, 0, nil)

	held, err := lookup.CareTeamPredicate(context.Background(), policy.PrincipalRef{ID: "prov-1"}, policy.Subject{PatientID: "pat-1"})
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if !held {
		t.Fatalf("expected assigned provider to match")
	}

	held, err = lookup.CareTeamPredicate(context.Background(), policy.PrincipalRef{ID: "prov-2"}, policy.Subject{PatientID: "pat-1"})
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if held {
		t.Fatalf("unassigned provider must not match")
	}
}

func TestCareTeamPredicateDeniesWithoutPatient(t *testing.T) {
	store := &stubCareTeam{members: map[string]bool{}}
	lookup := NewLookup(store, nil, 0, nil)
	held, err := lookup.CareTeamPredicate(context.Background(), policy.PrincipalRef{ID: "prov-1"}, policy.Subject{})
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if held {
		t.Fatalf("subject without patient identity must deny")
	}
	if store.calls != 0 {
		t.Fatalf("store must not be queried without a patient identity")
	}
}

func TestCareTeamPredicateCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := &stubCareTeam{members: map[string]bool{"prov-1:pat-1": true}}
	lookup := NewLookup(store, client, time.Minute, nil)

	for i := 0; i < 3; i++ {
		held, err := lookup.CareTeamPredicate(context.Background(), policy.PrincipalRef{ID: "prov-1"}, policy.Subject{PatientID: "pat-1"})
		if err != nil {
			t.Fatalf("predicate: %v", err)
		}
		if !held {
			t.Fatalf("expected match on call %d", i)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store call with warm cache, got %d", store.calls)
	}
}
