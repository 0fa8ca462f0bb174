package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

func TestStore_DoCreatesSession(t *testing.T) {
	fixed := time.Unix(5000, 0)
	s := NewStoreWithClock(func() time.Time { return fixed })

	s.Do("573001112233", func(st *models.ConversationState, created bool) Outcome {
		if !created {
			t.Error("first Do should report a created session")
		}
		if st.Phone != "573001112233" {
			t.Errorf("phone = %q", st.Phone)
		}
		if !st.LastActivity.Equal(fixed) {
			t.Errorf("last activity = %v, want %v", st.LastActivity, fixed)
		}
		st.TermsAccepted = true
		return Keep
	})

	got, ok := s.Get("573001112233")
	if !ok {
		t.Fatal("session should exist after Do")
	}
	if !got.TermsAccepted {
		t.Error("mutation inside Do was lost")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_RemoveOutcome(t *testing.T) {
	s := NewStore()
	s.Do("573001112233", func(st *models.ConversationState, _ bool) Outcome {
		return Keep
	})
	s.Do("573001112233", func(st *models.ConversationState, created bool) Outcome {
		if created {
			t.Error("second Do should reuse the session")
		}
		return Remove
	})
	if _, ok := s.Get("573001112233"); ok {
		t.Error("session should be gone after Remove")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStore_DoExisting(t *testing.T) {
	s := NewStore()
	if s.DoExisting("573000000000", func(*models.ConversationState) Outcome { return Keep }) {
		t.Error("DoExisting should report false for a missing session")
	}
	s.Do("573001112233", func(*models.ConversationState, bool) Outcome { return Keep })
	ran := false
	if !s.DoExisting("573001112233", func(st *models.ConversationState) Outcome {
		ran = true
		st.Plan = "flash"
		return Keep
	}) {
		t.Fatal("DoExisting should find the session")
	}
	if !ran {
		t.Fatal("callback did not run")
	}
	got, _ := s.Get("573001112233")
	if got.Plan != "flash" {
		t.Errorf("plan = %q, want flash", got.Plan)
	}
}

func TestStore_PhonesAndSnapshot(t *testing.T) {
	s := NewStore()
	for i := 0; i < 3; i++ {
		phone := fmt.Sprintf("57300111223%d", i)
		s.Do(phone, func(st *models.ConversationState, _ bool) Outcome {
			st.Location = models.LocationVenecia
			return Keep
		})
	}
	if got := len(s.Phones()); got != 3 {
		t.Errorf("Phones returned %d entries, want 3", got)
	}
	for _, st := range s.Snapshot() {
		if st.Location != models.LocationVenecia {
			t.Errorf("snapshot entry %s has location %q", st.Phone, st.Location)
		}
	}
}

// Concurrent Do calls on the same identifier must serialize: each callback
// sees the previous callback's write.
func TestStore_DoSerializes(t *testing.T) {
	s := NewStore()
	const n = 50
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Do("573001112233", func(st *models.ConversationState, _ bool) Outcome {
				counter++
				return Keep
			})
		}()
	}
	wg.Wait()
	if counter != n {
		t.Errorf("counter = %d, want %d", counter, n)
	}
}

// Removal racing with Do must never resurrect stale state: callers that hit
// an evicted entry retry against a fresh one.
func TestStore_RemoveDoRace(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Do("573001112233", func(st *models.ConversationState, _ bool) Outcome {
				return Keep
			})
		}()
		go func() {
			defer wg.Done()
			s.DoExisting("573001112233", func(*models.ConversationState) Outcome {
				return Remove
			})
		}()
	}
	wg.Wait()
	// The store must stay internally consistent: a surviving session is
	// reachable, a removed one is absent.
	if _, ok := s.Get("573001112233"); ok && s.Len() != 1 {
		t.Errorf("Len = %d with a live session", s.Len())
	}
}
