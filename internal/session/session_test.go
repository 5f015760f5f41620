package session

import (
	"testing"
	"time"
)

func TestStore_NewAndGet(t *testing.T) {
	s := NewStore(0)

	sess := s.New()
	if sess.ID == "" {
		t.Fatal("New() returned a session without an ID")
	}

	got := s.Get(sess.ID)
	if got == nil || got.ID != sess.ID {
		t.Errorf("Get() = %+v, want the created session", got)
	}
	if s.Get("unknown") != nil {
		t.Error("Get() returned a session for an unknown ID")
	}
	if s.Get("") != nil {
		t.Error("Get(\"\") returned a session")
	}
}

func TestStore_Expiry(t *testing.T) {
	s := NewStore(time.Hour)
	current := time.Now()
	s.now = func() time.Time { return current }

	sess := s.New()
	current = current.Add(2 * time.Hour)

	if s.Get(sess.ID) != nil {
		t.Error("Get() returned an expired session")
	}
}

func TestStore_SlidingTTL(t *testing.T) {
	s := NewStore(time.Hour)
	current := time.Now()
	s.now = func() time.Time { return current }

	sess := s.New()
	for i := 0; i < 3; i++ {
		current = current.Add(50 * time.Minute)
		if s.Get(sess.ID) == nil {
			t.Fatalf("session expired despite activity at step %d", i)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(0)
	sess := s.New()
	s.Delete(sess.ID)
	if s.Get(sess.ID) != nil {
		t.Error("Get() returned a deleted session")
	}
}
