package session

import (
	"testing"

	"github.com/mhealthlab/demobot/internal/models"
)

func TestGetCreatesSessionOnFirstContact(t *testing.T) {
	s := NewMemoryStore()
	sess := s.Get("15551234567")
	if sess == nil {
		t.Fatal("expected session to be created")
	}
	if !sess.FirstContact {
		t.Error("new session must start in first-contact state")
	}
	if sess.Mode != models.ModeDemo {
		t.Errorf("new session must start in demo mode, got %s", sess.Mode)
	}
	if sess.ActiveCapability != nil {
		t.Error("new session must have no active capability")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 registered session, got %d", s.Len())
	}
}

func TestGetReturnsSameSession(t *testing.T) {
	s := NewMemoryStore()
	a := s.Get("15551234567")
	a.FirstContact = false
	a.Append(models.SpeakerUser, "hello")

	b := s.Get("15551234567")
	if a != b {
		t.Error("Get must return the same session instance for an identity")
	}
	if b.FirstContact || len(b.History) != 1 {
		t.Error("session state lost between Get calls")
	}
}

func TestDistinctIdentitiesGetDistinctSessions(t *testing.T) {
	s := NewMemoryStore()
	a := s.Get("15551111111")
	b := s.Get("15552222222")
	if a == b {
		t.Error("distinct identities must not share a session")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 registered sessions, got %d", s.Len())
	}
}

func TestResetReplacesSession(t *testing.T) {
	s := NewMemoryStore()
	sess := s.Get("15551234567")
	sess.FirstContact = false
	sess.Mode = models.ModeFreeform
	sess.Append(models.SpeakerUser, "hello")

	s.Reset("15551234567")
	fresh := s.Get("15551234567")
	if fresh == sess {
		t.Error("Reset must replace the session instance")
	}
	if !fresh.FirstContact {
		t.Error("reset session must be back in first-contact state")
	}
	if fresh.Mode != models.ModeDemo {
		t.Errorf("reset session must be in demo mode, got %s", fresh.Mode)
	}
	if len(fresh.History) != 0 {
		t.Errorf("reset session must have empty history, got %d turns", len(fresh.History))
	}
}
