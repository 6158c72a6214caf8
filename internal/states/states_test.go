package states

import "testing"

func TestStore_SetGetClear(t *testing.T) {
	s := NewStore()

	if s.Get(1, 10) != nil {
		t.Error("expected nil state for unknown key")
	}

	s.Set(1, 10, &UserState{Step: "newproject:name"})
	st := s.Get(1, 10)
	if st == nil || st.Step != "newproject:name" {
		t.Fatalf("Get = %+v, expected step newproject:name", st)
	}
	if st.Data == nil {
		t.Error("Set should initialize Data map")
	}

	// Same user, different chat is a separate state
	if s.Get(1, 20) != nil {
		t.Error("state leaked across chats")
	}
	// Different user, same chat is a separate state
	if s.Get(2, 10) != nil {
		t.Error("state leaked across users")
	}

	s.Clear(1, 10)
	if s.Get(1, 10) != nil {
		t.Error("state not cleared")
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Clear(5, 5)
	s.Set(5, 5, &UserState{Step: "x"})
	s.Clear(5, 5)
	s.Clear(5, 5)
	if s.Get(5, 5) != nil {
		t.Error("state survived double clear")
	}
}
