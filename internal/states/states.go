// Package states holds per-(user, chat) conversational state for
// multi-step flows: the current wizard step plus collected answers.
// All shared domain state lives in the database; this store only
// tracks in-flight conversations and may be dropped on restart.
package states

import "sync"

type UserState struct {
	// Step identifies the wizard and its current input, e.g.
	// "newproject:name" or "expense:work_cost".
	Step string
	// Intent remembers which command triggered a project picker so the
	// selection callback can dispatch to the right handler.
	Intent string
	Data   map[string]interface{}
}

type key struct {
	UserID int64
	ChatID int64
}

type Store struct {
	mu     sync.RWMutex
	states map[key]*UserState
}

func NewStore() *Store {
	return &Store{states: make(map[key]*UserState)}
}

func (s *Store) Set(userID, chatID int64, state *UserState) {
	if state.Data == nil {
		state.Data = make(map[string]interface{})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key{userID, chatID}] = state
}

func (s *Store) Get(userID, chatID int64) *UserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[key{userID, chatID}]
}

// Clear is idempotent: clearing a missing state is a no-op.
func (s *Store) Clear(userID, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key{userID, chatID})
}
