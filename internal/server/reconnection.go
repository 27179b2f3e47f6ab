package server

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"eriantys-server/internal/eriantys"
)

// pendingSession is a suspended game waiting for its players to come back.
// The roster keeps the original seat order so the resumed session can hand
// each player the same seat.
type pendingSession struct {
	id       string
	roster   []string
	rejoined []Conn
}

// ReconnectionManager tracks suspended sessions and gathers returning
// players until the full original roster is back, then resumes the game.
type ReconnectionManager struct {
	mu          sync.Mutex
	persistence *PersistenceManager
	pending     map[string]*pendingSession
	resume      func(*eriantys.Game, []Conn)
	abandon     func(roster []string)
}

func NewReconnectionManager(persistence *PersistenceManager, resume func(*eriantys.Game, []Conn)) *ReconnectionManager {
	return &ReconnectionManager{
		persistence: persistence,
		pending:     make(map[string]*pendingSession),
		resume:      resume,
	}
}

// SetAbandonHook registers a callback invoked with the roster of a pending
// session that is dropped without resuming, such as a failed restore. The
// lobby uses it to free the roster's nicknames again.
func (rm *ReconnectionManager) SetAbandonHook(fn func(roster []string)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.abandon = fn
}

// Suspend records a mid-game session so its players can reconnect later.
// A save failure is returned to the caller so players can be told their
// game is lost rather than silently promised a resume.
func (rm *ReconnectionManager) Suspend(g *eriantys.Game) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	roster := g.Roster()
	session := rm.findByRoster(roster)
	if session == nil {
		session = &pendingSession{
			id:     uuid.New().String(),
			roster: roster,
		}
		rm.pending[session.id] = session
	}
	session.rejoined = nil

	if err := rm.persistence.SaveGame(session.id, g); err != nil {
		delete(rm.pending, session.id)
		return err
	}

	log.Printf("Session %s suspended in phase %s", session.id, g.Phase)
	return nil
}

// Register adds an already-persisted session to the pending set. Used on
// server startup to restore suspended games from the database.
func (rm *ReconnectionManager) Register(sessionID string, roster []string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.pending[sessionID] = &pendingSession{
		id:     sessionID,
		roster: roster,
	}
}

// HasPendingPlayer reports whether a suspended session is waiting for the
// given nickname.
func (rm *ReconnectionManager) HasPendingPlayer(nickname string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.findByPlayer(nickname) != nil
}

// Rejoin attaches a returning player to their suspended session. Once every
// roster member is back the game is reloaded and resumed; until then the
// player is told how many are still missing.
func (rm *ReconnectionManager) Rejoin(conn Conn) error {
	rm.mu.Lock()

	nickname := conn.Nickname()
	session := rm.findByPlayer(nickname)
	if session == nil {
		rm.mu.Unlock()
		return fmt.Errorf("NO_PENDING_SESSION: no suspended game for %s", nickname)
	}
	for _, c := range session.rejoined {
		if c.Nickname() == nickname {
			rm.mu.Unlock()
			return fmt.Errorf("ALREADY_REJOINED: %s has already rejoined", nickname)
		}
	}

	session.rejoined = append(session.rejoined, conn)
	missing := len(session.roster) - len(session.rejoined)
	if missing > 0 {
		waiting := append([]Conn(nil), session.rejoined...)
		rm.mu.Unlock()
		for _, c := range waiting {
			c.Send(fmt.Sprintf("Waiting for %d more player(s) to rejoin.", missing))
		}
		return nil
	}

	game, err := rm.persistence.LoadGame(session.id)
	if err != nil {
		rejoined := session.rejoined
		roster := session.roster
		abandon := rm.abandon
		delete(rm.pending, session.id)
		if err := rm.persistence.DeleteGame(session.id); err != nil {
			log.Printf("Warning: failed to delete unrestorable game %s: %v", session.id, err)
		}
		rm.mu.Unlock()
		for _, c := range rejoined {
			c.Send("Your saved game could not be restored.")
			c.Close()
		}
		if abandon != nil {
			abandon(roster)
		}
		return fmt.Errorf("RESTORE_FAILED: %w", err)
	}

	// Seat the returning connections in the original roster order.
	conns := make([]Conn, 0, len(session.roster))
	for _, name := range session.roster {
		for _, c := range session.rejoined {
			if c.Nickname() == name {
				conns = append(conns, c)
				break
			}
		}
	}

	delete(rm.pending, session.id)
	if err := rm.persistence.DeleteGame(session.id); err != nil {
		log.Printf("Warning: failed to delete restored game %s: %v", session.id, err)
	}
	rm.mu.Unlock()

	for _, c := range conns {
		c.Send("All players are back. Resuming the game.")
	}
	log.Printf("Session %s resumed with %d players", session.id, len(conns))
	rm.resume(game, conns)
	return nil
}

// PendingCount returns the number of suspended sessions.
func (rm *ReconnectionManager) PendingCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.pending)
}

func (rm *ReconnectionManager) findByRoster(roster []string) *pendingSession {
	for _, s := range rm.pending {
		if sameRoster(s.roster, roster) {
			return s
		}
	}
	return nil
}

func (rm *ReconnectionManager) findByPlayer(nickname string) *pendingSession {
	for _, s := range rm.pending {
		for _, name := range s.roster {
			if name == nickname {
				return s
			}
		}
	}
	return nil
}

func sameRoster(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
