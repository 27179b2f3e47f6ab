package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"eriantys-server/internal/eriantys"
)

const maxNicknameLength = 20

// Lobby greets every new connection, collects a unique nickname, routes
// returning players to their suspended session and gathers the rest into
// the next game. The first player waiting configures the roster size and
// the game mode.
type Lobby struct {
	mu              sync.Mutex
	waiting         []Conn
	requiredPlayers int
	extended        bool
	nicknames       map[string]bool
	sessions        []*SessionController
	recon           *ReconnectionManager
	readTimeout     time.Duration
}

func NewLobby(recon *ReconnectionManager, readTimeout time.Duration) *Lobby {
	l := &Lobby{
		nicknames:   make(map[string]bool),
		recon:       recon,
		readTimeout: readTimeout,
	}
	// A pending session dropped without resuming frees its names again.
	recon.SetAbandonHook(l.ReleaseNicknames)
	return l
}

// HandleConnection runs the login conversation for one connection and then
// either hands it to the reconnection manager or parks it in the lobby.
// Blocks until the connection belongs to a session or is gone.
func (l *Lobby) HandleConnection(conn Conn) {
	for {
		nickname, err := l.askNickname(conn)
		if err != nil {
			return
		}

		if l.recon.HasPendingPlayer(nickname) {
			conn.SetNickname(nickname)
			if err := l.recon.Rejoin(conn); err != nil {
				conn.Send(err.Error())
				continue
			}
			return
		}

		if err := l.admit(conn, nickname); err != nil {
			conn.Send(err.Error())
			continue
		}
		return
	}
}

func (l *Lobby) askNickname(conn Conn) (string, error) {
	if err := conn.Send("Welcome! Set a nickname."); err != nil {
		return "", err
	}
	for {
		cmd, err := conn.Receive(l.readTimeout)
		if err != nil {
			return "", err
		}
		text, ok := cmd.(TextCommand)
		if !ok {
			if err := conn.Send("Set a nickname."); err != nil {
				return "", err
			}
			continue
		}
		if err := ValidateNickname(text.Text); err != nil {
			if err := conn.Send(err.Error()); err != nil {
				return "", err
			}
			continue
		}
		return text.Text, nil
	}
}

// admit reserves the nickname and seats the connection in the lobby. The
// first player to arrive configures the upcoming game.
func (l *Lobby) admit(conn Conn, nickname string) error {
	l.mu.Lock()
	if l.nicknames[nickname] {
		l.mu.Unlock()
		return fmt.Errorf("NICKNAME_TAKEN: %s is already in use", nickname)
	}
	l.nicknames[nickname] = true
	conn.SetNickname(nickname)
	l.waiting = append(l.waiting, conn)
	needsConfig := l.requiredPlayers == 0 && len(l.waiting) == 1
	l.mu.Unlock()

	if needsConfig {
		if err := l.configure(conn); err != nil {
			l.evict(conn)
			return nil
		}
	} else {
		conn.Send("Waiting for the game to start.")
	}

	l.tryStart()
	return nil
}

// configure asks the lobby's first player for the roster size and mode.
func (l *Lobby) configure(conn Conn) error {
	var players int
	if err := conn.Send("You are the first player. How many players (2 or 3)?"); err != nil {
		return err
	}
	for {
		cmd, err := conn.Receive(l.readTimeout)
		if err != nil {
			return err
		}
		if n, ok := cmd.(IntegerChoice); ok && (n.N == 2 || n.N == 3) {
			players = n.N
			break
		}
		if err := conn.Send("Answer 2 or 3."); err != nil {
			return err
		}
	}

	var extended bool
	if err := conn.Send("Game mode: 'basic' or 'expert'?"); err != nil {
		return err
	}
	for {
		cmd, err := conn.Receive(l.readTimeout)
		if err != nil {
			return err
		}
		if text, ok := cmd.(TextCommand); ok {
			if mode := strings.ToLower(text.Text); mode == "basic" || mode == "expert" {
				extended = mode == "expert"
				break
			}
		}
		if err := conn.Send("Answer 'basic' or 'expert'."); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.requiredPlayers = players
	l.extended = extended
	l.mu.Unlock()

	conn.Send(fmt.Sprintf("Waiting for %d players.", players))
	return nil
}

// tryStart launches a session once enough players are waiting. Players
// beyond the roster stay in the lobby for the next game, and the first of
// them is asked to configure it.
func (l *Lobby) tryStart() {
	l.mu.Lock()
	if l.requiredPlayers == 0 || len(l.waiting) < l.requiredPlayers {
		l.mu.Unlock()
		return
	}

	conns := append([]Conn(nil), l.waiting[:l.requiredPlayers]...)
	l.waiting = append([]Conn(nil), l.waiting[l.requiredPlayers:]...)
	extended := l.extended
	l.requiredPlayers = 0
	l.extended = false
	var next Conn
	if len(l.waiting) > 0 {
		next = l.waiting[0]
	}
	l.mu.Unlock()

	sc, err := StartSession(conns, extended, l.recon, l.readTimeout, l.ReleaseNicknames)
	if err != nil {
		log.Printf("Failed to start session: %v", err)
		names := make([]string, len(conns))
		for i, c := range conns {
			names[i] = c.Nickname()
			c.Send("The game could not be started.")
			c.Close()
		}
		l.ReleaseNicknames(names)
		return
	}
	l.track(sc)

	if next != nil {
		go func() {
			if err := l.configure(next); err != nil {
				l.evict(next)
				return
			}
			l.tryStart()
		}()
	}
}

// evict drops a connection that failed mid-conversation from the lobby.
// If the evicted player was meant to configure the next game, the duty
// passes to whoever is waiting next.
func (l *Lobby) evict(conn Conn) {
	l.mu.Lock()
	for i, c := range l.waiting {
		if c == conn {
			l.waiting = append(l.waiting[:i], l.waiting[i+1:]...)
			break
		}
	}
	delete(l.nicknames, conn.Nickname())
	var next Conn
	if l.requiredPlayers == 0 && len(l.waiting) > 0 {
		next = l.waiting[0]
	}
	l.mu.Unlock()
	conn.Close()

	if next != nil {
		go func() {
			if err := l.configure(next); err != nil {
				l.evict(next)
				return
			}
			l.tryStart()
		}()
	}
}

// Resume puts a restored game back in play with the returning connections.
// Wired as the reconnection manager's resume callback.
func (l *Lobby) Resume(game *eriantys.Game, conns []Conn) {
	sc := ResumeSession(game, conns, l.recon, l.readTimeout, l.ReleaseNicknames)
	l.track(sc)
}

func (l *Lobby) track(sc *SessionController) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, sc)
}

// WaitSessions blocks until every tracked session has ended or the context
// expires. Used during shutdown so suspended games get persisted before the
// database closes.
func (l *Lobby) WaitSessions(ctx context.Context) error {
	l.mu.Lock()
	sessions := append([]*SessionController(nil), l.sessions...)
	l.mu.Unlock()

	for _, sc := range sessions {
		select {
		case <-sc.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ReleaseNicknames frees the given nicknames for reuse. Called when a
// session ends for good; suspended sessions keep their names reserved.
func (l *Lobby) ReleaseNicknames(names []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range names {
		delete(l.nicknames, name)
	}
}

// WaitingCount returns how many players sit in the lobby.
func (l *Lobby) WaitingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiting)
}
