package server

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"eriantys-server/internal/eriantys"
)

func newTestLobby(t *testing.T, readTimeout time.Duration) (*Lobby, *ReconnectionManager, *resumeRecorder) {
	t.Helper()
	pm := NewPersistenceManager(setupTestDB(t))
	rec := &resumeRecorder{}
	rm := NewReconnectionManager(pm, rec.resume)
	return NewLobby(rm, readTimeout), rm, rec
}

func (l *Lobby) requiredPlayersForTest() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requiredPlayers
}

func (l *Lobby) sessionCountForTest() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Lobby) reservedForTest(nick string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nicknames[nick]
}

func TestLobby_FirstPlayerConfiguresTheGame(t *testing.T) {
	assert := assert.New(t)

	// Short read timeout: once the scripts run dry the session aborts and
	// frees the nicknames again.
	l, _, _ := newTestLobby(t, 50*time.Millisecond)

	ann := newFakeConn("", TextCommand{Text: "ann"}, IntegerChoice{N: 2}, TextCommand{Text: "basic"})
	go l.HandleConnection(ann)

	eventually(t, func() bool { return l.requiredPlayersForTest() == 2 }, "first player never configured the game")
	assert.Contains(ann.sentText(), "You are the first player.")
	assert.True(l.reservedForTest("ann"))

	bo := newFakeConn("", TextCommand{Text: "bo"})
	go l.HandleConnection(bo)

	eventually(t, func() bool { return l.sessionCountForTest() == 1 }, "session never started")
	assert.Equal(0, l.WaitingCount())

	// The aborted session releases both nicknames.
	eventually(t, func() bool { return !l.reservedForTest("ann") && !l.reservedForTest("bo") }, "nicknames never released")
}

func TestLobby_RejectsTakenNickname(t *testing.T) {
	assert := assert.New(t)

	l, _, _ := newTestLobby(t, time.Second)

	ann := newFakeConn("", TextCommand{Text: "ann"}, IntegerChoice{N: 3}, TextCommand{Text: "expert"})
	go l.HandleConnection(ann)
	eventually(t, func() bool { return l.requiredPlayersForTest() == 3 }, "configuration never finished")

	bo := newFakeConn("", TextCommand{Text: "ann"}, TextCommand{Text: "bo"})
	go l.HandleConnection(bo)

	eventually(t, func() bool { return l.WaitingCount() == 2 }, "second player never admitted")
	assert.Contains(bo.sentText(), "NICKNAME_TAKEN")
	assert.True(l.reservedForTest("bo"))

	ann.Close()
	bo.Close()
}

func TestLobby_NicknameValidationLoop(t *testing.T) {
	assert := assert.New(t)

	l, _, _ := newTestLobby(t, time.Second)

	conn := newFakeConn("",
		IntegerChoice{N: 7}, // not a nickname
		TextCommand{Text: strings.Repeat("x", 21)},
		TextCommand{Text: "ok"},
		IntegerChoice{N: 2},
		TextCommand{Text: "basic"},
	)
	go l.HandleConnection(conn)

	eventually(t, func() bool { return l.reservedForTest("ok") }, "valid nickname never accepted")
	assert.Contains(conn.sentText(), "Set a nickname.")
	assert.Contains(conn.sentText(), "NICKNAME_INVALID")

	conn.Close()
}

func TestLobby_FailedRestoreFreesNicknames(t *testing.T) {
	assert := assert.New(t)

	db := setupTestDB(t)
	pm := NewPersistenceManager(db)
	rec := &resumeRecorder{}
	rm := NewReconnectionManager(pm, rec.resume)
	l := NewLobby(rm, time.Second)

	// A suspended session keeps its identities reserved in the lobby.
	assert.NoError(rm.Suspend(resumableGame(t)))
	l.mu.Lock()
	l.nicknames["ann"] = true
	l.nicknames["bo"] = true
	l.mu.Unlock()

	// The saved row is unreadable by the time the players return.
	_, err := db.Exec(`UPDATE saved_games SET snapshot = 'corrupt'`)
	assert.NoError(err)

	assert.NoError(rm.Rejoin(newFakeConn("ann")))
	bo := newFakeConn("bo")
	err = rm.Rejoin(bo)
	assert.ErrorContains(err, "RESTORE_FAILED")
	assert.Contains(bo.sentText(), "could not be restored")

	// The dead session is fully gone: registry, database and name
	// reservations.
	assert.Equal(0, rm.PendingCount())
	games, err := pm.LoadAllGames()
	assert.NoError(err)
	assert.Empty(games)
	assert.False(l.reservedForTest("ann"))
	assert.False(l.reservedForTest("bo"))

	// A fresh login can claim the freed name again.
	ann := newFakeConn("", TextCommand{Text: "ann"}, IntegerChoice{N: 2}, TextCommand{Text: "basic"})
	go l.HandleConnection(ann)
	eventually(t, func() bool { return l.reservedForTest("ann") }, "freed nickname could not be reused")
}

func TestLobby_ReturningPlayerRejoinsSuspendedGame(t *testing.T) {
	assert := assert.New(t)

	l, rm, rec := newTestLobby(t, time.Second)

	g := resumableGame(t)
	assert.NoError(rm.Suspend(g))

	ann := newFakeConn("", TextCommand{Text: "ann"})
	go l.HandleConnection(ann)

	eventually(t, func() bool {
		return strings.Contains(ann.sentText(), "Waiting for 1 more player(s) to rejoin.")
	}, "returning player was not routed to the suspended game")
	assert.Equal(0, l.WaitingCount(), "rejoining players skip the lobby")

	bo := newFakeConn("", TextCommand{Text: "bo"})
	go l.HandleConnection(bo)

	eventually(t, func() bool { return rec.resumed() }, "game never resumed")
	assert.Equal("ann", rec.conns[0].Nickname())
	assert.Equal("bo", rec.conns[1].Nickname())
	assert.Equal(eriantys.PhaseMovingStudents, rec.game.Phase)
}
