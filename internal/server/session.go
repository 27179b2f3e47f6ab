package server

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"eriantys-server/internal/eriantys"
)

// SessionController drives one game from setup to the winner announcement.
// It owns the connections of its players for the session's lifetime and is
// the only goroutine that mutates the game, always under its mutex.
//
// Any failed send or receive ends the loop: a setup failure aborts the
// session, a mid-game failure suspends it through the reconnection manager.
type SessionController struct {
	mu          sync.Mutex
	game        *eriantys.Game
	conns       []Conn
	recon       *ReconnectionManager
	readTimeout time.Duration
	onEnd       func(nicknames []string)
	done        chan struct{}
}

// StartSession creates a fresh game for the given connections, seated in
// slice order, and runs it on its own goroutine.
func StartSession(conns []Conn, extended bool, recon *ReconnectionManager, readTimeout time.Duration, onEnd func([]string)) (*SessionController, error) {
	nicknames := make([]string, len(conns))
	for i, c := range conns {
		nicknames[i] = c.Nickname()
	}

	game, err := eriantys.NewGame(nicknames, extended)
	if err != nil {
		return nil, err
	}

	sc := newSessionController(game, conns, recon, readTimeout, onEnd)
	go sc.run()
	return sc, nil
}

// ResumeSession picks a restored game back up with the returning
// connections, which must be seated in the game's roster order.
func ResumeSession(game *eriantys.Game, conns []Conn, recon *ReconnectionManager, readTimeout time.Duration, onEnd func([]string)) *SessionController {
	sc := newSessionController(game, conns, recon, readTimeout, onEnd)
	go sc.run()
	return sc
}

func newSessionController(game *eriantys.Game, conns []Conn, recon *ReconnectionManager, readTimeout time.Duration, onEnd func([]string)) *SessionController {
	return &SessionController{
		game:        game,
		conns:       conns,
		recon:       recon,
		readTimeout: readTimeout,
		onEnd:       onEnd,
		done:        make(chan struct{}),
	}
}

// Done is closed when the session has fully ended, whichever way.
func (sc *SessionController) Done() <-chan struct{} {
	return sc.done
}

func (sc *SessionController) run() {
	defer close(sc.done)

	if sc.phase() == eriantys.PhaseJoin {
		if err := sc.setup(); err != nil {
			sc.abort(err)
			return
		}
	} else {
		// Resumed session: everyone needs the board state again.
		if err := sc.broadcastState("The game resumes where it stopped."); err != nil {
			sc.suspend(err)
			return
		}
	}

	if err := sc.gameLoop(); err != nil {
		sc.suspend(err)
		return
	}
	sc.finish()
}

func (sc *SessionController) phase() eriantys.Phase {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.game.Phase
}

/*
 * Setup
 */

// setup collects a card back and a tower color from every player in seat
// order. Rejected choices are re-prompted until a valid one arrives.
func (sc *SessionController) setup() error {
	if err := sc.broadcast("All players are here. Setting up the game."); err != nil {
		return err
	}

	for i, conn := range sc.conns {
		if err := sc.askCardBack(i, conn); err != nil {
			return err
		}
		if err := sc.askTower(i, conn); err != nil {
			return err
		}
	}

	sc.mu.Lock()
	err := sc.game.StartPlay()
	sc.mu.Unlock()
	if err != nil {
		return err
	}

	return sc.broadcastState("The game begins.")
}

func (sc *SessionController) askCardBack(i int, conn Conn) error {
	for {
		sc.mu.Lock()
		available := make([]string, 0, len(sc.game.AvailableBacks))
		for _, b := range sc.game.AvailableBacks {
			available = append(available, string(b))
		}
		sc.mu.Unlock()

		if err := conn.Send(fmt.Sprintf("Choose a card back: %s", strings.Join(available, ", "))); err != nil {
			return err
		}

		cmd, err := conn.Receive(sc.readTimeout)
		if err != nil {
			return err
		}
		choice, ok := cmd.(CardBackChoice)
		if !ok {
			conn.Send("That is not a card back.")
			continue
		}

		sc.mu.Lock()
		err = sc.game.AssignCardBack(i, choice.Back)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}

		sc.broadcast(fmt.Sprintf("%s chose the %s card back.", conn.Nickname(), choice.Back))
		return nil
	}
}

func (sc *SessionController) askTower(i int, conn Conn) error {
	for {
		sc.mu.Lock()
		available := make([]string, 0, len(sc.game.AvailableTowers))
		for _, t := range sc.game.AvailableTowers {
			available = append(available, string(t))
		}
		sc.mu.Unlock()

		if err := conn.Send(fmt.Sprintf("Choose a tower color: %s", strings.Join(available, ", "))); err != nil {
			return err
		}

		cmd, err := conn.Receive(sc.readTimeout)
		if err != nil {
			return err
		}
		choice, ok := cmd.(TowerChoice)
		if !ok {
			conn.Send("That is not a tower color.")
			continue
		}

		sc.mu.Lock()
		err = sc.game.AssignTower(i, choice.Tower)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}

		sc.broadcast(fmt.Sprintf("%s plays with %s towers.", conn.Nickname(), choice.Tower))
		return nil
	}
}

/*
 * Game loop
 */

// gameLoop dispatches on the current phase until the game is over. Each
// phase handler processes exactly one accepted command from the acting
// player, so the phase is re-read after every mutation.
func (sc *SessionController) gameLoop() error {
	for {
		switch sc.phase() {
		case eriantys.PhasePlanning:
			if err := sc.planningTurn(); err != nil {
				return err
			}
		case eriantys.PhaseMovingStudents:
			if err := sc.moveStudent(); err != nil {
				return err
			}
		case eriantys.PhaseMotherMovement:
			if err := sc.motherMovement(); err != nil {
				return err
			}
		case eriantys.PhaseCloudSelection:
			if err := sc.takeCloud(); err != nil {
				return err
			}
		case eriantys.PhaseGameOver:
			return nil
		default:
			return fmt.Errorf("unexpected phase %s", sc.phase())
		}
	}
}

func (sc *SessionController) currentConn() Conn {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conns[sc.game.CurrentIndex()]
}

// planningTurn asks the acting player for an assistant card priority.
func (sc *SessionController) planningTurn() error {
	conn := sc.currentConn()

	sc.mu.Lock()
	hand := describeHand(sc.game.CurrentPlayer())
	sc.mu.Unlock()

	if err := conn.Send(hand); err != nil {
		return err
	}

	for {
		n, err := sc.awaitInteger(conn, "Play an assistant card by priority.")
		if err != nil {
			return err
		}

		sc.mu.Lock()
		err = sc.game.PlayAssistant(n)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}

		return sc.broadcast(fmt.Sprintf("%s played the assistant with priority %d.", conn.Nickname(), n))
	}
}

// moveStudent handles one student placement by the acting player, or an
// expert card play in its stead.
func (sc *SessionController) moveStudent() error {
	conn := sc.currentConn()

	sc.mu.Lock()
	g := sc.game
	first := !g.ActionTaken()
	board := eriantys.Describe(g, g.CurrentPlayer())
	archipelago := eriantys.DescribeArchipelago(g)
	left := g.MovesPerTurn() - g.MovesDone
	extended := g.Extended
	sc.mu.Unlock()

	if first {
		if err := sc.broadcast(fmt.Sprintf("It is %s's turn.", conn.Nickname())); err != nil {
			return err
		}
		if err := conn.Send(board + "\n" + archipelago); err != nil {
			return err
		}
	}

	prompt := fmt.Sprintf("Move a student (%d left): answer 'hall' or 'island'.", left)
	if extended {
		prompt += " You can also play a character card."
	}
	if err := conn.Send(prompt); err != nil {
		return err
	}

	for {
		cmd, err := conn.Receive(sc.readTimeout)
		if err != nil {
			return err
		}

		switch c := cmd.(type) {
		case PlayPowerCard:
			if err := sc.playExpertCard(conn); err != nil {
				return err
			}
			return nil
		case TextCommand:
			switch strings.ToLower(c.Text) {
			case "hall":
				return sc.moveToHall(conn)
			case "island":
				return sc.moveToIsland(conn)
			}
		}
		if err := conn.Send("Answer 'hall' or 'island'."); err != nil {
			return err
		}
	}
}

func (sc *SessionController) moveToHall(conn Conn) error {
	for {
		color, err := sc.awaitColor(conn, "Which color goes to your hall?")
		if err != nil {
			return err
		}

		sc.mu.Lock()
		err = sc.game.MoveStudentToHall(color)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}
		return nil
	}
}

func (sc *SessionController) moveToIsland(conn Conn) error {
	for {
		color, err := sc.awaitColor(conn, "Which color goes to an island?")
		if err != nil {
			return err
		}
		n, err := sc.awaitInteger(conn, "Which island?")
		if err != nil {
			return err
		}

		sc.mu.Lock()
		err = sc.game.MoveStudentToIsland(color, n-1)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}
		return nil
	}
}

// playExpertCard walks the acting player through a character card play:
// pick a card, supply its follow-up choices, pay the price.
func (sc *SessionController) playExpertCard(conn Conn) error {
	sc.mu.Lock()
	cards := eriantys.DescribeExpertCards(sc.game)
	count := len(sc.game.ExpertCards)
	sc.mu.Unlock()

	if err := conn.Send(cards); err != nil {
		return err
	}

	for {
		n, err := sc.awaitInteger(conn, "Which card do you play?")
		if err != nil {
			return err
		}
		if n < 1 || n > count {
			conn.Send(fmt.Sprintf("CARD_INVALID: card %d does not exist", n))
			continue
		}

		var args eriantys.ExpertArgs
		sc.mu.Lock()
		needsPair := sc.game.ExpertCards[n-1].NeedsColorPair()
		sc.mu.Unlock()
		if needsPair {
			if args.EntranceColor, err = sc.awaitColor(conn, "Which entrance student do you give away?"); err != nil {
				return err
			}
			if args.HallColor, err = sc.awaitColor(conn, "Which hall student do you take back?"); err != nil {
				return err
			}
		}

		sc.mu.Lock()
		err = sc.game.PlayExpertCard(n-1, args)
		kind := ""
		if err == nil {
			kind = string(sc.game.ExpertCards[n-1].Kind)
		}
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}

		return sc.broadcast(fmt.Sprintf("%s played the %s card.", conn.Nickname(), kind))
	}
}

// motherMovement asks the acting player how far mother nature travels.
func (sc *SessionController) motherMovement() error {
	conn := sc.currentConn()

	sc.mu.Lock()
	archipelago := eriantys.DescribeArchipelago(sc.game)
	allowance := sc.game.MaxMovement()
	sc.mu.Unlock()

	if err := conn.Send(archipelago); err != nil {
		return err
	}

	for {
		n, err := sc.awaitInteger(conn, fmt.Sprintf("Move mother nature (1 to %d steps).", allowance))
		if err != nil {
			return err
		}

		sc.mu.Lock()
		err = sc.game.MoveMotherNature(n)
		after := eriantys.DescribeArchipelago(sc.game)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}

		return sc.broadcast(fmt.Sprintf("%s moved mother nature %d step(s).\n%s", conn.Nickname(), n, after))
	}
}

// takeCloud asks the acting player which cloud refills their entrance.
func (sc *SessionController) takeCloud() error {
	conn := sc.currentConn()

	sc.mu.Lock()
	clouds := eriantys.DescribeClouds(sc.game)
	sc.mu.Unlock()

	if err := conn.Send(clouds); err != nil {
		return err
	}

	for {
		n, err := sc.awaitInteger(conn, "Which cloud do you take?")
		if err != nil {
			return err
		}

		sc.mu.Lock()
		err = sc.game.TakeCloud(n - 1)
		sc.mu.Unlock()
		if err != nil {
			conn.Send(err.Error())
			continue
		}

		return sc.broadcast(fmt.Sprintf("%s took cloud %d.", conn.Nickname(), n))
	}
}

/*
 * Input helpers
 */

// awaitInteger prompts until the player answers with a number.
func (sc *SessionController) awaitInteger(conn Conn, prompt string) (int, error) {
	if err := conn.Send(prompt); err != nil {
		return 0, err
	}
	for {
		cmd, err := conn.Receive(sc.readTimeout)
		if err != nil {
			return 0, err
		}
		if c, ok := cmd.(IntegerChoice); ok {
			return c.N, nil
		}
		if err := conn.Send("A number is expected. " + prompt); err != nil {
			return 0, err
		}
	}
}

// awaitColor prompts until the player answers with a student color.
func (sc *SessionController) awaitColor(conn Conn, prompt string) (eriantys.Color, error) {
	if err := conn.Send(prompt); err != nil {
		return "", err
	}
	for {
		cmd, err := conn.Receive(sc.readTimeout)
		if err != nil {
			return "", err
		}
		if c, ok := cmd.(ColorChoice); ok {
			return c.Color, nil
		}
		if err := conn.Send("A student color is expected. " + prompt); err != nil {
			return "", err
		}
	}
}

/*
 * Session endings
 */

// broadcast sends text to every player, failing on the first dead
// connection so idle players' disconnects surface at the next update.
func (sc *SessionController) broadcast(text string) error {
	for _, conn := range sc.conns {
		if err := conn.Send(text); err != nil {
			return err
		}
	}
	return nil
}

// broadcastState sends the notice plus each player's own board view and the
// shared archipelago.
func (sc *SessionController) broadcastState(notice string) error {
	sc.mu.Lock()
	archipelago := eriantys.DescribeArchipelago(sc.game)
	boards := make([]string, len(sc.conns))
	for i := range sc.conns {
		boards[i] = eriantys.Describe(sc.game, sc.game.Players[i])
	}
	sc.mu.Unlock()

	for i, conn := range sc.conns {
		if err := conn.Send(notice + "\n" + boards[i] + "\n" + archipelago); err != nil {
			return err
		}
	}
	return nil
}

// abort cancels a session that never finished setup. Nothing is persisted:
// there is no meaningful state to come back to.
func (sc *SessionController) abort(cause error) {
	log.Printf("Session aborted during setup: %v", cause)
	for _, conn := range sc.conns {
		conn.Send("A player left during setup. The session is cancelled.")
	}
	sc.end()
}

// suspend persists a mid-game session and parks it with the reconnection
// manager so the same roster can resume it later.
func (sc *SessionController) suspend(cause error) {
	log.Printf("Session suspended: %v", cause)

	sc.mu.Lock()
	err := sc.recon.Suspend(sc.game)
	sc.mu.Unlock()

	if err != nil {
		log.Printf("Failed to save suspended game: %v", err)
		for _, conn := range sc.conns {
			conn.Send("A player disconnected and the game could not be saved. The session is over.")
		}
		sc.end()
		return
	}

	for _, conn := range sc.conns {
		conn.Send("A player disconnected. The game is saved: reconnect with the same nickname to resume.")
		conn.Close()
	}
	// Nicknames stay reserved while the session waits for its players.
}

func (sc *SessionController) finish() {
	sc.mu.Lock()
	winner := sc.game.Winner
	sc.mu.Unlock()

	sc.broadcast(fmt.Sprintf("The game is over. %s wins!", winner))
	log.Printf("Session finished, winner: %s", winner)
	sc.end()
}

func (sc *SessionController) end() {
	sc.mu.Lock()
	roster := sc.game.Roster()
	sc.mu.Unlock()

	if sc.onEnd != nil {
		sc.onEnd(roster)
	}
	for _, conn := range sc.conns {
		conn.Close()
	}
}

func describeHand(p *eriantys.Player) string {
	var b strings.Builder
	b.WriteString("Your hand:")
	for _, card := range p.Hand {
		fmt.Fprintf(&b, " [%d/%d]", card.Priority, card.Movement)
	}
	return b.String()
}
