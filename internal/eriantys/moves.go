package eriantys

import (
	"fmt"
)

/*
 * Moving students
 */

// MoveStudentToHall places one entrance student of the given color in the
// acting player's hall.
func (g *Game) MoveStudentToHall(c Color) error {
	if g.Phase != PhaseMovingStudents {
		return ErrWrongPhase
	}
	p := g.CurrentPlayer()
	if p.Board.Entrance.Count(c) == 0 {
		return fmt.Errorf("COLOR_UNAVAILABLE: no %s student in your entrance", c)
	}
	if !p.Board.HallFillable(c) {
		return fmt.Errorf("HALL_FULL: the %s hall row is full", c)
	}

	p.Board.Entrance.Remove(c)
	p.Board.Hall.Add(c, 1)
	if g.Extended && p.Board.Hall.Count(c)%3 == 0 {
		p.Board.Coins++
	}
	g.updateProfessor(c)
	g.studentMoved()
	return nil
}

// MoveStudentToIsland places one entrance student of the given color on the
// island at the given zero-based index.
func (g *Game) MoveStudentToIsland(c Color, island int) error {
	if g.Phase != PhaseMovingStudents {
		return ErrWrongPhase
	}
	if island < 0 || island >= len(g.Archipelago) {
		return fmt.Errorf("ISLAND_INVALID: island %d does not exist", island+1)
	}
	p := g.CurrentPlayer()
	if p.Board.Entrance.Count(c) == 0 {
		return fmt.Errorf("COLOR_UNAVAILABLE: no %s student in your entrance", c)
	}

	p.Board.Entrance.Remove(c)
	g.Archipelago[island].Students.Add(c, 1)
	g.studentMoved()
	return nil
}

func (g *Game) studentMoved() {
	g.MovesDone++
	if g.MovesDone >= g.MovesPerTurn() {
		g.Phase = PhaseMotherMovement
	}
}

// ActionTaken reports whether the acting player has moved a student or
// played a card this turn. Both counters reset when the action turn begins.
func (g *Game) ActionTaken() bool {
	return g.MovesDone > 0 || g.CardPlayed
}

// updateProfessor moves the professor of color c to whoever holds strictly
// more hall students than everyone else. On a tie the professor stays put,
// unless the acting player has the tie-break card effect active this turn.
func (g *Game) updateProfessor(c Color) {
	best := 0
	var holder *Player
	tied := false
	for _, p := range g.Players {
		n := p.Board.Hall.Count(c)
		switch {
		case n > best:
			best = n
			holder = p
			tied = false
		case n == best && n > 0:
			tied = true
		}
	}
	if best == 0 {
		return
	}
	cur := g.CurrentPlayer()
	if tied {
		if !g.TieProfessors || cur.Board.Hall.Count(c) != best {
			return
		}
		holder = cur
	}
	for _, p := range g.Players {
		p.Board.Professors[c] = p == holder
	}
}

/*
 * Mother nature
 */

// MaxMovement is the acting player's step allowance, including any card
// bonus granted this turn.
func (g *Game) MaxMovement() int {
	p := g.CurrentPlayer()
	if p.Played == nil {
		return 0
	}
	return p.Played.Movement + g.MovementBonus
}

// MoveMotherNature advances mother nature clockwise by steps and resolves
// influence on the island she lands on. 1 <= steps <= min(islands, allowance).
func (g *Game) MoveMotherNature(steps int) error {
	if g.Phase != PhaseMotherMovement {
		return ErrWrongPhase
	}
	if steps < 1 || steps > g.MaxMovement() || steps > len(g.Archipelago) {
		return fmt.Errorf("STEPS_INVALID: steps must be between 1 and %d", min(g.MaxMovement(), len(g.Archipelago)))
	}

	g.MotherNature = (g.MotherNature + steps) % len(g.Archipelago)
	g.resolveIsland(g.MotherNature)
	if g.Phase == PhaseGameOver {
		return nil
	}

	// An exhausted bag can leave every cloud empty. There is nothing to
	// pick, so the turn ends here instead of entering cloud selection.
	if g.allCloudsEmpty() {
		g.advanceTurn()
		return nil
	}
	g.Phase = PhaseCloudSelection
	return nil
}

// influence is the given player's influence on an island: students of colors
// whose professor they hold, plus standing towers of their color.
func (g *Game) influence(island *Island, p *Player) int {
	total := 0
	for _, c := range AllColors() {
		if p.Board.Professors[c] {
			total += island.Students.Count(c)
		}
	}
	if island.Tower != TowerNone && island.Tower == p.Board.Tower {
		total += island.Towers
	}
	return total
}

// resolveIsland applies conquest on the island at idx: the player with
// strictly greatest influence takes it over, swapping towers. Conquest can
// end the game by tower exhaustion or by shrinking the archipelago.
func (g *Game) resolveIsland(idx int) {
	island := g.Archipelago[idx]

	var winner *Player
	best := 0
	for _, p := range g.Players {
		v := g.influence(island, p)
		switch {
		case v > best:
			best = v
			winner = p
		case v == best:
			winner = nil
		}
	}
	if winner == nil || winner.Board.Tower == island.Tower {
		return
	}

	needed := island.Towers
	if needed == 0 {
		needed = 1
	}
	if prev := g.playerByTower(island.Tower); prev != nil {
		prev.Board.TowersLeft += island.Towers
	}
	if needed > winner.Board.TowersLeft {
		needed = winner.Board.TowersLeft
	}
	winner.Board.TowersLeft -= needed
	island.Towers = needed
	island.Tower = winner.Board.Tower

	if winner.Board.TowersLeft == 0 {
		g.finishWithWinner(winner)
		return
	}

	g.mergeAround(idx)
	if len(g.Archipelago) <= 3 {
		g.finishByRanking()
	}
}

// mergeAround merges the island at idx with adjacent islands under the same
// tower color, keeping mother nature on the merged tile.
func (g *Game) mergeAround(idx int) {
	for {
		n := len(g.Archipelago)
		if n <= 1 {
			break
		}
		next := (idx + 1) % n
		if next != idx && g.sameOwner(idx, next) {
			idx = g.mergeInto(idx, next)
			continue
		}
		prev := (idx - 1 + n) % n
		if prev != idx && g.sameOwner(idx, prev) {
			idx = g.mergeInto(idx, prev)
			continue
		}
		break
	}
	g.MotherNature = idx
}

func (g *Game) sameOwner(a, b int) bool {
	ia, ib := g.Archipelago[a], g.Archipelago[b]
	return ia.Tower != TowerNone && ia.Tower == ib.Tower
}

// mergeInto folds island other into island idx, removes it from the
// archipelago and returns the surviving island's new index.
func (g *Game) mergeInto(idx, other int) int {
	dst, src := g.Archipelago[idx], g.Archipelago[other]
	src.Students.TransferAllTo(dst.Students)
	dst.Towers += src.Towers

	g.Archipelago = append(g.Archipelago[:other], g.Archipelago[other+1:]...)
	if other < idx {
		idx--
	}
	return idx
}

/*
 * Cloud selection
 */

// TakeCloud transfers the chosen cloud's students (zero-based index) to the
// acting player's entrance and advances the turn.
func (g *Game) TakeCloud(cloud int) error {
	if g.Phase != PhaseCloudSelection {
		return ErrWrongPhase
	}
	if cloud < 0 || cloud >= len(g.Clouds) {
		return fmt.Errorf("CLOUD_INVALID: cloud %d does not exist", cloud+1)
	}
	if g.Clouds[cloud].IsEmpty() {
		return fmt.Errorf("CLOUD_EMPTY: cloud %d has already been taken", cloud+1)
	}

	g.Clouds[cloud].TransferAllTo(g.CurrentPlayer().Board.Entrance)
	g.advanceTurn()
	return nil
}

func (g *Game) allCloudsEmpty() bool {
	for _, cloud := range g.Clouds {
		if !cloud.IsEmpty() {
			return false
		}
	}
	return true
}

func (g *Game) advanceTurn() {
	g.TurnCursor++
	if g.TurnCursor < len(g.Players) {
		g.beginActionTurn()
		return
	}
	if g.LastRound {
		g.finishByRanking()
		return
	}
	g.beginPlanning()
}

/*
 * End of game
 */

func (g *Game) finishWithWinner(p *Player) {
	g.Winner = p.Nickname
	g.Phase = PhaseGameOver
}

// finishByRanking ends the game ranking players by towers placed, breaking
// ties by professors held.
func (g *Game) finishByRanking() {
	winner := g.Players[0]
	for _, p := range g.Players[1:] {
		if p.Board.TowersLeft < winner.Board.TowersLeft {
			winner = p
		} else if p.Board.TowersLeft == winner.Board.TowersLeft && p.professorCount() > winner.professorCount() {
			winner = p
		}
	}
	g.finishWithWinner(winner)
}
