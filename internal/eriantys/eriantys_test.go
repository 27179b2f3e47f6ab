package eriantys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGame_RosterValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewGame([]string{"ann"}, false)
	assert.Error(err, "one player is not enough")

	_, err = NewGame([]string{"a", "b", "c", "d"}, false)
	assert.Error(err, "four players is too many")

	_, err = NewGame([]string{"ann", "ann"}, false)
	assert.Error(err, "duplicate nicknames")

	_, err = NewGame([]string{"ann", ""}, false)
	assert.Error(err, "empty nickname")

	g, err := NewGame([]string{"ann", "bo"}, false)
	assert.NoError(err)
	assert.NotNil(g)
}

func TestNewGame_InitialSetupTwoPlayers(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGame([]string{"ann", "bo"}, false)
	assert.NoError(err)

	assert.Equal(PhaseJoin, g.Phase)
	assert.Len(g.Archipelago, 12)
	assert.Equal(0, g.MotherNature)

	// Mother nature's island and the one across stay empty, the other ten
	// get one student each.
	assert.True(g.Archipelago[0].Students.IsEmpty())
	assert.True(g.Archipelago[6].Students.IsEmpty())
	for i, island := range g.Archipelago {
		if i == 0 || i == 6 {
			continue
		}
		assert.Equal(1, island.Students.Total(), "island %d", i)
	}

	for _, p := range g.Players {
		assert.Equal(7, p.Board.Entrance.Total())
		assert.Len(p.Hand, 10)
		assert.Equal(0, p.Board.Coins)
	}

	// 120 students minus 10 island seeds minus 2x7 entrances.
	assert.Equal(96, g.Bag.Total())

	assert.Len(g.Clouds, 2)
	assert.ElementsMatch([]TowerColor{TowerWhite, TowerBlack}, g.AvailableTowers)
	assert.Len(g.AvailableBacks, 4)
	assert.Equal(3, g.MovesPerTurn())
	assert.Nil(g.ExpertCards)
}

func TestNewGame_InitialSetupThreePlayers(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGame([]string{"ann", "bo", "cleo"}, false)
	assert.NoError(err)

	for _, p := range g.Players {
		assert.Equal(9, p.Board.Entrance.Total())
	}
	assert.Len(g.Clouds, 3)
	assert.Contains(g.AvailableTowers, TowerGray)
	assert.Equal(4, g.MovesPerTurn())
}

func TestNewGame_ExtendedMode(t *testing.T) {
	assert := assert.New(t)

	g, err := NewGame([]string{"ann", "bo"}, true)
	assert.NoError(err)

	assert.Len(g.ExpertCards, 3)
	for _, p := range g.Players {
		assert.Equal(1, p.Board.Coins)
	}
}

func TestAssistantHand_MovementValues(t *testing.T) {
	g, err := NewGame([]string{"ann", "bo"}, false)
	assert.NoError(t, err)

	for _, card := range g.Players[0].Hand {
		assert.Equal(t, (card.Priority+1)/2, card.Movement, "priority %d", card.Priority)
	}
}

func TestAssignCardBack(t *testing.T) {
	assert := assert.New(t)

	g, _ := NewGame([]string{"ann", "bo"}, false)

	assert.NoError(g.AssignCardBack(0, BackKing))
	assert.Equal(BackKing, g.Players[0].CardBack)
	assert.Len(g.AvailableBacks, 3)

	// Second pick by the same player is refused.
	err := g.AssignCardBack(0, BackWitch)
	assert.ErrorContains(err, "ALREADY_CHOSEN")

	// Taken back is refused and state stays put.
	err = g.AssignCardBack(1, BackKing)
	assert.ErrorContains(err, "BACK_UNAVAILABLE")
	assert.Empty(g.Players[1].CardBack)
	assert.Len(g.AvailableBacks, 3)
}

func TestAssignTower(t *testing.T) {
	assert := assert.New(t)

	g, _ := NewGame([]string{"ann", "bo"}, false)

	assert.NoError(g.AssignTower(0, TowerWhite))
	assert.Equal(TowerWhite, g.Players[0].Board.Tower)
	assert.Equal(8, g.Players[0].Board.TowersLeft)

	err := g.AssignTower(1, TowerWhite)
	assert.ErrorContains(err, "TOWER_UNAVAILABLE")

	err = g.AssignTower(0, TowerBlack)
	assert.ErrorContains(err, "ALREADY_CHOSEN")

	assert.NoError(g.AssignTower(1, TowerBlack))
}

func TestStartPlay_RequiresCompleteSetup(t *testing.T) {
	assert := assert.New(t)

	g, _ := NewGame([]string{"ann", "bo"}, false)

	err := g.StartPlay()
	assert.ErrorContains(err, "SETUP_INCOMPLETE")
	assert.Equal(PhaseJoin, g.Phase)

	g.AssignCardBack(0, BackKing)
	g.AssignTower(0, TowerWhite)
	g.AssignCardBack(1, BackWitch)

	err = g.StartPlay()
	assert.ErrorContains(err, "SETUP_INCOMPLETE")

	g.AssignTower(1, TowerBlack)
	assert.NoError(g.StartPlay())
	assert.Equal(PhasePlanning, g.Phase)

	// Setup operations are closed once play begins.
	assert.ErrorIs(g.AssignCardBack(0, BackSage), ErrWrongPhase)
	assert.ErrorIs(g.AssignTower(0, TowerGray), ErrWrongPhase)
}

func TestStudentSet(t *testing.T) {
	assert := assert.New(t)

	s := NewStudentSet()
	s.Add(Red, 2)
	s.Add(Blue, 1)

	assert.Equal(3, s.Total())
	assert.Equal([]Color{Blue, Red}, s.ColorsAvailable())

	assert.NoError(s.Remove(Red))
	assert.Equal(1, s.Count(Red))

	err := s.Remove(Green)
	assert.ErrorContains(err, "COLOR_UNAVAILABLE")

	dst := NewStudentSet()
	s.TransferAllTo(dst)
	assert.True(s.IsEmpty())
	assert.Equal(2, dst.Total())
}
