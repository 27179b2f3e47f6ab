package eriantys

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	g := actionGame(t, true)
	bo := g.CurrentPlayer()
	bo.Board.Entrance = StudentSet{Red: 2, Blue: 1}
	assert.NoError(g.MoveStudentToHall(Red))

	data, err := g.Snapshot()
	assert.NoError(err)

	restored, err := RestoreSnapshot(data)
	assert.NoError(err)

	assert.Equal(g.Phase, restored.Phase)
	assert.Equal(g.Roster(), restored.Roster())
	assert.Equal(g.TurnOrder, restored.TurnOrder)
	assert.Equal(g.MovesDone, restored.MovesDone)
	assert.Equal(g.MotherNature, restored.MotherNature)
	assert.Equal(g.Bag.Total(), restored.Bag.Total())
	assert.Len(restored.Archipelago, len(g.Archipelago))
	assert.Len(restored.ExpertCards, 3)

	rbo := restored.CurrentPlayer()
	assert.Equal("bo", rbo.Nickname)
	assert.Equal(1, rbo.Board.Hall.Count(Red))
	assert.True(rbo.Board.Professors[Red])
	assert.Equal(3, rbo.Played.Priority)
}

func TestRestoreSnapshot_RejectsUnknownVersion(t *testing.T) {
	g := actionGame(t, false)
	data, err := g.Snapshot()
	assert.NoError(t, err)

	var env map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(data, &env))
	env["version"] = json.RawMessage("99")
	tampered, _ := json.Marshal(env)

	_, err = RestoreSnapshot(tampered)
	assert.ErrorContains(t, err, "SNAPSHOT_VERSION")
}

func TestRestoreSnapshot_RejectsCorruptBlob(t *testing.T) {
	_, err := RestoreSnapshot([]byte("not json"))
	assert.Error(t, err)

	_, err = RestoreSnapshot([]byte(`{"version":1,"game":null}`))
	assert.ErrorContains(t, err, "SNAPSHOT_CORRUPT")

	_, err = RestoreSnapshot([]byte(`{"version":1,"game":{"players":[]}}`))
	assert.ErrorContains(t, err, "SNAPSHOT_CORRUPT")
}
