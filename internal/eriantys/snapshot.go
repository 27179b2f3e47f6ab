package eriantys

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SnapshotVersion tags the persisted schema so that a format change cannot
// silently break restores.
const SnapshotVersion = 1

type snapshotEnvelope struct {
	Version int   `json:"version"`
	Game    *Game `json:"game"`
}

// Snapshot serializes the whole game as a self-contained, versioned blob.
func (g *Game) Snapshot() ([]byte, error) {
	data, err := json.Marshal(snapshotEnvelope{Version: SnapshotVersion, Game: g})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize game: %w", err)
	}
	return data, nil
}

// RestoreSnapshot rebuilds a game from a snapshot blob, rejecting unknown
// schema versions.
func RestoreSnapshot(data []byte) (*Game, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to deserialize game: %w", err)
	}
	if env.Version != SnapshotVersion {
		return nil, fmt.Errorf("SNAPSHOT_VERSION: unsupported snapshot version %d", env.Version)
	}
	if env.Game == nil || len(env.Game.Players) < 2 {
		return nil, errors.New("SNAPSHOT_CORRUPT: snapshot holds no playable game")
	}
	return env.Game, nil
}
