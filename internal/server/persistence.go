package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"eriantys-server/internal/eriantys"
)

// PersistenceManager stores suspended games so they survive both player
// disconnects and server restarts.
type PersistenceManager struct {
	db *sql.DB
}

func NewPersistenceManager(db *sql.DB) *PersistenceManager {
	return &PersistenceManager{
		db: db,
	}
}

// SaveGame persists a game snapshot keyed by session id. Uses INSERT OR
// REPLACE so a session suspended twice keeps a single row.
func (pm *PersistenceManager) SaveGame(sessionID string, g *eriantys.Game) error {
	snapshot, err := g.Snapshot()
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO saved_games (session_id, phase, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = pm.db.Exec(query, sessionID, string(g.Phase), string(snapshot), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", sessionID, err)
	}

	return nil
}

// LoadGame retrieves a suspended game by session id.
func (pm *PersistenceManager) LoadGame(sessionID string) (*eriantys.Game, error) {
	query := `SELECT snapshot FROM saved_games WHERE session_id = ?`

	var snapshot string
	err := pm.db.QueryRow(query, sessionID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GAME_NOT_FOUND: no saved game for session %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", sessionID, err)
	}

	return eriantys.RestoreSnapshot([]byte(snapshot))
}

// LoadAllGames retrieves every suspended game. Used on server startup to
// repopulate the reconnection registry.
func (pm *PersistenceManager) LoadAllGames() (map[string]*eriantys.Game, error) {
	query := `SELECT session_id, snapshot FROM saved_games ORDER BY updated_at DESC`

	rows, err := pm.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved games: %w", err)
	}
	defer rows.Close()

	games := make(map[string]*eriantys.Game)
	for rows.Next() {
		var sessionID, snapshot string
		if err := rows.Scan(&sessionID, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan saved game row: %w", err)
		}

		game, err := eriantys.RestoreSnapshot([]byte(snapshot))
		if err != nil {
			// A corrupt row should not block the rest of the restore.
			log.Printf("Warning: skipping saved game %s: %v", sessionID, err)
			continue
		}
		games[sessionID] = game
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved game rows: %w", err)
	}

	return games, nil
}

// DeleteGame removes a suspended game once its session has resumed or been
// abandoned.
func (pm *PersistenceManager) DeleteGame(sessionID string) error {
	query := `DELETE FROM saved_games WHERE session_id = ?`

	result, err := pm.db.Exec(query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", sessionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("GAME_NOT_FOUND: no saved game for session %s", sessionID)
	}

	return nil
}
