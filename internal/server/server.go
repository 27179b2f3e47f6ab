package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pressly/goose/v3"

	"eriantys-server/internal/database"
	"eriantys-server/internal/eriantys"
)

const defaultReadTimeout = 300 * time.Second

type Server struct {
	port                int
	db                  database.Service
	connectionManager   *ConnectionManager
	lobby               *Lobby
	reconnectionManager *ReconnectionManager
	persistenceManager  *PersistenceManager
	rateLimiter         *RateLimiter
	readTimeout         time.Duration
}

func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	readTimeout := defaultReadTimeout
	if seconds, err := strconv.Atoi(os.Getenv("READ_TIMEOUT_SECONDS")); err == nil && seconds > 0 {
		readTimeout = time.Duration(seconds) * time.Second
	}

	// Initialize database
	dbService := database.New()

	// Run migrations
	if err := runMigrations(dbService.DB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	persistenceManager := NewPersistenceManager(dbService.DB())

	// The reconnection manager resumes games through the lobby, which in
	// turn needs the reconnection manager to route returning players.
	var lobby *Lobby
	reconnectionManager := NewReconnectionManager(persistenceManager, func(g *eriantys.Game, conns []Conn) {
		lobby.Resume(g, conns)
	})
	lobby = NewLobby(reconnectionManager, readTimeout)

	// Load suspended games from the database
	if err := loadPersistedState(persistenceManager, reconnectionManager); err != nil {
		log.Printf("Warning: Failed to load persisted state: %v", err)
		// Don't fatal - allow server to start with empty state
	}

	newServer := &Server{
		port:                port,
		db:                  dbService,
		connectionManager:   NewConnectionManager(),
		lobby:               lobby,
		reconnectionManager: reconnectionManager,
		persistenceManager:  persistenceManager,
		rateLimiter:         NewRateLimiter(10, time.Second),
		readTimeout:         readTimeout,
	}

	// Declare Server config
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", newServer.port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return newServer, httpServer
}

// runMigrations applies database migrations using goose
func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "./db/migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Println("Database migrations applied successfully")
	return nil
}

// loadPersistedState registers suspended games with the reconnection
// manager so their players can pick them back up after a restart.
func loadPersistedState(pm *PersistenceManager, rm *ReconnectionManager) error {
	games, err := pm.LoadAllGames()
	if err != nil {
		return fmt.Errorf("failed to load saved games: %w", err)
	}

	for sessionID, game := range games {
		rm.Register(sessionID, game.Roster())
		log.Printf("Restored suspended game %s (phase: %s, players: %v)", sessionID, game.Phase, game.Roster())
	}

	log.Printf("Loaded %d suspended games", len(games))
	return nil
}

// Shutdown closes every live connection, waits for the running sessions to
// persist themselves and then closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	s.connectionManager.CloseAll("Server shutting down.")

	if err := s.lobby.WaitSessions(ctx); err != nil {
		log.Printf("Shutdown: some sessions did not finish in time: %v", err)
	}

	return s.db.Close()
}
