// Package ledger is the durable record of games, posts and moves.
// The current game is the one with the highest id; its head post is its
// newest post.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/park285/crowdchess/internal/domain"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

var (
	// ErrEmptyResult means an expected row is absent.
	ErrEmptyResult = errors.New("ledger: empty result")
	// ErrFormat means stored data has an unexpected shape.
	ErrFormat = errors.New("ledger: unexpected data format")
)

// Bootstrap tells the caller what Open found.
type Bootstrap int

const (
	Ready Bootstrap = iota
	NeedsInitialPost
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type Options struct {
	// Location is a SQLite file path or a postgres:// URL.
	Location string
	Reset    bool
	Logger   *zap.Logger
}

type Ledger struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

// Game is the current game row.
type Game struct {
	ID        int64
	Outcome   domain.Outcome
	FinalPost sql.NullInt64
}

// Open connects, creates the schema, optionally wipes it first, and seeds a
// game when none exists.
func Open(ctx context.Context, opts Options) (*Ledger, Bootstrap, error) {
	loc := strings.TrimSpace(opts.Location)
	if loc == "" {
		return nil, Ready, fmt.Errorf("ledger location is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{logger: logger}
	var err error
	if isPostgresURL(loc) {
		l.dialect = dialectPostgres
		l.db, err = sql.Open("postgres", loc)
		if err != nil {
			return nil, Ready, fmt.Errorf("open postgres: %w", err)
		}
		l.db.SetMaxOpenConns(8)
		l.db.SetMaxIdleConns(4)
		l.db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		l.dialect = dialectSQLite
		l.db, err = sql.Open("sqlite", loc)
		if err != nil {
			return nil, Ready, fmt.Errorf("open sqlite: %w", err)
		}
		// single writer
		l.db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := l.db.PingContext(pingCtx); err != nil {
		_ = l.db.Close()
		return nil, Ready, fmt.Errorf("ping ledger: %w", err)
	}

	boot, err := l.prepare(ctx, opts.Reset)
	if err != nil {
		_ = l.db.Close()
		return nil, Ready, err
	}
	logger.Info("ledger_open",
		zap.String("dialect", l.dialectName()),
		zap.Bool("reset", opts.Reset),
		zap.Bool("needs_initial_post", boot == NeedsInitialPost),
	)
	return l, boot, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) prepare(ctx context.Context, reset bool) (Bootstrap, error) {
	if l.dialect == dialectSQLite {
		for _, p := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := l.db.ExecContext(ctx, p); err != nil {
				return Ready, fmt.Errorf("apply %q: %w", p, err)
			}
		}
	}
	if reset {
		for _, table := range []string{"move", "post", "game"} {
			if _, err := l.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return Ready, fmt.Errorf("drop %s: %w", table, err)
			}
		}
		l.logger.Warn("ledger_reset")
	}

	ddl, err := schemaFiles.ReadFile("schema/" + l.dialectName() + ".sql")
	if err != nil {
		return Ready, fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return Ready, fmt.Errorf("apply schema: %w", err)
		}
	}

	var games int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM game").Scan(&games); err != nil {
		return Ready, fmt.Errorf("count games: %w", err)
	}
	if games == 0 {
		if _, err := l.db.ExecContext(ctx, "INSERT INTO game DEFAULT VALUES"); err != nil {
			return Ready, fmt.Errorf("seed game: %w", err)
		}
	}

	var posts int
	q := "SELECT COUNT(*) FROM post WHERE game = (SELECT MAX(id) FROM game)"
	if err := l.db.QueryRowContext(ctx, q).Scan(&posts); err != nil {
		return Ready, fmt.Errorf("count posts: %w", err)
	}
	if posts == 0 {
		return NeedsInitialPost, nil
	}
	return Ready, nil
}

// InsertPost appends a post to the current game.
func (l *Ledger) InsertPost(ctx context.Context, externalRef string) error {
	ref := strings.TrimSpace(externalRef)
	if ref == "" {
		return fmt.Errorf("post reference is required")
	}
	_, err := l.db.ExecContext(ctx, l.rebind(
		"INSERT INTO post (external_ref, game) VALUES (?, (SELECT MAX(id) FROM game))"), ref)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// PreviousPost returns the external reference of the current game's head post.
func (l *Ledger) PreviousPost(ctx context.Context) (string, error) {
	var ref sql.NullString
	err := l.db.QueryRowContext(ctx,
		"SELECT external_ref FROM post WHERE game = (SELECT MAX(id) FROM game) ORDER BY id DESC LIMIT 1",
	).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEmptyResult
	}
	if err != nil {
		return "", fmt.Errorf("select head post: %w", err)
	}
	if !ref.Valid || ref.String == "" {
		return "", ErrFormat
	}
	return ref.String, nil
}

// PlayMove records mv against the current head post and appends nextRef as
// the new head, in one transaction.
func (l *Ledger) PlayMove(ctx context.Context, mv domain.Move, nextRef string) error {
	if strings.TrimSpace(mv.UCI) == "" || strings.TrimSpace(nextRef) == "" {
		return fmt.Errorf("move notation and next post are required")
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		head, err := headPostID(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, l.rebind(
			"INSERT INTO move (notation, draw_offer, post) VALUES (?, ?, ?)"),
			mv.UCI, boolToInt(mv.OfferDraw), head,
		); err != nil {
			return fmt.Errorf("insert move: %w", err)
		}
		if _, err := tx.ExecContext(ctx, l.rebind(
			"INSERT INTO post (external_ref, game) VALUES (?, (SELECT MAX(id) FROM game))"),
			strings.TrimSpace(nextRef),
		); err != nil {
			return fmt.Errorf("insert next post: %w", err)
		}
		return nil
	})
}

// NewGame closes the current game with outcome and closingRef, then opens a
// new game seeded with openingRef, in one transaction.
func (l *Ledger) NewGame(ctx context.Context, closingRef string, outcome domain.Outcome, openingRef string) error {
	if !outcome.Terminal() {
		return fmt.Errorf("new game requires a terminal outcome, got %s", outcome)
	}
	if strings.TrimSpace(closingRef) == "" || strings.TrimSpace(openingRef) == "" {
		return fmt.Errorf("closing and opening posts are required")
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		var gameID int64
		if err := tx.QueryRowContext(ctx, "SELECT MAX(id) FROM game").Scan(&gameID); err != nil {
			return fmt.Errorf("select current game: %w", err)
		}
		var closingID int64
		if err := tx.QueryRowContext(ctx, l.rebind(
			"INSERT INTO post (external_ref, game) VALUES (?, ?) RETURNING id"),
			strings.TrimSpace(closingRef), gameID,
		).Scan(&closingID); err != nil {
			return fmt.Errorf("insert closing post: %w", err)
		}
		if _, err := tx.ExecContext(ctx, l.rebind(
			"UPDATE game SET outcome = ?, final_post = ? WHERE id = ?"),
			int(outcome), closingID, gameID,
		); err != nil {
			return fmt.Errorf("close game: %w", err)
		}
		var nextID int64
		if err := tx.QueryRowContext(ctx, "INSERT INTO game DEFAULT VALUES RETURNING id").Scan(&nextID); err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		if _, err := tx.ExecContext(ctx, l.rebind(
			"INSERT INTO post (external_ref, game) VALUES (?, ?)"),
			strings.TrimSpace(openingRef), nextID,
		); err != nil {
			return fmt.Errorf("insert opening post: %w", err)
		}
		l.logger.Info("ledger_game_closed",
			zap.Int64("game_id", gameID),
			zap.String("outcome", outcome.String()),
			zap.Int64("next_game_id", nextID),
		)
		return nil
	})
}

// Moves returns the current game's moves in play order.
func (l *Ledger) Moves(ctx context.Context) ([]domain.Move, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT m.notation, m.draw_offer
		FROM move m
		JOIN post p ON m.post = p.id
		WHERE p.game = (SELECT MAX(id) FROM game)
		ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()

	var out []domain.Move
	for rows.Next() {
		var (
			notation sql.NullString
			offer    sql.NullInt64
		)
		if err := rows.Scan(&notation, &offer); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if !notation.Valid || strings.TrimSpace(notation.String) == "" || !offer.Valid || (offer.Int64 != 0 && offer.Int64 != 1) {
			return nil, ErrFormat
		}
		out = append(out, domain.Move{UCI: notation.String, OfferDraw: offer.Int64 == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return out, nil
}

// LastMove returns the current game's most recent move, or nil.
func (l *Ledger) LastMove(ctx context.Context) (*domain.Move, error) {
	moves, err := l.Moves(ctx)
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, nil
	}
	last := moves[len(moves)-1]
	return &last, nil
}

func (l *Ledger) CurrentGame(ctx context.Context) (Game, error) {
	var (
		g       Game
		outcome int
	)
	err := l.db.QueryRowContext(ctx,
		"SELECT id, outcome, final_post FROM game ORDER BY id DESC LIMIT 1",
	).Scan(&g.ID, &outcome, &g.FinalPost)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, ErrEmptyResult
	}
	if err != nil {
		return Game{}, fmt.Errorf("select current game: %w", err)
	}
	g.Outcome = domain.Outcome(outcome)
	if !g.Outcome.Valid() {
		return Game{}, ErrFormat
	}
	return g, nil
}

// GameByID returns a finished or current game row.
func (l *Ledger) GameByID(ctx context.Context, id int64) (Game, error) {
	var (
		g       Game
		outcome int
	)
	err := l.db.QueryRowContext(ctx, l.rebind(
		"SELECT id, outcome, final_post FROM game WHERE id = ?"), id,
	).Scan(&g.ID, &outcome, &g.FinalPost)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, ErrEmptyResult
	}
	if err != nil {
		return Game{}, fmt.Errorf("select game: %w", err)
	}
	g.Outcome = domain.Outcome(outcome)
	if !g.Outcome.Valid() {
		return Game{}, ErrFormat
	}
	return g, nil
}

func (l *Ledger) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func headPostID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM post WHERE game = (SELECT MAX(id) FROM game) ORDER BY id DESC LIMIT 1",
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrEmptyResult
	}
	if err != nil {
		return 0, fmt.Errorf("select head post: %w", err)
	}
	return id, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (l *Ledger) rebind(q string) string {
	if l.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (l *Ledger) dialectName() string {
	if l.dialect == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

func isPostgresURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
