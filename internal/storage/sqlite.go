package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"centsible/internal/core"
	"centsible/internal/ledger"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const dateLayout = "2006-01-02"

// SQLiteRepository stores the ledger in a single SQLite file. Amounts are
// INTEGER cents.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database file is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, balance_cents, created_at FROM users WHERE id = ?`, id)
	return scanSQLiteUser(row)
}

func (r *SQLiteRepository) SetUserBalance(ctx context.Context, id int64, balance core.Money) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET balance_cents = ? WHERE id = ?`, balance.Cents, id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, type, amount_cents, category, date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, string(tx.Type), tx.Amount.Cents, tx.Category,
		tx.Date.Format(dateLayout), tx.Description, tx.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	tx.ID = id

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"amount_cents", tx.Amount.Cents)

	return tx, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id int64) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, target_cents, current_cents, completed
		FROM savings_goals WHERE id = ?`, id)
	g, err := scanSQLiteGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, ledger.ErrNotFound
	}
	return g, err
}

func (r *SQLiteRepository) SetGoal(ctx context.Context, id int64, current core.Money, completed bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE savings_goals SET current_cents = ?, completed = ? WHERE id = ?`,
		current.Cents, completed, id)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, username string) (core.User, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, balance_cents, created_at) VALUES (?, 0, ?)`,
		username, now.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ledger.ErrConflict
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	return core.User{ID: id, Username: username, CreatedAt: now}, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, balance_cents, created_at FROM users WHERE username = ?`, username)
	return scanSQLiteUser(row)
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount_cents, category, date, description, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx               core.Transaction
			txType           string
			cents            int64
			date, createdStr string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &txType, &cents, &tx.Category, &date, &tx.Description, &createdStr); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = core.TransactionType(txType)
		tx.Amount = core.Cents(cents)
		if tx.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %d date: %w", tx.ID, err)
		}
		if tx.CreatedAt, err = parseTimestamp(createdStr); err != nil {
			return nil, fmt.Errorf("transaction %d created_at: %w", tx.ID, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO savings_goals (user_id, name, target_cents, current_cents, completed)
		VALUES (?, ?, ?, ?, ?)`,
		goal.UserID, goal.Name, goal.TargetAmount.Cents, goal.CurrentAmount.Cents, goal.Completed)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert goal: %w", err)
	}
	if goal.ID, err = res.LastInsertId(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("goal id: %w", err)
	}
	return goal, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, target_cents, current_cents, completed
		FROM savings_goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanSQLiteGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row scanner) (core.User, error) {
	var (
		u          core.User
		cents      int64
		createdStr string
	)
	if err := row.Scan(&u.ID, &u.Username, &cents, &createdStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, ledger.ErrNotFound
		}
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Balance = core.Cents(cents)
	created, err := parseTimestamp(createdStr)
	if err != nil {
		return core.User{}, fmt.Errorf("user %d created_at: %w", u.ID, err)
	}
	u.CreatedAt = created
	return u, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func scanSQLiteGoal(row scanner) (core.SavingsGoal, error) {
	var (
		g               core.SavingsGoal
		target, current int64
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &g.Completed); err != nil {
		return core.SavingsGoal{}, err
	}
	g.TargetAmount = core.Cents(target)
	g.CurrentAmount = core.Cents(current)
	return g, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
