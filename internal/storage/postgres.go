package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"centsible/internal/core"
	"centsible/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

// PostgresRepository stores the ledger in PostgreSQL. Amounts are
// NUMERIC(20,2) columns exchanged as text so no float ever touches them.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository migrates the schema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, balance::text, created_at FROM users WHERE id = $1`, id)
	return scanPgUser(row)
}

func (r *PostgresRepository) SetUserBalance(ctx context.Context, id int64, balance core.Money) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET balance = $1::numeric WHERE id = $2`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, type, amount, category, date, description, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id`,
		tx.UserID, string(tx.Type), tx.Amount.String(), tx.Category,
		tx.Date.Time, tx.Description, tx.CreatedAt,
	).Scan(&tx.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (r *PostgresRepository) GetGoal(ctx context.Context, id int64) (core.SavingsGoal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, target_amount::text, current_amount::text, completed
		FROM savings_goals WHERE id = $1`, id)
	g, err := scanPgGoal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.SavingsGoal{}, ledger.ErrNotFound
	}
	return g, err
}

func (r *PostgresRepository) SetGoal(ctx context.Context, id int64, current core.Money, completed bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE savings_goals SET current_amount = $1::numeric, completed = $2 WHERE id = $3`,
		current.String(), completed, id)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, username string) (core.User, error) {
	u := core.User{Username: username}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1) RETURNING id, created_at`, username,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return core.User{}, ledger.ErrConflict
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, balance::text, created_at FROM users WHERE lower(username) = lower($1)`, username)
	return scanPgUser(row)
}

func (r *PostgresRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, amount::text, category, date, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx     core.Transaction
			txType string
			amount string
			date   time.Time
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &txType, &amount, &tx.Category, &date, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = core.TransactionType(txType)
		tx.Date = core.DateOf(date)
		if tx.Amount, err = moneyFromNumeric(amount); err != nil {
			return nil, fmt.Errorf("transaction %d amount: %w", tx.ID, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO savings_goals (user_id, name, target_amount, current_amount, completed)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		RETURNING id`,
		goal.UserID, goal.Name, goal.TargetAmount.String(), goal.CurrentAmount.String(), goal.Completed,
	).Scan(&goal.ID)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert goal: %w", err)
	}
	return goal, nil
}

func (r *PostgresRepository) ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, target_amount::text, current_amount::text, completed
		FROM savings_goals WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanPgGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanPgUser(row pgx.Row) (core.User, error) {
	var (
		u       core.User
		balance string
	)
	if err := row.Scan(&u.ID, &u.Username, &balance, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.User{}, ledger.ErrNotFound
		}
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	var err error
	if u.Balance, err = moneyFromNumeric(balance); err != nil {
		return core.User{}, fmt.Errorf("user %d balance: %w", u.ID, err)
	}
	return u, nil
}

func scanPgGoal(row pgx.Row) (core.SavingsGoal, error) {
	var (
		g               core.SavingsGoal
		target, current string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &g.Completed); err != nil {
		return core.SavingsGoal{}, err
	}
	var err error
	if g.TargetAmount, err = moneyFromNumeric(target); err != nil {
		return core.SavingsGoal{}, err
	}
	if g.CurrentAmount, err = moneyFromNumeric(current); err != nil {
		return core.SavingsGoal{}, err
	}
	return g, nil
}

func moneyFromNumeric(s string) (core.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.MoneyFromDecimal(d)
}
