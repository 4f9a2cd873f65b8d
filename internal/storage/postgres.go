package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/models"
	"go.uber.org/zap"
)

type Postgres struct {
	DB *sql.DB
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		sponsor_id BIGINT REFERENCES users(id),
		username VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'member',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS user_balances (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT UNIQUE NOT NULL REFERENCES users(id),
		current_balance DECIMAL(14, 2) NOT NULL DEFAULT 0.00,
		withdrawn_total DECIMAL(14, 2) NOT NULL DEFAULT 0.00
	);`,
	`CREATE TABLE IF NOT EXISTS withdrawal_schedules (
		id BIGSERIAL PRIMARY KEY,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		start_time TIME NOT NULL,
		end_time TIME NOT NULL,
		fee_percent DECIMAL(6, 3) NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		reference UUID UNIQUE NOT NULL,
		schedule_id BIGINT REFERENCES withdrawal_schedules(id) ON DELETE SET NULL,
		amount DECIMAL(14, 2) NOT NULL,
		fee_percent DECIMAL(6, 3) NOT NULL,
		fee DECIMAL(19, 7) NOT NULL,
		net DECIMAL(19, 7) NOT NULL,
		processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

func NewPostgres(uri string) (*Postgres, error) {
	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			logger.Log.Error("Error creating table", zap.Error(err))
			db.Close()
			return nil, ErrCreatingTableFailed
		}
	}

	return &Postgres{DB: db}, nil
}

const userColumns = `id, sponsor_id, username, email, name, last_name, password_hash, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var (
		u       models.User
		sponsor sql.NullInt64
	)
	err := row.Scan(&u.ID, &sponsor, &u.Username, &u.Email, &u.Name, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	if sponsor.Valid {
		u.SponsorID = &sponsor.Int64
	}
	return u, nil
}

func (p *Postgres) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	return scanUser(p.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = $1 OR lower(email) = lower($1);
	`, login))
}

func (p *Postgres) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return scanUser(p.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1;
	`, id))
}

func (p *Postgres) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR lower(email) = lower($2));
	`, user.Username, user.Email).Scan(&exists)
	if err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, ErrUserExists
	}

	if user.Role == "" {
		user.Role = models.RoleMember
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (sponsor_id, username, email, name, last_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at;
	`, user.SponsorID, user.Username, user.Email, user.Name, user.LastName, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id) VALUES ($1);
	`, user.ID)
	if err != nil {
		return models.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (p *Postgres) UpdateSponsor(ctx context.Context, userID, sponsorID int64) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Serialise reassignments so two concurrent moves cannot close a loop.
	if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE;`); err != nil {
		return err
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE id = ANY($1);
	`, pq.Array([]int64{userID, sponsorID})).Scan(&count)
	if err != nil {
		return err
	}
	if count != 2 {
		return ErrNotFound
	}

	var cycle bool
	err = tx.QueryRowContext(ctx, `
		WITH RECURSIVE downline AS (
			SELECT id FROM users WHERE id = $1
			UNION
			SELECT u.id FROM users u JOIN downline d ON u.sponsor_id = d.id
		)
		SELECT EXISTS (SELECT 1 FROM downline WHERE id = $2);
	`, userID, sponsorID).Scan(&cycle)
	if err != nil {
		return err
	}
	if cycle {
		return ErrSponsorCycle
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET sponsor_id = $1 WHERE id = $2`, sponsorID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) GetDownlinePayload(ctx context.Context, userID int64) ([]byte, error) {
	var payload []byte
	err := p.DB.QueryRowContext(ctx, `
		WITH RECURSIVE downline AS (
			SELECT id, sponsor_id, name, last_name, username, email, created_at FROM users WHERE id = $1
			UNION
			SELECT u.id, u.sponsor_id, u.name, u.last_name, u.username, u.email, u.created_at
			FROM users u JOIN downline d ON u.sponsor_id = d.id
		)
		SELECT COALESCE(json_agg(json_build_object(
			'usuario_id', id,
			'sponsor_id', sponsor_id,
			'nombre', name,
			'apellido', last_name,
			'usuario', username,
			'correo', email
		) ORDER BY created_at, id), '[]'::json)
		FROM downline;
	`, userID).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Postgres) GetUserBalance(ctx context.Context, userID int64) (models.UserBalance, error) {
	var balance models.UserBalance

	err := p.DB.QueryRowContext(ctx, `
		SELECT id, user_id, current_balance, withdrawn_total FROM user_balances WHERE user_id = $1;
	`, userID).Scan(&balance.ID, &balance.UserID, &balance.CurrentBalance, &balance.WithdrawnTotal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserBalance{}, ErrNotFound
		}
		return models.UserBalance{}, err
	}
	return balance, nil
}

func (p *Postgres) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	res, err := p.DB.ExecContext(ctx, `
		UPDATE user_balances SET current_balance = current_balance + $1 WHERE user_id = $2;
	`, amount, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateWithdrawal(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Withdrawal{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET current_balance = current_balance - $1, withdrawn_total = withdrawn_total + $1
		WHERE user_id = $2 AND current_balance >= $1
	`, w.Amount, w.UserID)
	if err != nil {
		return models.Withdrawal{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Withdrawal{}, err
	}
	if n == 0 {
		return models.Withdrawal{}, ErrInsufficientFunds
	}

	if w.Reference == uuid.Nil {
		w.Reference = uuid.New()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO withdrawals (user_id, reference, schedule_id, amount, fee_percent, fee, net)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, processed_at
	`, w.UserID, w.Reference, w.ScheduleID, w.Amount, w.FeePercent, w.Fee, w.Net).Scan(&w.ID, &w.ProcessedAt)
	if err != nil {
		return models.Withdrawal{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Withdrawal{}, err
	}
	return w, nil
}

func (p *Postgres) GetUserWithdrawals(ctx context.Context, userID int64) ([]models.Withdrawal, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, user_id, reference, schedule_id, amount, fee_percent, fee, net, processed_at
		FROM withdrawals WHERE user_id = $1 ORDER BY processed_at;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []models.Withdrawal
	for rows.Next() {
		var (
			w        models.Withdrawal
			schedule sql.NullInt64
		)
		err = rows.Scan(&w.ID, &w.UserID, &w.Reference, &schedule, &w.Amount, &w.FeePercent, &w.Fee, &w.Net, &w.ProcessedAt)
		if err != nil {
			return nil, err
		}
		if schedule.Valid {
			w.ScheduleID = &schedule.Int64
		}
		withdrawals = append(withdrawals, w)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return withdrawals, nil
}

func (p *Postgres) GetSchedules(ctx context.Context) ([]models.WithdrawalSchedule, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id,
			to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
			to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'),
			fee_percent, message, created_at
		FROM withdrawal_schedules ORDER BY id;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.WithdrawalSchedule
	for rows.Next() {
		var s models.WithdrawalSchedule
		err = rows.Scan(&s.ID, &s.StartDate, &s.EndDate, &s.StartTime, &s.EndTime, &s.FeePercent, &s.Message, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (p *Postgres) CreateSchedule(ctx context.Context, s models.WithdrawalSchedule) (models.WithdrawalSchedule, error) {
	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO withdrawal_schedules (start_date, end_date, start_time, end_time, fee_percent, message)
		VALUES ($1::date, $2::date, $3::time, $4::time, $5, $6) RETURNING id, created_at;
	`, s.StartDate, s.EndDate, s.StartTime, s.EndTime, s.FeePercent, strings.TrimSpace(s.Message)).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return models.WithdrawalSchedule{}, err
	}
	return s, nil
}

func (p *Postgres) DeleteSchedules(ctx context.Context, ids []int64) (int64, error) {
	res, err := p.DB.ExecContext(ctx, `
		DELETE FROM withdrawal_schedules WHERE id = ANY($1);
	`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
