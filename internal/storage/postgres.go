package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"options-flow-scanner/internal/flow"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS flow_orders (
        snapshot_date  DATE        NOT NULL,
        seq            INTEGER     NOT NULL,
        order_date     DATE        NOT NULL,
        side           TEXT        NOT NULL,
        ticker         TEXT        NOT NULL,
        option_type    TEXT        NOT NULL,
        strike         NUMERIC     NOT NULL,
        expiry         DATE,
        quantity       BIGINT      NOT NULL,
        dollar_amount  NUMERIC     NOT NULL,
        sentiment      TEXT        NOT NULL,
        PRIMARY KEY (snapshot_date, seq)
    );
    CREATE TABLE IF NOT EXISTS flow_groups (
        snapshot_date  DATE        NOT NULL,
        ticker         TEXT        NOT NULL,
        expiry         DATE        NOT NULL,
        strike         TEXT        NOT NULL,
        option_type    TEXT        NOT NULL,
        hit_count      INTEGER     NOT NULL,
        total_dollar   NUMERIC     NOT NULL,
        call_qty       BIGINT      NOT NULL,
        put_qty        BIGINT      NOT NULL,
        call_dollar    NUMERIC     NOT NULL,
        put_dollar     NUMERIC     NOT NULL,
        bullish_dollar NUMERIC     NOT NULL,
        bearish_dollar NUMERIC     NOT NULL,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (snapshot_date, ticker, expiry, strike, option_type)
    );`

	deleteOrdersSQL = `DELETE FROM flow_orders WHERE snapshot_date = $1;`
	deleteGroupsSQL = `DELETE FROM flow_groups WHERE snapshot_date = $1;`

	insertOrderSQL = `INSERT INTO flow_orders (
        snapshot_date, seq, order_date, side, ticker, option_type,
        strike, expiry, quantity, dollar_amount, sentiment
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	insertGroupSQL = `INSERT INTO flow_groups (
        snapshot_date, ticker, expiry, strike, option_type, hit_count,
        total_dollar, call_qty, put_qty, call_dollar, put_dollar,
        bullish_dollar, bearish_dollar
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`

	listDatesSQL = `SELECT DISTINCT snapshot_date FROM flow_groups ORDER BY snapshot_date;`

	listOrdersSQL = `SELECT
        order_date, side, ticker, option_type, strike::text, expiry,
        quantity, dollar_amount::text, sentiment
    FROM flow_orders
    WHERE snapshot_date = $1
    ORDER BY seq;`

	listGroupsSQL = `SELECT
        ticker, expiry, strike, option_type, hit_count, total_dollar::text,
        call_qty, put_qty, call_dollar::text, put_dollar::text,
        bullish_dollar::text, bearish_dollar::text
    FROM flow_groups
    WHERE snapshot_date = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// PostgresStore keeps snapshots in two tables keyed by snapshot date.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the snapshot tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock is dropped with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// SaveSnapshot replaces the rows of snap.Date inside one transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}
	if snap.Date.IsZero() {
		return fmt.Errorf("%w: snapshot date required", ErrSnapshotWrite)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteOrdersSQL, snap.Date); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteGroupsSQL, snap.Date); err != nil {
			return fmt.Errorf("delete groups: %w", err)
		}

		batch := &pgx.Batch{}
		for i, r := range snap.Records {
			batch.Queue(insertOrderSQL,
				snap.Date, i, r.OrderDate, string(r.Side), r.Ticker, string(r.Type),
				r.Strike.String(), nullDate(r.Expiry), r.Quantity, r.DollarAmount.String(), string(r.Sentiment),
			)
		}
		for _, g := range snap.Detailed {
			batch.Queue(insertGroupSQL,
				snap.Date, g.Key.Ticker, g.Key.Expiry, g.Key.Strike, string(g.Key.Type), g.HitCount,
				g.TotalDollar.String(), g.CallQty, g.PutQty, g.CallDollar.String(), g.PutDollar.String(),
				g.BullishDollar.String(), g.BearishDollar.String(),
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert snapshot rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}
	return nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ListSnapshots lists stored snapshot dates.
func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listDatesSQL)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	dates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
		var d time.Time
		err := row.Scan(&d)
		return flow.Date(d), err
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return dates, nil
}

// LoadSnapshot reads one date.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, date time.Time) (Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return Snapshot{}, err
	}

	groupRows, err := pool.Query(ctx, listGroupsSQL, date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load groups: %w", err)
	}
	groups, err := pgx.CollectRows(groupRows, scanGroup)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load groups: %w", err)
	}
	if len(groups) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, date.Format(dateLayout))
	}
	flow.SortByKey(groups)

	orderRows, err := pool.Query(ctx, listOrdersSQL, date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load orders: %w", err)
	}
	records, err := pgx.CollectRows(orderRows, scanOrder)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load orders: %w", err)
	}

	return Snapshot{Date: date, Records: records, Detailed: groups}, nil
}

func scanOrder(row pgx.CollectableRow) (flow.OrderRecord, error) {
	var (
		rec                      flow.OrderRecord
		side, optType, sentiment string
		strike, dollar           string
		expiry                   *time.Time
	)
	if err := row.Scan(&rec.OrderDate, &side, &rec.Ticker, &optType, &strike, &expiry, &rec.Quantity, &dollar, &sentiment); err != nil {
		return rec, err
	}
	rec.OrderDate = flow.Date(rec.OrderDate)
	rec.Side = flow.Side(side)
	rec.Type = flow.OptionType(optType)
	rec.Sentiment = flow.Sentiment(sentiment)
	if expiry != nil {
		rec.Expiry = flow.Date(*expiry)
	}

	var err error
	if rec.Strike, err = decimal.NewFromString(strike); err != nil {
		return rec, fmt.Errorf("parse strike: %w", err)
	}
	if rec.DollarAmount, err = decimal.NewFromString(dollar); err != nil {
		return rec, fmt.Errorf("parse dollar amount: %w", err)
	}
	return rec, nil
}

func scanGroup(row pgx.CollectableRow) (flow.AggregateGroup, error) {
	var (
		g       flow.AggregateGroup
		optType string
		amounts [5]string
	)
	if err := row.Scan(
		&g.Key.Ticker, &g.Key.Expiry, &g.Key.Strike, &optType, &g.HitCount, &amounts[0],
		&g.CallQty, &g.PutQty, &amounts[1], &amounts[2], &amounts[3], &amounts[4],
	); err != nil {
		return g, err
	}
	g.Key.Type = flow.OptionType(optType)
	g.Key.Expiry = flow.Date(g.Key.Expiry)

	targets := []*decimal.Decimal{&g.TotalDollar, &g.CallDollar, &g.PutDollar, &g.BullishDollar, &g.BearishDollar}
	for i, raw := range amounts {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return g, fmt.Errorf("parse amount: %w", err)
		}
		*targets[i] = d
	}
	return g, nil
}

var (
	_ SnapshotStore  = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
