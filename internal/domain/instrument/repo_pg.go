package instrument

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lims/lims/internal/platform/db"
)

const instrumentCols = `id, code, name, endpoint, api_key, status, created_at, updated_at`

type instrumentRepoPG struct{ pool *pgxpool.Pool }

func NewInstrumentRepoPG(pool *pgxpool.Pool) InstrumentRepository {
	return &instrumentRepoPG{pool: pool}
}

func (r *instrumentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanInstrument(row interface{ Scan(...any) error }) (*Instrument, error) {
	var in Instrument
	err := row.Scan(&in.ID, &in.Code, &in.Name, &in.Endpoint, &in.APIKey,
		&in.Status, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *instrumentRepoPG) Create(ctx context.Context, in *Instrument) error {
	in.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO instruments (id, code, name, endpoint, api_key, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		in.ID, in.Code, in.Name, in.Endpoint, in.APIKey, in.Status)
	return err
}

func (r *instrumentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Instrument, error) {
	return scanInstrument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+instrumentCols+` FROM instruments WHERE id = $1`, id))
}

func (r *instrumentRepoPG) GetByCode(ctx context.Context, code string) (*Instrument, error) {
	return scanInstrument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+instrumentCols+` FROM instruments WHERE code = $1`, code))
}

func (r *instrumentRepoPG) Update(ctx context.Context, in *Instrument) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE instruments
		SET code = $2, name = $3, endpoint = $4, api_key = $5, status = $6, updated_at = now()
		WHERE id = $1`,
		in.ID, in.Code, in.Name, in.Endpoint, in.APIKey, in.Status)
	return err
}

func (r *instrumentRepoPG) list(ctx context.Context, query string) ([]*Instrument, error) {
	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *instrumentRepoPG) ListActive(ctx context.Context) ([]*Instrument, error) {
	return r.list(ctx, `SELECT `+instrumentCols+` FROM instruments WHERE status = 'active' ORDER BY code`)
}

func (r *instrumentRepoPG) List(ctx context.Context) ([]*Instrument, error) {
	return r.list(ctx, `SELECT `+instrumentCols+` FROM instruments ORDER BY code`)
}

type commLogRepoPG struct{ pool *pgxpool.Pool }

func NewCommLogRepoPG(pool *pgxpool.Pool) CommLogRepository {
	return &commLogRepoPG{pool: pool}
}

func (r *commLogRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *commLogRepoPG) Append(ctx context.Context, l *CommunicationLog) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO communication_logs (id, instrument_id, work_item_id, direction, payload, response_code, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.InstrumentID, l.WorkItemID, l.Direction, l.Payload, l.ResponseCode, l.Error)
	return err
}

const commLogCols = `id, instrument_id, work_item_id, direction, payload, response_code, error, created_at`

func scanCommLog(row interface{ Scan(...any) error }) (*CommunicationLog, error) {
	var l CommunicationLog
	err := row.Scan(&l.ID, &l.InstrumentID, &l.WorkItemID, &l.Direction,
		&l.Payload, &l.ResponseCode, &l.Error, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *commLogRepoPG) ListByInstrument(ctx context.Context, instrumentID uuid.UUID, limit, offset int) ([]*CommunicationLog, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM communication_logs WHERE instrument_id = $1`, instrumentID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+commLogCols+`
		FROM communication_logs
		WHERE instrument_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		instrumentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*CommunicationLog
	for rows.Next() {
		l, err := scanCommLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *commLogRepoPG) ListByWorkItem(ctx context.Context, workItemID uuid.UUID) ([]*CommunicationLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+commLogCols+`
		FROM communication_logs
		WHERE work_item_id = $1
		ORDER BY created_at`,
		workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CommunicationLog
	for rows.Next() {
		l, err := scanCommLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
