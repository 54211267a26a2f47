package incident

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/logger"
)

// Schema creates the tables used by PostgresRepository.
const Schema = `
CREATE TABLE IF NOT EXISTS alarm_incidents (
	id                TEXT PRIMARY KEY,
	place_id          TEXT        NOT NULL,
	alert_state       TEXT        NOT NULL,
	alert             TEXT        NOT NULL,
	additional_alerts TEXT[]      NOT NULL DEFAULT '{}',
	monitored         BOOLEAN     NOT NULL DEFAULT FALSE,
	monitoring_state  TEXT        NOT NULL,
	start_time        TIMESTAMPTZ NOT NULL,
	prealert_end_time TIMESTAMPTZ,
	end_time          TIMESTAMPTZ,
	confirmed         BOOLEAN     NOT NULL DEFAULT FALSE,
	verified_time     TIMESTAMPTZ,
	verified_by       TEXT        NOT NULL DEFAULT '',
	cancelled_by      TEXT        NOT NULL DEFAULT '',
	cancel_method     TEXT        NOT NULL DEFAULT '',
	triggers          JSONB       NOT NULL DEFAULT '[]',
	tracker           JSONB       NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS alarm_incidents_place_idx
	ON alarm_incidents (place_id, start_time DESC);

CREATE TABLE IF NOT EXISTS alarm_incident_history (
	incident_id TEXT        NOT NULL REFERENCES alarm_incidents (id) ON DELETE CASCADE,
	place_id    TEXT        NOT NULL,
	time        TIMESTAMPTZ NOT NULL,
	message_key TEXT        NOT NULL,
	subject     TEXT        NOT NULL DEFAULT '',
	"values"    TEXT[]      NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS alarm_incident_history_incident_idx
	ON alarm_incident_history (place_id, incident_id, time DESC);
`

const incidentColumns = `
	id,
	place_id,
	alert_state,
	alert,
	additional_alerts,
	monitored,
	monitoring_state,
	start_time,
	prealert_end_time,
	end_time,
	confirmed,
	verified_time,
	verified_by,
	cancelled_by,
	cancel_method,
	triggers,
	tracker`

// PostgresRepository stores incidents in PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// OpenPostgres opens and pings a PostgreSQL database through lib/pq.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the schema if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate incidents: %w", err)
	}

	return nil
}

// Upsert implements Repository.
func (r *PostgresRepository) Upsert(ctx context.Context, incident *alarm.Incident) error {
	if err := validate(incident); err != nil {
		return err
	}

	triggers, err := json.Marshal(nonNil(incident.Triggers))
	if err != nil {
		return fmt.Errorf("encode triggers: %w", err)
	}

	tracker, err := json.Marshal(nonNil(incident.Tracker))
	if err != nil {
		return fmt.Errorf("encode tracker: %w", err)
	}

	query := `
		INSERT INTO alarm_incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			alert_state       = EXCLUDED.alert_state,
			alert             = EXCLUDED.alert,
			additional_alerts = EXCLUDED.additional_alerts,
			monitored         = EXCLUDED.monitored,
			monitoring_state  = EXCLUDED.monitoring_state,
			prealert_end_time = EXCLUDED.prealert_end_time,
			end_time          = EXCLUDED.end_time,
			confirmed         = EXCLUDED.confirmed,
			verified_time     = EXCLUDED.verified_time,
			verified_by       = EXCLUDED.verified_by,
			cancelled_by      = EXCLUDED.cancelled_by,
			cancel_method     = EXCLUDED.cancel_method,
			triggers          = EXCLUDED.triggers,
			tracker           = EXCLUDED.tracker
	`

	_, err = r.db.ExecContext(ctx, query,
		incident.ID,
		incident.PlaceID,
		string(incident.State),
		string(incident.Alert),
		pq.Array(typeNames(incident.AdditionalAlerts)),
		incident.Monitored,
		string(incident.MonitoringState),
		incident.StartTime.UTC(),
		nullTime(incident.PrealertEndTime),
		nullTime(incident.EndTime),
		incident.Confirmed,
		nullTime(incident.VerifiedTime),
		incident.VerifiedBy,
		incident.CancelledBy,
		incident.CancelMethod,
		triggers,
		tracker,
	)
	if err != nil {
		return fmt.Errorf("upsert incident %s: %w", incident.ID, err)
	}

	logger.DebugKV(ctx, "Incident saved", "incident_id", incident.ID, "state", incident.State)

	return nil
}

// FindByID implements Repository.
func (r *PostgresRepository) FindByID(ctx context.Context, placeID, id string) (*alarm.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM alarm_incidents
		WHERE place_id = $1 AND id = $2`

	return r.queryOne(ctx, query, placeID, id)
}

// Current implements Repository.
func (r *PostgresRepository) Current(ctx context.Context, placeID string) (*alarm.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM alarm_incidents
		WHERE place_id = $1 AND alert_state <> $2
		ORDER BY start_time DESC
		LIMIT 1`

	return r.queryOne(ctx, query, placeID, string(alarm.IncidentComplete))
}

// ListByPlace implements Repository.
func (r *PostgresRepository) ListByPlace(ctx context.Context, placeID string, limit int) ([]*alarm.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM alarm_incidents
		WHERE place_id = $1
		ORDER BY start_time DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, placeID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []*alarm.Incident

	for rows.Next() {
		incident, scanErr := scanIncident(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		out = append(out, incident)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	return out, nil
}

// AppendHistory implements Repository. Entries are written in one transaction.
func (r *PostgresRepository) AppendHistory(
	ctx context.Context,
	placeID, incidentID string,
	entries []alarm.HistoryEntry,
) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history: %w", err)
	}

	query := `
		INSERT INTO alarm_incident_history (incident_id, place_id, time, message_key, subject, "values")
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, e := range entries {
		_, err = tx.ExecContext(ctx, query,
			incidentID,
			placeID,
			e.Time.UTC(),
			e.MessageKey,
			e.Subject,
			pq.Array(nonNil(e.Values)),
		)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("append history to %s: %w", incidentID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}

	return nil
}

// History implements Repository.
func (r *PostgresRepository) History(
	ctx context.Context,
	placeID, incidentID string,
	limit int,
) ([]alarm.HistoryEntry, error) {
	query := `
		SELECT time, message_key, subject, "values"
		FROM alarm_incident_history
		WHERE place_id = $1 AND incident_id = $2
		ORDER BY time DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, placeID, incidentID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []alarm.HistoryEntry

	for rows.Next() {
		var e alarm.HistoryEntry
		if err = rows.Scan(&e.Time, &e.MessageKey, &e.Subject, pq.Array(&e.Values)); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		out = append(out, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	return out, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*alarm.Incident, error) {
	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return incident, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (*alarm.Incident, error) {
	var (
		incident                         alarm.Incident
		state, alert, monitoringState    string
		additional                       []string
		prealertEnd, endTime, verifiedAt sql.NullTime
		triggers, tracker                []byte
	)

	err := row.Scan(
		&incident.ID,
		&incident.PlaceID,
		&state,
		&alert,
		pq.Array(&additional),
		&incident.Monitored,
		&monitoringState,
		&incident.StartTime,
		&prealertEnd,
		&endTime,
		&incident.Confirmed,
		&verifiedAt,
		&incident.VerifiedBy,
		&incident.CancelledBy,
		&incident.CancelMethod,
		&triggers,
		&tracker,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scan incident: %w", err)
	}

	incident.State = alarm.IncidentState(state)
	incident.Alert = alarm.Type(alert)
	incident.MonitoringState = alarm.MonitoringState(monitoringState)
	incident.PrealertEndTime = prealertEnd.Time
	incident.EndTime = endTime.Time
	incident.VerifiedTime = verifiedAt.Time

	for _, a := range additional {
		incident.AdditionalAlerts = append(incident.AdditionalAlerts, alarm.Type(a))
	}

	if err = decodeList(triggers, &incident.Triggers); err != nil {
		return nil, fmt.Errorf("decode triggers of %s: %w", incident.ID, err)
	}

	if err = decodeList(tracker, &incident.Tracker); err != nil {
		return nil, fmt.Errorf("decode tracker of %s: %w", incident.ID, err)
	}

	return &incident, nil
}

func decodeList[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}

	if len(*dst) == 0 {
		*dst = nil
	}

	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}

	return values
}

func typeNames(types []alarm.Type) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}

	return out
}

// limitOrAll turns a non-positive limit into SQL's LIMIT ALL.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}

	return limit
}
