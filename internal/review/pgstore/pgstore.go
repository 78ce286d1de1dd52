// Package pgstore provides a PostgreSQL implementation of review.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/ward/internal/alert"
	"github.com/linnemanlabs/ward/internal/review"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ward/internal/review/pgstore")

//go:embed schema.sql
var schema string

// Store persists review state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store backed by the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const alertColumns = `id, title, description, summary, affected_function, system_name,
	impact_level, impact_description, relevance, total_score, scores, status,
	detected_at, cve_id, cve_url`

const decisionColumns = `id, alert_id, user_id, decision_type, notes, relevance,
	score_breakdown, decided_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// isSerializationFailure reports whether err is write contention the caller
// may retry: serialization failure (40001) or deadlock detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// GetAlert retrieves an alert by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetAlert", "SELECT")
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	al, err := scanAlertRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, false, spanErr(span, err)
	}
	if al == nil {
		return nil, false, nil
	}
	return al, true, nil
}

// ListAlerts returns alerts matching the filter. Ordering is left to the
// ranking policy in the review service.
func (s *Store) ListAlerts(ctx context.Context, f review.AlertFilter) ([]alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAlerts", "SELECT")
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ($1 = '' OR status = $1) AND ($2 = '' OR impact_level = $2) ORDER BY id`
	rows, err := s.pool.Query(ctx, query, string(f.Status), string(f.ImpactLevel))
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query alerts: %w", err))
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		al, err := scanAlert(rows)
		if err != nil {
			return nil, spanErr(span, err)
		}
		out = append(out, *al)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate alerts: %w", err))
	}
	return out, nil
}

// CreateAlert inserts an alert with its provenance, safe actions, and the
// ingest audit entry in one transaction.
func (s *Store) CreateAlert(ctx context.Context, al *alert.Alert, sources []alert.Provenance, actions []alert.SafeAction, audit *review.AuditEntry) error {
	ctx, span := startSpan(ctx, "pgstore.CreateAlert", "INSERT")
	defer span.End()

	scoresJSON, err := json.Marshal(al.Scores)
	if err != nil {
		return spanErr(span, fmt.Errorf("marshal scores: %w", err))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	_, err = tx.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		al.ID, al.Title, al.Description, al.Summary, al.AffectedFunction, al.SystemName,
		string(al.ImpactLevel), al.ImpactDescription, al.Relevance, al.TotalScore, scoresJSON,
		string(al.Status), al.DetectedAt, al.CVEID, al.CVEURL,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert alert: %w", err))
	}

	for _, p := range sources {
		_, err = tx.Exec(ctx,
			`INSERT INTO provenance (alert_id, source_name, source_type, source_url, verified, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			al.ID, p.SourceName, p.SourceType, p.SourceURL, p.Verified, string(p.Confidence),
		)
		if err != nil {
			return spanErr(span, fmt.Errorf("insert provenance %s: %w", p.SourceName, err))
		}
	}

	for _, a := range actions {
		_, err = tx.Exec(ctx,
			`INSERT INTO safe_actions (alert_id, action_type, action_text, display_order)
			 VALUES ($1, $2, $3, $4)`,
			al.ID, a.ActionType, a.Text, a.DisplayOrder,
		)
		if err != nil {
			return spanErr(span, fmt.Errorf("insert safe action: %w", err))
		}
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, audit); err != nil {
			return spanErr(span, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// SetSummary sets the machine-generated summary on an alert.
func (s *Store) SetSummary(ctx context.Context, alertID, summary string) error {
	ctx, span := startSpan(ctx, "pgstore.SetSummary", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET summary = $1 WHERE id = $2`, summary, alertID)
	if err != nil {
		return spanErr(span, fmt.Errorf("update summary: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

// ListProvenance returns the provenance records for an alert.
func (s *Store) ListProvenance(ctx context.Context, alertID string) ([]alert.Provenance, error) {
	ctx, span := startSpan(ctx, "pgstore.ListProvenance", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT alert_id, source_name, source_type, source_url, verified, confidence
		 FROM provenance WHERE alert_id = $1 ORDER BY id`,
		alertID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query provenance: %w", err))
	}
	defer rows.Close()

	var out []alert.Provenance
	for rows.Next() {
		var p alert.Provenance
		var confidence string
		if err := rows.Scan(&p.AlertID, &p.SourceName, &p.SourceType, &p.SourceURL, &p.Verified, &confidence); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan provenance: %w", err))
		}
		p.Confidence = alert.Confidence(confidence)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate provenance: %w", err))
	}
	return out, nil
}

// ListSafeActions returns the safe actions for an alert in display order.
func (s *Store) ListSafeActions(ctx context.Context, alertID string) ([]alert.SafeAction, error) {
	ctx, span := startSpan(ctx, "pgstore.ListSafeActions", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT alert_id, action_type, action_text, display_order
		 FROM safe_actions WHERE alert_id = $1 ORDER BY display_order`,
		alertID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query safe actions: %w", err))
	}
	defer rows.Close()

	var out []alert.SafeAction
	for rows.Next() {
		var a alert.SafeAction
		if err := rows.Scan(&a.AlertID, &a.ActionType, &a.Text, &a.DisplayOrder); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan safe action: %w", err))
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate safe actions: %w", err))
	}
	return out, nil
}

// Decide locks the alert row, hands the snapshot to fn, and persists the
// decision, audit entry, and alert update in the same transaction. The row
// lock serializes concurrent decisions on one alert; a serialization
// failure surfaces as review.ErrConflict for the service to retry.
func (s *Store) Decide(ctx context.Context, alertID string, fn review.DecideFunc) (*review.Decision, error) {
	ctx, span := startSpan(ctx, "pgstore.Decide", "TX")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 FOR UPDATE`
	al, err := scanAlertRow(tx.QueryRow(ctx, query, alertID))
	if err != nil {
		if isSerializationFailure(err) {
			return nil, spanErr(span, review.ErrConflict)
		}
		return nil, spanErr(span, err)
	}
	if al == nil {
		return nil, review.ErrNotFound
	}

	d, audit, update, err := fn(al)
	if err != nil {
		return nil, spanErr(span, err)
	}

	snapshotJSON, err := json.Marshal(d.Snapshot)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("marshal snapshot: %w", err))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO decisions (`+decisionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.AlertID, d.UserID, string(d.Type), d.Notes, d.Relevance, snapshotJSON, d.DecidedAt,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("insert decision: %w", err))
	}

	if update.Status != nil || update.Relevance != nil {
		_, err = tx.Exec(ctx,
			`UPDATE alerts SET
				status    = COALESCE($2, status),
				relevance = COALESCE($3, relevance)
			 WHERE id = $1`,
			alertID, statusParam(update.Status), update.Relevance,
		)
		if err != nil {
			return nil, spanErr(span, fmt.Errorf("update alert: %w", err))
		}
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, audit); err != nil {
			return nil, spanErr(span, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, spanErr(span, review.ErrConflict)
		}
		return nil, spanErr(span, fmt.Errorf("commit: %w", err))
	}
	return d, nil
}

func statusParam(s *alert.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// ListDecisions returns the decisions for an alert, most recent first.
func (s *Store) ListDecisions(ctx context.Context, alertID string) ([]review.Decision, error) {
	ctx, span := startSpan(ctx, "pgstore.ListDecisions", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE alert_id = $1 ORDER BY decided_at DESC`,
		alertID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query decisions: %w", err))
	}
	defer rows.Close()

	var out []review.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, spanErr(span, err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate decisions: %w", err))
	}
	return out, nil
}

// History returns alerts joined with each alert's most recent decision by
// the given user, newest alerts first. The join is a derived read over the
// decision collection, not stored state.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]review.HistoryEntry, error) {
	ctx, span := startSpan(ctx, "pgstore.History", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+prefixColumns("a", alertColumns)+`,
			d.id, d.user_id, d.decision_type, d.notes, d.relevance, d.score_breakdown, d.decided_at
		 FROM alerts a
		 LEFT JOIN LATERAL (
			SELECT * FROM decisions d
			WHERE d.alert_id = a.id AND d.user_id = $1
			ORDER BY d.decided_at DESC
			LIMIT 1
		 ) d ON TRUE
		 ORDER BY a.detected_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query history: %w", err))
	}
	defer rows.Close()

	var out []review.HistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, spanErr(span, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate history: %w", err))
	}
	return out, nil
}

// ListAudit returns the audit entries for an alert in append order.
func (s *Store) ListAudit(ctx context.Context, alertID string) ([]review.AuditEntry, error) {
	ctx, span := startSpan(ctx, "pgstore.ListAudit", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, action, user_id, alert_id, metadata, created_at
		 FROM audit_log WHERE alert_id = $1 ORDER BY created_at`,
		alertID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query audit: %w", err))
	}
	defer rows.Close()

	var out []review.AuditEntry
	for rows.Next() {
		var e review.AuditEntry
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.UserID, &e.AlertID, &metadataJSON, &e.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan audit: %w", err))
		}
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return nil, spanErr(span, fmt.Errorf("unmarshal audit metadata: %w", err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate audit: %w", err))
	}
	return out, nil
}

// CreateNotification inserts a notification.
func (s *Store) CreateNotification(ctx context.Context, n *review.Notification) error {
	ctx, span := startSpan(ctx, "pgstore.CreateNotification", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, alert_id, message, read_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.AlertID, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert notification: %w", err))
	}
	return nil
}

// ListNotifications returns a user's notifications joined with alert
// context, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]review.Notification, error) {
	ctx, span := startSpan(ctx, "pgstore.ListNotifications", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT n.id, n.user_id, n.alert_id, n.message, n.read_status, n.created_at,
			a.title, a.impact_level, a.detected_at
		 FROM notifications n
		 JOIN alerts a ON n.alert_id = a.id
		 WHERE n.user_id = $1 AND ($2 = FALSE OR n.read_status = FALSE)
		 ORDER BY n.created_at DESC`,
		userID, unreadOnly,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query notifications: %w", err))
	}
	defer rows.Close()

	var out []review.Notification
	for rows.Next() {
		var n review.Notification
		var impact string
		if err := rows.Scan(&n.ID, &n.UserID, &n.AlertID, &n.Message, &n.Read, &n.CreatedAt,
			&n.AlertTitle, &impact, &n.DetectedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan notification: %w", err))
		}
		n.ImpactLevel = alert.ImpactLevel(impact)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate notifications: %w", err))
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "pgstore.MarkNotificationRead", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read_status = TRUE WHERE id = $1`, id)
	if err != nil {
		return spanErr(span, fmt.Errorf("update notification: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, e *review.AuditEntry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (id, action, user_id, alert_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Action, e.UserID, e.AlertID, metadataJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// scanAlert scans the alert columns from the current row.
func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		al         alert.Alert
		impact     string
		status     string
		scoresJSON []byte
	)
	err := row.Scan(
		&al.ID, &al.Title, &al.Description, &al.Summary, &al.AffectedFunction, &al.SystemName,
		&impact, &al.ImpactDescription, &al.Relevance, &al.TotalScore, &scoresJSON, &status,
		&al.DetectedAt, &al.CVEID, &al.CVEURL,
	)
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	al.ImpactLevel = alert.ImpactLevel(impact)
	al.Status = alert.Status(status)
	if err := json.Unmarshal(scoresJSON, &al.Scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	return &al, nil
}

// scanAlertRow is scanAlert for single-row queries. Returns (nil, nil) when
// no row is found.
func scanAlertRow(row pgx.Row) (*alert.Alert, error) {
	al, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return al, nil
}

func scanDecision(row pgx.Row) (*review.Decision, error) {
	var (
		d            review.Decision
		decisionType string
		snapshotJSON []byte
	)
	err := row.Scan(&d.ID, &d.AlertID, &d.UserID, &decisionType, &d.Notes, &d.Relevance, &snapshotJSON, &d.DecidedAt)
	if err != nil {
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	d.Type = review.DecisionType(decisionType)
	if err := json.Unmarshal(snapshotJSON, &d.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &d, nil
}

func scanHistoryEntry(row pgx.Row) (*review.HistoryEntry, error) {
	var (
		e            review.HistoryEntry
		impact       string
		status       string
		scoresJSON   []byte
		decID        *string
		decUser      *string
		decType      *string
		decNotes     *string
		decRelevance *string
		snapshotJSON []byte
		decidedAt    *time.Time
	)
	err := row.Scan(
		&e.Alert.ID, &e.Alert.Title, &e.Alert.Description, &e.Alert.Summary,
		&e.Alert.AffectedFunction, &e.Alert.SystemName, &impact, &e.Alert.ImpactDescription,
		&e.Alert.Relevance, &e.Alert.TotalScore, &scoresJSON, &status,
		&e.Alert.DetectedAt, &e.Alert.CVEID, &e.Alert.CVEURL,
		&decID, &decUser, &decType, &decNotes, &decRelevance, &snapshotJSON, &decidedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan history row: %w", err)
	}
	e.Alert.ImpactLevel = alert.ImpactLevel(impact)
	e.Alert.Status = alert.Status(status)
	if err := json.Unmarshal(scoresJSON, &e.Alert.Scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}

	if decID != nil {
		d := review.Decision{
			ID:        *decID,
			AlertID:   e.Alert.ID,
			UserID:    *decUser,
			Type:      review.DecisionType(*decType),
			Notes:     *decNotes,
			Relevance: *decRelevance,
			DecidedAt: *decidedAt,
		}
		if snapshotJSON != nil {
			if err := json.Unmarshal(snapshotJSON, &d.Snapshot); err != nil {
				return nil, fmt.Errorf("unmarshal history snapshot: %w", err)
			}
		}
		e.Decision = &d
	}
	return &e, nil
}

// prefixColumns rewrites "a, b" into "p.a, p.b" for joined queries.
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
