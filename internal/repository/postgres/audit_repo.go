package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 12
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12)

		details, _ := json.Marshal(e.Details)
		vals = append(vals,
			e.ID, e.TraceID, e.UserID, e.Action, e.PolicyType, e.PolicyID,
			e.Mode, details, e.Status, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := "INSERT INTO audit_logs (id, trace_id, user_id, action, policy_type, policy_id, mode, details, status, error, duration_ms, timestamp) VALUES " +
		placeholders.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

// FetchLogs: журнал активности, новые первыми.
func (r *AuditRepo) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	query := `SELECT id, trace_id, user_id, action, policy_type, policy_id, mode, details, status, error, duration_ms, timestamp
	          FROM audit_logs`

	var (
		conds []string
		args  []interface{}
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e       audit.Event
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.UserID, &e.Action, &e.PolicyType, &e.PolicyID,
			&e.Mode, &details, &e.Status, &e.Error, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// Ping проверяет доступность базы
func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
