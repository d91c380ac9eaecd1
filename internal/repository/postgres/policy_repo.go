package postgres

/*
Файл policy_repo.go отвечает за хранение опубликованных политик пользователей.
created_at выставляется один раз при публикации, updated_at остается NULL
до первой правки.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
)

type PolicyRepo struct {
	db *sql.DB
}

func NewPolicyRepo(db *sql.DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

const policyColumns = `id, user_id, title, type, content, template, refs, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.GeneratedPolicy, error) {
	var (
		p       domain.GeneratedPolicy
		refs    []byte
		updated sql.NullTime // Используем для обработки NULL из БД
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Type, &p.Content, &p.Template, &refs, &p.CreatedAt, &updated); err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &p.References); err != nil {
			return nil, fmt.Errorf("postgres: bad refs for policy %s: %w", p.ID, err)
		}
	}
	if updated.Valid {
		t := updated.Time
		p.UpdatedAt = &t
	}
	return &p, nil
}

// Create публикует документ. id генерирует база.
func (r *PolicyRepo) Create(ctx context.Context, userID string, np domain.NewPolicy) (*domain.GeneratedPolicy, error) {
	created := np.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	refs, err := json.Marshal(nonNil(np.References))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to encode refs: %w", err)
	}

	query := `
		INSERT INTO policies (id, user_id, title, type, content, template, refs, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id string
	if err := r.db.QueryRowContext(ctx, query, userID, np.Title, np.Type, np.Content, np.Template, refs, created).Scan(&id); err != nil {
		return nil, fmt.Errorf("postgres: failed to create policy: %w", err)
	}
	return &domain.GeneratedPolicy{
		ID:         id,
		UserID:     userID,
		Title:      np.Title,
		Type:       np.Type,
		Content:    np.Content,
		Template:   np.Template,
		References: nonNil(np.References),
		CreatedAt:  created,
	}, nil
}

func (r *PolicyRepo) Get(ctx context.Context, id string) (*domain.GeneratedPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1`

	p, err := scanPolicy(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("postgres: policy %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to get policy: %w", err)
	}
	return p, nil
}

// List: политики пользователя, новые первыми.
func (r *PolicyRepo) List(ctx context.Context, userID string) ([]domain.GeneratedPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query policies: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.GeneratedPolicy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy: %w", err)
		}
		results = append(results, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (r *PolicyRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM policies WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: failed to count policies: %w", err)
	}
	return n, nil
}

// CountByType: разбивка для дашборда.
func (r *PolicyRepo) CountByType(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM policies WHERE user_id = $1 GROUP BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count policies by type: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy count: %w", err)
		}
		out[t] = n
	}
	return out, rows.Err()
}

// Update применяет патч. COALESCE оставляет нетронутыми поля, которых нет в патче;
// created_at не меняется никогда.
func (r *PolicyRepo) Update(ctx context.Context, id string, patch domain.PolicyPatch) (*domain.GeneratedPolicy, error) {
	query := `
		UPDATE policies
		SET title = COALESCE($1, title),
		    content = COALESCE($2, content),
		    refs = COALESCE($3::jsonb, refs),
		    updated_at = GREATEST(NOW(), created_at + INTERVAL '1 microsecond')
		WHERE id = $4
		RETURNING ` + policyColumns

	var refs sql.NullString
	if patch.References != nil {
		raw, err := json.Marshal(nonNil(*patch.References))
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to encode refs: %w", err)
		}
		refs = sql.NullString{String: string(raw), Valid: true}
	}

	p, err := scanPolicy(r.db.QueryRowContext(ctx, query, nullString(patch.Title), nullString(patch.Content), refs, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("postgres: policy %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to update policy: %w", err)
	}
	return p, nil
}

// Delete удаляет политику по ID.
func (r *PolicyRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete policy: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("postgres: policy %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
