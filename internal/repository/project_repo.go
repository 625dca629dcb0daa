package repository

import (
	"context"
	"fmt"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

// ProjectRepo is a SQLite implementation of ProjectRepository
type ProjectRepo struct {
	db db.Querier
}

// NewProjectRepo creates a new ProjectRepo
func NewProjectRepo(q db.Querier) *ProjectRepo {
	return &ProjectRepo{db: q}
}

const projectColumns = `id, client_id, name, default_hourly_rate_cents, is_active, is_archived, created_at, updated_at`

// Create inserts a new project
func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO projects (client_id, name, default_hourly_rate_cents, is_active, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		p.ClientID,
		p.Name,
		p.DefaultHourlyRateCents,
		p.IsActive,
		p.IsArchived,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.BadRequestf("project %q already exists for this client", p.Name)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get project ID: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepo) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, domain.ErrProjectNotFound, "get project")
	}
	return p, nil
}

// List retrieves projects, optionally for a single client
func (r *ProjectRepo) List(ctx context.Context, clientID *int64, includeArchived bool) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE (? IS NULL OR client_id = ?) AND (is_archived = 0 OR ? = 1)
		ORDER BY name`

	cid := nullInt(clientID)
	rows, err := r.db.QueryContext(ctx, query, cid, cid, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

func scanProject(s scanner) (*domain.Project, error) {
	p := &domain.Project{}
	var createdAt, updatedAt string
	err := s.Scan(
		&p.ID,
		&p.ClientID,
		&p.Name,
		&p.DefaultHourlyRateCents,
		&p.IsActive,
		&p.IsArchived,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return p, nil
}
