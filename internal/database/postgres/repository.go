package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openstream/link-shortener/internal/database"
	"github.com/openstream/link-shortener/internal/models"
)

type linkRecord struct {
	ID             int64     `db:"id"`
	Slug           string    `db:"slug"`
	DestinationURL string    `db:"destination_url"`
	ClickCount     int64     `db:"click_count"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	return &models.Link{
		ID:             r.ID,
		Slug:           r.Slug,
		DestinationURL: r.DestinationURL,
		ClickCount:     r.ClickCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// LinkRepository provides access to link records stored in PostgreSQL.
// Slug uniqueness is enforced by a unique constraint at the storage layer,
// so concurrent inserts racing on the same slug result in exactly one success.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

func (r *LinkRepository) Insert(ctx context.Context, slug, destinationURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Insert"

	rec := new(linkRecord)
	query := `INSERT INTO links(slug, destination_url)
		VALUES ($1, $2)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, slug, destinationURL)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrSlugExists)
		}

		return nil, fmt.Errorf("%s: failed to insert link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) GetBySlug(ctx context.Context, slug string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetBySlug"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE slug = $1`

	err := r.db.GetContext(ctx, rec, query, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByID"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE id = $1`

	err := r.db.GetContext(ctx, rec, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) Delete(ctx context.Context, id int64) error {
	const op = "database.postgres.LinkRepository.Delete"

	query := `DELETE FROM links WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

// IncrementClickCount bumps the click counter as an atomic delta at the
// storage layer, so N concurrent calls for the same id produce exactly N
// increments.
func (r *LinkRepository) IncrementClickCount(ctx context.Context, id int64) error {
	const op = "database.postgres.LinkRepository.IncrementClickCount"

	query := `UPDATE links
		SET click_count = click_count + 1, updated_at = now()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: failed to increment click count: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

// likeEscaper neutralizes LIKE metacharacters so a search term matches as a
// literal substring rather than a pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *LinkRepository) List(ctx context.Context, params database.ListParams) ([]*models.Link, error) {
	const op = "database.postgres.LinkRepository.List"

	params = params.Normalize()
	offset := (params.Page - 1) * params.PerPage

	var recs []linkRecord
	var err error

	if params.Search != "" {
		query := fmt.Sprintf(`SELECT * FROM links
			WHERE slug ILIKE '%%' || $1 || '%%' ESCAPE '\'
				OR destination_url ILIKE '%%' || $1 || '%%' ESCAPE '\'
			ORDER BY %s %s
			LIMIT $2 OFFSET $3`, params.OrderBy, params.Order)

		err = r.db.SelectContext(ctx, &recs, query, likeEscaper.Replace(params.Search), params.PerPage, offset)
	} else {
		query := fmt.Sprintf(`SELECT * FROM links
			ORDER BY %s %s
			LIMIT $1 OFFSET $2`, params.OrderBy, params.Order)

		err = r.db.SelectContext(ctx, &recs, query, params.PerPage, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: failed to list link records: %w", op, err)
	}

	links := make([]*models.Link, 0, len(recs))
	for i := range recs {
		links = append(links, recs[i].ToLink())
	}

	return links, nil
}

func (r *LinkRepository) Count(ctx context.Context, search string) (int64, error) {
	const op = "database.postgres.LinkRepository.Count"

	var total int64
	var err error

	if search != "" {
		query := `SELECT COUNT(*) FROM links
			WHERE slug ILIKE '%' || $1 || '%' ESCAPE '\'
				OR destination_url ILIKE '%' || $1 || '%' ESCAPE '\'`

		err = r.db.GetContext(ctx, &total, query, likeEscaper.Replace(search))
	} else {
		err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM links`)
	}

	if err != nil {
		return 0, fmt.Errorf("%s: failed to count link records: %w", op, err)
	}

	return total, nil
}
