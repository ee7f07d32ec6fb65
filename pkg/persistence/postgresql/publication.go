package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/persistence/sqlbase"
)

// PublicationRepository handles publication rows keyed by (flow_id, version).
type PublicationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *PublicationRepository) GetAll(ctx context.Context) ([]*models.Publication, error) {
	query := `
		SELECT flow_id, version, name, endpoint, is_public, rate_limit, max_instances, flow, published_at
		FROM publications
		ORDER BY published_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query publications: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	publications := make([]*models.Publication, 0)

	for rows.Next() {
		var (
			publication models.Publication
			rateLimit   sql.NullInt64
			flow        []byte
		)

		err := rows.Scan(&publication.FlowID, &publication.Version, &publication.Name, &publication.Endpoint,
			&publication.IsPublic, &rateLimit, &publication.MaxInstances, &flow, &publication.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}

		if rateLimit.Valid {
			limit := int(rateLimit.Int64)
			publication.RateLimit = &limit
		}

		publication.PublishedAt = publication.PublishedAt.UTC()

		err = sqlbase.FromJSON(flow, &publication.Flow)
		if err != nil {
			return nil, err
		}

		publications = append(publications, &publication)
	}

	return publications, rows.Err()
}

func (r *PublicationRepository) Save(ctx context.Context, publication *models.Publication) error {
	flow, err := sqlbase.ToJSON(publication.Flow)
	if err != nil {
		return err
	}

	if flow == nil {
		flow = "{}"
	}

	query := `
		INSERT INTO publications (flow_id, version, name, endpoint, is_public, rate_limit, max_instances, flow, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (flow_id, version) DO UPDATE SET
			name = EXCLUDED.name
		  , endpoint = EXCLUDED.endpoint
		  , is_public = EXCLUDED.is_public
		  , rate_limit = EXCLUDED.rate_limit
		  , max_instances = EXCLUDED.max_instances
		  , flow = EXCLUDED.flow
		  , published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		publication.FlowID, publication.Version, publication.Name, publication.Endpoint,
		publication.IsPublic, publication.RateLimit, publication.MaxInstances, flow, publication.PublishedAt,
	)
	if err != nil {
		return persistence.NewFlowError("SavePublication", publication.FlowID, err)
	}

	return nil
}

func (r *PublicationRepository) Delete(ctx context.Context, flowID, version string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM publications WHERE flow_id = $1 AND version = $2", flowID, version)
	if err != nil {
		return persistence.NewFlowError("DeletePublication", flowID, err)
	}

	return expectOne(result, persistence.NewFlowError("DeletePublication", flowID, persistence.ErrPublicationNotFound))
}
