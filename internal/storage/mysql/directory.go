package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"booking_feed/internal/domain"
)

const providerNewbook = "newbook"

// Directory reads managed locations and their booking-API integrations.
type Directory struct{ db *sql.DB }

func NewDirectory(db *sql.DB) *Directory { return &Directory{db: db} }

func (d *Directory) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := d.db.QueryContext(ctx, listLocationsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.IsActive); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *Directory) GetIntegration(ctx context.Context, locationID int64) (domain.Integration, bool, error) {
	var (
		active bool
		raw    sql.NullString
	)
	err := d.db.QueryRowContext(ctx, getIntegrationSQL, locationID, providerNewbook).Scan(&active, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Integration{}, false, nil
	}
	if err != nil {
		return domain.Integration{}, false, err
	}

	in := domain.Integration{LocationID: locationID, IsActive: active}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &in.Credentials); err != nil {
			return domain.Integration{}, false, fmt.Errorf("location %d credentials: %w", locationID, err)
		}
	}
	return in, true, nil
}
