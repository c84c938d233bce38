package db

import (
	"context"
	"fmt"

	"ms-checkin/internal/models"
)

func (d *DB) GetTeamByID(ctx context.Context, id string) (*models.Team, error) {
	var team models.Team
	err := d.conn(ctx).NewSelect().
		Model(&team).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &team, nil
}

func (d *DB) GetTeamMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := d.conn(ctx).NewSelect().
		Model(&members).
		Where("team_id = ?", teamID).
		Order("address ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// UpsertTeam stores the team and replaces its member list.
func (d *DB) UpsertTeam(ctx context.Context, team *models.Team, members []models.TeamMember) error {
	return d.WithTx(ctx, func(ctx context.Context) error {
		_, err := d.conn(ctx).NewInsert().
			Model(team).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("wallet_address = EXCLUDED.wallet_address").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert team %s: %w", team.ID, err)
		}

		_, err = d.conn(ctx).NewDelete().
			Model((*models.TeamMember)(nil)).
			Where("team_id = ?", team.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear members of team %s: %w", team.ID, err)
		}

		if len(members) == 0 {
			return nil
		}
		if _, err := d.conn(ctx).NewInsert().Model(&members).Exec(ctx); err != nil {
			return fmt.Errorf("insert members of team %s: %w", team.ID, err)
		}
		return nil
	})
}
