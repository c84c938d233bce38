package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

func (d *DB) CreateQRToken(ctx context.Context, token *models.QRToken) error {
	_, err := d.conn(ctx).NewInsert().Model(token).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("qr token %s: %w", token.ID, ErrDuplicate)
	}
	return err
}

func (d *DB) GetQRTokenByHash(ctx context.Context, hash string) (*models.QRToken, error) {
	var token models.QRToken
	err := d.conn(ctx).NewSelect().
		Model(&token).
		Where("token_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (d *DB) GetQRTokensByTicket(ctx context.Context, ticketID string) ([]models.QRToken, error) {
	var tokens []models.QRToken
	err := d.conn(ctx).NewSelect().
		Model(&tokens).
		Where("ticket_id = ?", ticketID).
		Order("issued_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// RevokeLiveQRTokens marks every credential of the ticket that is live at now
// as revoked and returns how many were revoked.
func (d *DB) RevokeLiveQRTokens(ctx context.Context, ticketID string, now time.Time) (int, error) {
	var tokens []models.QRToken
	err := d.conn(ctx).NewSelect().
		Model(&tokens).
		Where("ticket_id = ?", ticketID).
		Where("revoked_at IS NULL").
		Scan(ctx)
	if err != nil {
		return 0, err
	}

	// Expiry is compared here rather than in SQL so the check is the same on every dialect.
	ids := make([]string, 0, len(tokens))
	for i := range tokens {
		if tokens[i].Live(now) {
			ids = append(ids, tokens[i].ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := d.conn(ctx).NewUpdate().
		Model((*models.QRToken)(nil)).
		Set("revoked_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RevokeQRToken revokes a single credential. It reports false when the
// credential was already revoked.
func (d *DB) RevokeQRToken(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.QRToken)(nil)).
		Set("revoked_at = ?", now).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
