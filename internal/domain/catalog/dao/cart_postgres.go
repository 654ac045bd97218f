package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
)

// CartPostgres implements cart repository for PostgreSQL
type CartPostgres struct {
	pool *pgxpool.Pool
}

// NewCartPostgres creates a new PostgreSQL cart repository
func NewCartPostgres(pool *pgxpool.Pool) *CartPostgres {
	return &CartPostgres{pool: pool}
}

// AddItem puts one unit of the item into the conversation's cart and
// returns the resulting quantity
func (r *CartPostgres) AddItem(ctx context.Context, conversationID, itemID string) (int, error) {
	var quantity int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cart_lines (conversation_id, item_id, quantity, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (conversation_id, item_id) DO UPDATE SET
			quantity = cart_lines.quantity + 1,
			updated_at = NOW()
		RETURNING quantity
	`, conversationID, itemID).Scan(&quantity)
	if err != nil {
		return 0, fmt.Errorf("adding item to cart: %w", err)
	}
	return quantity, nil
}

// Lines returns the cart of a conversation joined with item details
func (r *CartPostgres) Lines(ctx context.Context, conversationID string) ([]entity.CartLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cl.conversation_id, cl.item_id, ci.sku, ci.name, cl.quantity, ci.price_minor, ci.currency, cl.updated_at
		FROM cart_lines cl
		JOIN catalog_items ci ON ci.id = cl.item_id
		WHERE cl.conversation_id = $1
		ORDER BY cl.updated_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying cart lines: %w", err)
	}
	defer rows.Close()

	var lines []entity.CartLine
	for rows.Next() {
		var l entity.CartLine
		if err := rows.Scan(
			&l.ConversationID,
			&l.ItemID,
			&l.SKU,
			&l.Name,
			&l.Quantity,
			&l.PriceMinor,
			&l.Currency,
			&l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
