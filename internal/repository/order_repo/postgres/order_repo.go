package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/repository/order_repo"
)

const orderColumns = `id, order_number, user_id, cart_id, subtotal, shipping_cost, tax, total_amount, currency,
	status, payment_status, payment_id, stock_reservation_id, shipping_address_id, payment_method_id,
	cancel_reason, created_at, updated_at`

type pgOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, l *zap.Logger) order_repo.OrderRepository {
	return &pgOrderRepository{db: db, logger: l.With(zap.String("component", "order_repo"))}
}

// withTx commits when fn succeeds and rolls back on error or panic.
func (r *pgOrderRepository) withTx(ctx context.Context, orderID string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during order transaction, rolling back", zap.String("order_id", orderID))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			r.logger.Warn("Rolling back order transaction due to error", zap.String("order_id", orderID), zap.Error(err))
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				r.logger.Error("Failed to commit order transaction", zap.String("order_id", orderID), zap.Error(err))
			}
		}
	}()

	return fn(tx)
}

func (r *pgOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	err := r.withTx(ctx, order.ID, func(tx *sql.Tx) error {
		query := `INSERT INTO orders (` + orderColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
		_, err := tx.ExecContext(ctx, query,
			order.ID, order.OrderNumber, order.UserID, order.CartID,
			order.Subtotal, order.ShippingCost, order.Tax, order.TotalAmount, order.Currency,
			order.Status, order.PaymentStatus, order.PaymentID, order.StockReservationID,
			order.ShippingAddressID, order.PaymentMethodID, order.CancelReason,
			order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("tx failed to create order: %w", err)
		}

		itemQuery := `INSERT INTO order_items (id, order_id, position, vendor_id, product_id, variant_id,
			product_name, quantity, unit_price, line_total, fulfillment_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		for i, item := range order.Items {
			_, err := tx.ExecContext(ctx, itemQuery,
				item.ID, order.ID, i, item.VendorID, item.ProductID, item.VariantID,
				item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal, item.FulfillmentStatus)
			if err != nil {
				return fmt.Errorf("tx failed to create order item %s: %w", item.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create order", zap.String("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}
	r.logger.Debug("Order created successfully", zap.String("order_id", order.ID), zap.Int("items", len(order.Items)))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.CartID,
		&order.Subtotal, &order.ShippingCost, &order.Tax, &order.TotalAmount, &order.Currency,
		&order.Status, &order.PaymentStatus, &order.PaymentID, &order.StockReservationID,
		&order.ShippingAddressID, &order.PaymentMethodID, &order.CancelReason,
		&order.CreatedAt, &order.UpdatedAt)
	return order, err
}

func (r *pgOrderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	query := `SELECT id, vendor_id, product_id, variant_id, product_name, quantity, unit_price, line_total, fulfillment_status
		FROM order_items WHERE order_id = $1 ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.VendorID, &item.ProductID, &item.VariantID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.LineTotal, &item.FulfillmentStatus); err != nil {
			return fmt.Errorf("failed to scan order item row: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

func (r *pgOrderRepository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		r.logger.Error("Failed to get order by ID", zap.String("order_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	if err := r.loadItems(ctx, order); err != nil {
		r.logger.Error("Failed to load order items", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *pgOrderRepository) GetOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query orders for user", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get orders by user ID %s: %w", userID, err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error("Failed to scan row for user orders", zap.String("user_id", userID), zap.Error(err))
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Rows error for user orders", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *pgOrderRepository) UpdateOrder(ctx context.Context, order *domain.Order) error {
	err := r.withTx(ctx, order.ID, func(tx *sql.Tx) error {
		query := `UPDATE orders SET status = $2, payment_status = $3, payment_id = $4, stock_reservation_id = $5,
			cancel_reason = $6, shipping_cost = $7, tax = $8, total_amount = $9, updated_at = $10 WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, order.ID, order.Status, order.PaymentStatus, order.PaymentID,
			order.StockReservationID, order.CancelReason, order.ShippingCost, order.Tax, order.TotalAmount, order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update order %s: %w", order.ID, err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if rowsAffected == 0 {
			return domain.ErrOrderNotFound
		}

		itemQuery := `UPDATE order_items SET fulfillment_status = $3 WHERE id = $1 AND order_id = $2`
		for _, item := range order.Items {
			if _, err := tx.ExecContext(ctx, itemQuery, item.ID, order.ID, item.FulfillmentStatus); err != nil {
				return fmt.Errorf("failed to update order item %s: %w", item.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			r.logger.Warn("No rows affected when updating order, order might not exist", zap.String("order_id", order.ID))
			return err
		}
		r.logger.Error("Failed to update order", zap.String("order_id", order.ID), zap.Error(err))
		return err
	}
	r.logger.Debug("Order updated successfully", zap.String("order_id", order.ID), zap.String("new_status", string(order.Status)))
	return nil
}
