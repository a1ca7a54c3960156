package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"breakoutexecutor/src/errs"
	"breakoutexecutor/src/model"
)

// OrderRepository handles read/write operations for orders and the positions their fills open.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepositoryWithDB creates a repository bound to db.
func NewOrderRepositoryWithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// OrderSearchOptions narrows Search. Zero values are ignored.
type OrderSearchOptions struct {
	Symbol        *string
	Status        *model.OrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Create inserts a new order into the database.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"symbol":   order.Symbol,
		"side":     order.Side,
		"order_id": order.ID,
	}).Debug("Creating new order")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Create",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to create order")
		return err
	}

	return nil
}

// FindByID fetches a single order. Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindByID",
			"order_id": id,
		}).WithError(err).Error("Failed to fetch order by ID")
		return nil, err
	}
	return &order, nil
}

// FindOpenBySymbol returns the open order for symbol, or (nil, nil) when there is none.
func (r *OrderRepository) FindOpenBySymbol(ctx context.Context, symbol string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.OrderStatusOpen).
		Order("created_at ASC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// HasOpenOrder reports whether symbol has an order in status open.
func (r *OrderRepository) HasOpenOrder(ctx context.Context, symbol string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("symbol = ? AND status = ?", symbol, model.OrderStatusOpen).
		Count(&count).Error
	return count > 0, err
}

// ListOpen returns every open order, oldest first.
func (r *OrderRepository) ListOpen(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusOpen).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "ListOpen",
		}).WithError(err).Error("Failed to list open orders")
		return nil, err
	}
	return orders, nil
}

// MarkTerminal moves an open order to status. It returns false when the order
// was no longer open, leaving the stored status untouched.
func (r *OrderRepository) MarkTerminal(ctx context.Context, id string, status model.OrderStatus) (bool, error) {
	if !status.Terminal() {
		return false, errors.New("mark terminal: status must be terminal")
	}

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderStatusOpen).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MarkTerminal",
			"order_id": id,
			"status":   status,
		}).WithError(res.Error).Error("Failed to update order status")
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// MarkFilled sets an open order filled and opens the matching position in one transaction.
// A fill on the same side as an already open position is merged into it at the
// weighted average entry. A fill on the opposite side returns errs.ErrPositionConflict
// and leaves the order open. When the order was no longer open it returns (nil, false, nil).
func (r *OrderRepository) MarkFilled(
	ctx context.Context,
	id string,
	fillPrice decimal.Decimal,
	fillQty decimal.Decimal,
) (*model.Position, bool, error) {
	var position *model.Position
	transitioned := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var order model.Order
		if err := tx.Where("id = ?", id).First(&order).Error; err != nil {
			return err
		}
		if order.Status != model.OrderStatusOpen {
			return nil
		}

		if !fillPrice.IsPositive() {
			fillPrice = order.Price
		}
		if !fillQty.IsPositive() {
			fillQty = order.Amount
		}

		var existing model.Position
		err := tx.Where("symbol = ? AND status = ?", order.Symbol, model.PositionStatusOpen).First(&existing).Error
		switch {
		case err == nil:
			if existing.Side != order.Side {
				return errs.ErrPositionConflict
			}
			total := existing.Quantity.Add(fillQty)
			existing.EntryPrice = existing.EntryPrice.Mul(existing.Quantity).
				Add(fillPrice.Mul(fillQty)).
				Div(total)
			existing.Quantity = total
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"entry_price": existing.EntryPrice,
				"quantity":    existing.Quantity,
				"updated_at":  now,
			}).Error; err != nil {
				return err
			}
			position = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			created := model.Position{
				OrderID:    order.ID,
				Symbol:     order.Symbol,
				Side:       order.Side,
				EntryPrice: fillPrice,
				Quantity:   fillQty,
				Status:     model.PositionStatusOpen,
				OpenedAt:   now,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			position = &created
		default:
			return err
		}

		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", id, model.OrderStatusOpen).
			Updates(map[string]interface{}{
				"status":     model.OrderStatusFilled,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			// lost the race to another writer; roll back the position too
			return errOrderNotOpen
		}

		transitioned = true
		return nil
	})

	if errors.Is(err, errOrderNotOpen) {
		return nil, false, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MarkFilled",
			"order_id": id,
		}).WithError(err).Error("Failed to mark order filled")
		return nil, false, err
	}
	if !transitioned {
		return nil, false, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "MarkFilled",
		"order_id":    id,
		"position_id": position.ID,
		"symbol":      position.Symbol,
	}).Info("Order filled and position recorded")

	return position, true, nil
}

var errOrderNotOpen = errors.New("order is no longer open")

// Search returns orders matching opts, newest first.
func (r *OrderRepository) Search(ctx context.Context, opts OrderSearchOptions) ([]model.Order, error) {
	query := r.db.WithContext(ctx).Model(&model.Order{})

	if opts.Symbol != nil {
		query = query.Where("symbol = ?", *opts.Symbol)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}
	if opts.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *opts.CreatedBefore)
	}

	query = query.Order("created_at DESC, id DESC")

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search orders")
		return nil, err
	}

	return orders, nil
}
