// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/openmall/discount-service/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrVoucherNotFound возвращается, если ваучер не найден по коду или id.
var (
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrVoucherCodeExists возвращается при коллизии сгенерированного кода.
	ErrVoucherCodeExists = errors.New("voucher code already exists")
	// ErrVoucherAlreadyUsed возвращается, когда у пользователя уже есть
	// активное потребление этого ваучера. Частичный уникальный индекс
	// сериализует конкурирующие commit'ы, проверка до вставки остаётся
	// только быстрой подсказкой.
	ErrVoucherAlreadyUsed = errors.New("voucher already used")
	// ErrVoucherInUse возвращается при попытке удалить или изменить
	// потреблённый ваучер.
	ErrVoucherInUse = errors.New("voucher has active usages")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при повторной записи того же заказа.
	ErrOrderExists = errors.New("order already recorded")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только сбои сериализации и дедлоки; нарушение
		// уникальности — осмысленный результат, не сбой.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const voucherColumns = `id, code, type, issuer_type, issuer_id, description,
	 discount_unit, discount_value, max_discount_value, min_order_value,
	 start_date, end_date, is_active, created_at, updated_at`

func scanVoucher(row pgx.Row) (*model.Voucher, error) {
	var v model.Voucher
	err := row.Scan(
		&v.ID, &v.Code, &v.Type, &v.IssuerType, &v.IssuerID, &v.Description,
		&v.DiscountUnit, &v.DiscountValue, &v.MaxDiscountValue, &v.MinOrderValue,
		&v.StartDate, &v.EndDate, &v.IsActive, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVoucherNotFound
		}
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	return &v, nil
}

// CreateVoucher сохраняет новый ваучер и возвращает его идентификатор.
func (r *PostgresRepository) CreateVoucher(ctx context.Context, v *model.Voucher) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vouchers
		 (code, type, issuer_type, issuer_id, description, discount_unit,
		  discount_value, max_discount_value, min_order_value, start_date, end_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		v.Code, string(v.Type), string(v.IssuerType), v.IssuerID, v.Description,
		string(v.DiscountUnit), v.DiscountValue, v.MaxDiscountValue, v.MinOrderValue,
		v.StartDate, v.EndDate, v.IsActive,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrVoucherCodeExists, v.Code)
		}
		return 0, fmt.Errorf("create voucher: %w", err)
	}
	return id, nil
}

// GetVoucherByID возвращает ваучер по идентификатору.
func (r *PostgresRepository) GetVoucherByID(ctx context.Context, id int64) (*model.Voucher, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id)
	return scanVoucher(row)
}

// GetVoucherByCode возвращает ваучер по коду.
func (r *PostgresRepository) GetVoucherByCode(ctx context.Context, code string) (*model.Voucher, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code)
	return scanVoucher(row)
}

// ListVouchers возвращает ваучеры издателя, новые сначала.
// Для платформенных ваучеров issuerID равен nil.
func (r *PostgresRepository) ListVouchers(ctx context.Context, issuerType model.IssuerType, issuerID *int64) ([]model.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE issuer_type = $1`
	args := []any{string(issuerType)}
	if issuerID != nil {
		query += ` AND issuer_id = $2`
		args = append(args, *issuerID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select vouchers: %w", err)
	}
	defer rows.Close()

	return collectVouchers(rows)
}

// ListAvailableVouchers возвращает ваучеры, которые пользователь может
// применить сейчас: активные, в окне действия и ещё не потреблённые этим
// пользователем. vtype опционально сужает выборку по типу ваучера.
func (r *PostgresRepository) ListAvailableVouchers(ctx context.Context, userID int64, issuerType model.IssuerType, issuerID *int64, vtype *model.VoucherType, now time.Time) ([]model.Voucher, error) {
	query := `SELECT ` + voucherColumns + `
		 FROM vouchers
		 WHERE issuer_type = $1
		   AND is_active
		   AND start_date <= $2 AND end_date >= $2
		   AND id NOT IN (
			 SELECT voucher_id FROM voucher_usages
			 WHERE user_id = $3 AND is_applied
		   )`
	args := []any{string(issuerType), now, userID}

	if issuerID != nil {
		args = append(args, *issuerID)
		query += fmt.Sprintf(` AND issuer_id = $%d`, len(args))
	}
	if vtype != nil {
		args = append(args, string(*vtype))
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select available vouchers: %w", err)
	}
	defer rows.Close()

	return collectVouchers(rows)
}

func collectVouchers(rows pgx.Rows) ([]model.Voucher, error) {
	var res []model.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateVoucher обновляет изменяемые поля ваучера.
func (r *PostgresRepository) UpdateVoucher(ctx context.Context, v *model.Voucher) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE vouchers
		 SET description = $2, discount_unit = $3, discount_value = $4,
		     max_discount_value = $5, min_order_value = $6,
		     start_date = $7, end_date = $8, is_active = $9, updated_at = NOW()
		 WHERE id = $1`,
		v.ID, v.Description, string(v.DiscountUnit), v.DiscountValue,
		v.MaxDiscountValue, v.MinOrderValue, v.StartDate, v.EndDate, v.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

// DeleteVoucher удаляет ваучер. Ваучер с активными потреблениями удалить
// нельзя: история расчётов ссылается на него.
func (r *PostgresRepository) DeleteVoucher(ctx context.Context, id int64) error {
	used, err := r.VoucherHasActiveUsage(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return ErrVoucherInUse
	}

	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM vouchers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

// HasActiveUsage сообщает, есть ли у пользователя активное потребление ваучера.
func (r *PostgresRepository) HasActiveUsage(ctx context.Context, userID, voucherID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM voucher_usages
		   WHERE user_id = $1 AND voucher_id = $2 AND is_applied
		 )`,
		userID, voucherID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active usage: %w", err)
	}
	return exists, nil
}

// VoucherHasActiveUsage сообщает, потреблён ли ваучер хотя бы одним пользователем.
func (r *PostgresRepository) VoucherHasActiveUsage(ctx context.Context, voucherID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM voucher_usages
		   WHERE voucher_id = $1 AND is_applied
		 )`,
		voucherID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check voucher usage: %w", err)
	}
	return exists, nil
}

// SaveOrderWithUsages атомарно записывает скидочные поля под-заказа, его
// позиции и потребления ваучеров. Нарушение частичного уникального индекса
// (voucher_id, user_id) WHERE is_applied означает, что конкурирующий
// checkout уже потребил ваучер, и транслируется в ErrVoucherAlreadyUsed.
func (r *PostgresRepository) SaveOrderWithUsages(ctx context.Context, order *model.Order, items []model.LineItem, usages []model.VoucherUsage) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO orders
			 (id, user_id, seller_id, total_quantity,
			  original_items_total, original_shipping_fee,
			  discount_amount_items, discount_amount_shipping,
			  discount_amount_items_platform_allocated, discount_amount_shipping_platform_allocated,
			  final_total, order_status, payment_status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			order.ID, order.UserID, order.SellerID, order.TotalQuantity,
			order.OriginalItemsTotal, order.OriginalShippingFee,
			order.DiscountAmountItems, order.DiscountAmountShipping,
			order.DiscountAmountItemsPlatformAllocated, order.DiscountAmountShippingPlatformAllocated,
			order.FinalTotal, string(order.OrderStatus), string(order.PaymentStatus),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: order %d", ErrOrderExists, order.ID)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range items {
			_, err = tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, product_price, product_quantity)
				 VALUES ($1, $2, $3, $4)`,
				order.ID, item.ProductID, item.Price, item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		for _, u := range usages {
			_, err = tx.Exec(ctx,
				`INSERT INTO voucher_usages (voucher_id, user_id, order_id, discount_amount, is_applied)
				 VALUES ($1, $2, $3, $4, TRUE)`,
				u.VoucherID, u.UserID, u.OrderID, u.DiscountAmount,
			)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
					return fmt.Errorf("%w: voucher %d", ErrVoucherAlreadyUsed, u.VoucherID)
				}
				return fmt.Errorf("insert voucher usage: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// RestoreUsages сбрасывает флаг is_applied у всех потреблений заказа.
// Повторный вызов по тому же заказу — no-op.
func (r *PostgresRepository) RestoreUsages(ctx context.Context, orderID int64) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE voucher_usages SET is_applied = FALSE
		 WHERE order_id = $1 AND is_applied`,
		orderID,
	)
	if err != nil {
		return 0, fmt.Errorf("restore usages: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// GetUsagesByOrder возвращает все потребления ваучеров по заказу.
func (r *PostgresRepository) GetUsagesByOrder(ctx context.Context, orderID int64) ([]model.VoucherUsage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, voucher_id, user_id, order_id, discount_amount, usage_date, is_applied
		 FROM voucher_usages
		 WHERE order_id = $1
		 ORDER BY usage_date`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select usages: %w", err)
	}
	defer rows.Close()

	var res []model.VoucherUsage
	for rows.Next() {
		var u model.VoucherUsage
		if err := rows.Scan(&u.ID, &u.VoucherID, &u.UserID, &u.OrderID, &u.DiscountAmount, &u.UsageDate, &u.IsApplied); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetOrder возвращает скидочные поля заказа.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	var o model.Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, seller_id, total_quantity,
		        original_items_total, original_shipping_fee,
		        discount_amount_items, discount_amount_shipping,
		        discount_amount_items_platform_allocated, discount_amount_shipping_platform_allocated,
		        final_total, order_status, payment_status, created_at
		 FROM orders WHERE id = $1`,
		orderID,
	).Scan(
		&o.ID, &o.UserID, &o.SellerID, &o.TotalQuantity,
		&o.OriginalItemsTotal, &o.OriginalShippingFee,
		&o.DiscountAmountItems, &o.DiscountAmountShipping,
		&o.DiscountAmountItemsPlatformAllocated, &o.DiscountAmountShippingPlatformAllocated,
		&o.FinalTotal, &o.OrderStatus, &o.PaymentStatus, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// GetOrderItems возвращает позиции заказа.
func (r *PostgresRepository) GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, product_price, product_quantity
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var res []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductPrice, &it.ProductQuantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		res = append(res, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateOrderStatus обновляет статусы заказа. Пустые значения оставляют
// соответствующий статус без изменений.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET order_status = COALESCE(NULLIF($2, ''), order_status),
		     payment_status = COALESCE(NULLIF($3, ''), payment_status)
		 WHERE id = $1`,
		orderID, string(orderStatus), string(paymentStatus),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
