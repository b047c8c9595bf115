// Package discount реализует чистые расчёты скидочного движка:
// проверку применимости ваучера, расчёт скидки магазина, распределение
// платформенной скидки по магазинам и расчёт возмещения при возврате.
// Функции пакета не имеют разделяемого состояния и безопасны для
// параллельного вызова по разным заказам.
package discount

import (
	"errors"
	"fmt"
	"time"

	"github.com/openmall/discount-service/internal/model"
)

// ErrVoucherExpiredOrInactive возвращается для неактивного ваучера или
// ваучера вне окна действия.
var (
	ErrVoucherExpiredOrInactive = errors.New("voucher expired or inactive")
	// ErrConflictingFreeshipVoucher возвращается при попытке применить
	// платформенный freeship-ваучер, когда хотя бы один магазин корзины уже
	// применил собственный freeship-ваучер.
	ErrConflictingFreeshipVoucher = errors.New("conflicting freeship voucher")
	// ErrZeroItemsTotal возвращается, если у заказа нулевая исходная сумма
	// товаров: распределять скидку не на что, заказ некорректен.
	ErrZeroItemsTotal = errors.New("order has zero original items total")
)

// MinOrderNotMetError возвращается, когда сумма товаров ниже порога ваучера.
// Shortfall сообщает вызывающей стороне, сколько не хватает до порога.
type MinOrderNotMetError struct {
	MinOrderValue int64
	Shortfall     int64
}

func (e *MinOrderNotMetError) Error() string {
	return fmt.Sprintf("minimum order value %d not met, short by %d", e.MinOrderValue, e.Shortfall)
}

// CheckEligibility проверяет применимость ваучера на момент now.
// Порог min_order_value всегда сравнивается с суммой товаров itemsTotal,
// независимо от типа ваучера. Границы окна действия включительные.
func CheckEligibility(v *model.Voucher, now time.Time, itemsTotal int64) error {
	if !v.IsActive || now.Before(v.StartDate) || now.After(v.EndDate) {
		return ErrVoucherExpiredOrInactive
	}
	if itemsTotal < v.MinOrderValue {
		return &MinOrderNotMetError{
			MinOrderValue: v.MinOrderValue,
			Shortfall:     v.MinOrderValue - itemsTotal,
		}
	}
	return nil
}
