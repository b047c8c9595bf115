package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmall/discount-service/internal/model"
)

var dHundred = decimal.NewFromInt(100)

// StoreDiscount — разбивка скидки одного магазина по его под-заказу.
type StoreDiscount struct {
	DiscountAmountItems      int64
	DiscountAmountShipping   int64
	ItemsTotalAfterDiscount  int64
	ShippingFeeAfterDiscount int64
}

// amountAgainstBase вычисляет размер скидки по ваучеру для указанной базы:
// фиксированная сумма либо процент от базы с округлением половины вверх.
// Результат ограничивается сверху max_discount_value (если задан) и самой
// базой: скидка может обнулить базу, но не сделать её отрицательной.
func amountAgainstBase(v *model.Voucher, base int64) int64 {
	var amount int64
	if v.DiscountUnit == model.UnitPercent {
		amount = roundHalfUp(decimal.NewFromInt(base).
			Mul(decimal.NewFromInt(v.DiscountValue)).
			Div(dHundred))
	} else {
		amount = v.DiscountValue
	}

	if v.MaxDiscountValue != nil && amount > *v.MaxDiscountValue {
		amount = *v.MaxDiscountValue
	}
	if amount > base {
		amount = base
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

// roundHalfUp округляет до целой единицы валюты, половина — вверх.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// ApplyStoreVoucher рассчитывает скидку магазинного уровня для одного
// под-заказа. Ваучер типа order уменьшает только сумму товаров, типа
// freeship — только стоимость доставки; нетронутое измерение проходит без
// изменений.
func ApplyStoreVoucher(v *model.Voucher, now time.Time, itemsTotal, shippingFee int64) (*StoreDiscount, error) {
	if err := CheckEligibility(v, now, itemsTotal); err != nil {
		return nil, err
	}

	res := &StoreDiscount{
		ItemsTotalAfterDiscount:  itemsTotal,
		ShippingFeeAfterDiscount: shippingFee,
	}

	switch v.Type {
	case model.VoucherTypeOrder:
		res.DiscountAmountItems = amountAgainstBase(v, itemsTotal)
		res.ItemsTotalAfterDiscount = itemsTotal - res.DiscountAmountItems
	case model.VoucherTypeFreeship:
		res.DiscountAmountShipping = amountAgainstBase(v, shippingFee)
		res.ShippingFeeAfterDiscount = shippingFee - res.DiscountAmountShipping
	default:
		return nil, fmt.Errorf("unknown voucher type %q", v.Type)
	}

	return res, nil
}
