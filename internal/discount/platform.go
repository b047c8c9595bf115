package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmall/discount-service/internal/model"
)

// StoreAllocation — доля платформенной скидки, отнесённая на один магазин.
type StoreAllocation struct {
	SellerID                int64
	AllocatedDiscountAmount int64
}

// PlatformDiscount — итог применения платформенного ваучера к корзине.
type PlatformDiscount struct {
	DiscountAmountItems      int64
	DiscountAmountShipping   int64
	ItemsTotalAfterDiscount  int64
	ShippingFeeAfterDiscount int64
	Allocations              []StoreAllocation
}

// AllocatePlatformVoucher рассчитывает платформенную скидку по суммарной
// базе корзины и распределяет её между магазинами пропорционально вкладу
// каждого магазина в эту базу. Каждая доля округляется до целой единицы
// валюты (половина — вверх) независимо; суммарный остаток округления до
// n-1 единиц допускается и не перераспределяется.
//
// storeFreeshipApplied сообщает, применил ли хотя бы один магазин корзины
// собственный freeship-ваучер: платформенный freeship-ваучер в этом случае
// отклоняется.
func AllocatePlatformVoucher(v *model.Voucher, now time.Time, summary model.PlatformCartSummary, stores []model.StoreTotals, storeFreeshipApplied bool) (*PlatformDiscount, error) {
	if err := CheckEligibility(v, now, summary.ItemsTotal); err != nil {
		return nil, err
	}

	if v.Type == model.VoucherTypeFreeship && storeFreeshipApplied {
		return nil, ErrConflictingFreeshipVoucher
	}

	res := &PlatformDiscount{
		ItemsTotalAfterDiscount:  summary.ItemsTotal,
		ShippingFeeAfterDiscount: summary.ShippingFee,
		Allocations:              make([]StoreAllocation, 0, len(stores)),
	}

	var summedBase int64
	switch v.Type {
	case model.VoucherTypeOrder:
		summedBase = summary.ItemsTotal
		res.DiscountAmountItems = amountAgainstBase(v, summedBase)
		res.ItemsTotalAfterDiscount = summary.ItemsTotal - res.DiscountAmountItems
	case model.VoucherTypeFreeship:
		summedBase = summary.ShippingFee
		res.DiscountAmountShipping = amountAgainstBase(v, summedBase)
		res.ShippingFeeAfterDiscount = summary.ShippingFee - res.DiscountAmountShipping
	default:
		return nil, fmt.Errorf("unknown voucher type %q", v.Type)
	}

	discount := res.DiscountAmountItems + res.DiscountAmountShipping

	for _, st := range stores {
		res.Allocations = append(res.Allocations, StoreAllocation{
			SellerID:                st.SellerID,
			AllocatedDiscountAmount: allocateShare(v.Type, st, summedBase, discount),
		})
	}

	return res, nil
}

// allocateShare вычисляет долю магазина: store_base / summed_base * discount,
// округлённую до целой единицы валюты. При нулевой суммарной базе доля
// равна нулю.
func allocateShare(t model.VoucherType, st model.StoreTotals, summedBase, discount int64) int64 {
	if summedBase == 0 {
		return 0
	}

	storeBase := st.ItemsTotal
	if t == model.VoucherTypeFreeship {
		storeBase = st.ShippingFee
	}

	return roundHalfUp(decimal.NewFromInt(storeBase).
		Mul(decimal.NewFromInt(discount)).
		Div(decimal.NewFromInt(summedBase)))
}
