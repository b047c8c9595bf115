package discount

import (
	"github.com/shopspring/decimal"

	"github.com/openmall/discount-service/internal/model"
)

// ReturnedLine — возвращаемая позиция с ценой и количеством из исходного
// заказа. Количество уже сверено с купленным количеством оркестрацией.
type ReturnedLine struct {
	OrderItemID  int64
	ProductID    int64
	ProductPrice int64
	Quantity     int64
}

// ItemRefund — возмещение по одной возвращаемой позиции.
// PerUnitDiscount — доля всех товарных скидок заказа (магазинной и
// платформенной), приходящаяся на единицу товара.
type ItemRefund struct {
	OrderItemID     int64
	ProductID       int64
	ProductPrice    int64
	Quantity        int64
	PerUnitDiscount int64
	RefundAmount    int64
}

// Refund — итог расчёта возмещения по возврату.
type Refund struct {
	RefundAmount int64
	Items        []ItemRefund
}

// CalculateRefund рассчитывает возмещение за возвращаемые позиции заказа.
// Скидка распределяется на позицию пропорционально её цене в исходной
// сумме товаров: per_unit_discount = price / original_items_total *
// (discount_amount_items + discount_amount_items_platform_allocated),
// возмещение позиции — (price - per_unit_discount) * quantity.
// Скидки на доставку в расчёте не участвуют, возврат стоимости доставки
// считается внешним коллаборатором.
func CalculateRefund(order *model.Order, returned []ReturnedLine) (*Refund, error) {
	if order.OriginalItemsTotal == 0 {
		return nil, ErrZeroItemsTotal
	}

	totalItemsPrice := decimal.NewFromInt(order.OriginalItemsTotal)
	totalDiscount := decimal.NewFromInt(order.DiscountAmountItems + order.DiscountAmountItemsPlatformAllocated)

	res := &Refund{Items: make([]ItemRefund, 0, len(returned))}

	for _, line := range returned {
		price := decimal.NewFromInt(line.ProductPrice)

		// Доля скидки на единицу товара; округляется только конечное
		// возмещение позиции, чтобы не накапливать ошибку округления.
		share := price.Div(totalItemsPrice).Mul(totalDiscount)
		refund := roundHalfUp(price.Sub(share).Mul(decimal.NewFromInt(line.Quantity)))

		res.Items = append(res.Items, ItemRefund{
			OrderItemID:     line.OrderItemID,
			ProductID:       line.ProductID,
			ProductPrice:    line.ProductPrice,
			Quantity:        line.Quantity,
			PerUnitDiscount: roundHalfUp(share),
			RefundAmount:    refund,
		})
		res.RefundAmount += refund
	}

	return res, nil
}
