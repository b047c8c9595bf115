// Package model содержит доменные сущности сервиса скидок маркетплейса.
package model

import "time"

// VoucherType определяет, какую часть под-заказа уменьшает ваучер.
type VoucherType string

const (
	// VoucherTypeOrder — скидка на стоимость товаров.
	VoucherTypeOrder VoucherType = "order"
	// VoucherTypeFreeship — скидка на стоимость доставки.
	VoucherTypeFreeship VoucherType = "freeship"
)

// IssuerType определяет, кто выпустил ваучер: площадка или магазин.
type IssuerType string

const (
	IssuerPlatform IssuerType = "platform"
	IssuerShop     IssuerType = "shop"
)

// DiscountUnit задаёт способ вычисления размера скидки.
type DiscountUnit string

const (
	UnitAmount  DiscountUnit = "amount"
	UnitPercent DiscountUnit = "percent"
)

// ValidVoucherType проверяет, что значение входит в закрытый набор типов.
func ValidVoucherType(t VoucherType) bool {
	return t == VoucherTypeOrder || t == VoucherTypeFreeship
}

// ValidIssuerType проверяет, что значение входит в закрытый набор издателей.
func ValidIssuerType(t IssuerType) bool {
	return t == IssuerPlatform || t == IssuerShop
}

// ValidDiscountUnit проверяет, что значение входит в закрытый набор единиц скидки.
func ValidDiscountUnit(u DiscountUnit) bool {
	return u == UnitAmount || u == UnitPercent
}

// Voucher описывает определение ваучера и правила его действия.
// Все денежные поля хранятся в целых единицах валюты.
type Voucher struct {
	ID               int64
	Code             string
	Type             VoucherType
	IssuerType       IssuerType
	IssuerID         *int64 // заполняется только для ваучеров магазина
	Description      string
	DiscountUnit     DiscountUnit
	DiscountValue    int64
	MaxDiscountValue *int64
	MinOrderValue    int64
	StartDate        time.Time
	EndDate          time.Time
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// VoucherUsage — факт потребления ваучера пользователем в рамках заказа.
// Для пары (voucher_id, user_id) одновременно может существовать не более
// одной записи с IsApplied = true; записи не удаляются, при отмене заказа
// флаг сбрасывается.
type VoucherUsage struct {
	ID             int64
	VoucherID      int64
	UserID         int64
	OrderID        int64
	DiscountAmount int64
	UsageDate      time.Time
	IsApplied      bool
}

// LineItem — позиция корзины или заказа.
type LineItem struct {
	ProductID int64
	Price     int64
	Quantity  int64
}

// StoreBucket — под-заказ одного магазина на момент расчёта скидки.
// Формируется логикой корзины и не сохраняется.
type StoreBucket struct {
	SellerID    int64
	ItemsTotal  int64
	ShippingFee int64
	Items       []LineItem
}

// StoreTotals — итоги магазина после применения его собственных ваучеров.
// Служат базой для распределения платформенной скидки.
type StoreTotals struct {
	SellerID    int64
	ItemsTotal  int64
	ShippingFee int64
}

// PlatformCartSummary — агрегат по всем магазинам корзины после магазинных скидок.
type PlatformCartSummary struct {
	ItemsTotal  int64
	ShippingFee int64
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipping   OrderStatus = "shipping"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ValidOrderStatus проверяет, что значение входит в закрытый набор статусов заказа.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipping,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus проверяет, что значение входит в закрытый набор статусов оплаты.
func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// Order хранит скидочные поля под-заказа одного магазина.
// Поля сумм записываются один раз при создании заказа и далее служат
// эталоном для расчёта возвратов.
type Order struct {
	ID                                      int64
	UserID                                  int64
	SellerID                                int64
	TotalQuantity                           int64
	OriginalItemsTotal                      int64
	OriginalShippingFee                     int64
	DiscountAmountItems                     int64
	DiscountAmountShipping                  int64
	DiscountAmountItemsPlatformAllocated    int64
	DiscountAmountShippingPlatformAllocated int64
	FinalTotal                              int64
	OrderStatus                             OrderStatus
	PaymentStatus                           PaymentStatus
	CreatedAt                               time.Time
}

// OrderItem — позиция заказа, на которую может быть оформлен возврат.
type OrderItem struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	ProductPrice    int64
	ProductQuantity int64
}

// ReturnedItem описывает возвращаемую позицию заказа.
type ReturnedItem struct {
	OrderItemID int64
	Quantity    int64
}

// ComputeFinalTotal вычисляет итоговую сумму под-заказа из исходных сумм
// и всех четырёх скидок. Вызывается оркестрацией перед сохранением.
func (o *Order) ComputeFinalTotal() int64 {
	return o.OriginalItemsTotal + o.OriginalShippingFee -
		o.DiscountAmountItems - o.DiscountAmountShipping -
		o.DiscountAmountItemsPlatformAllocated - o.DiscountAmountShippingPlatformAllocated
}

// Completed сообщает, завершён ли заказ: доставлен и оплачен.
// Возврат оформляется только по завершённому заказу.
func (o *Order) Completed() bool {
	return o.OrderStatus == OrderStatusDelivered && o.PaymentStatus == PaymentStatusPaid
}
