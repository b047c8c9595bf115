// Package service реализует бизнес-логику сервиса скидок.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmall/discount-service/internal/discount"
	"github.com/openmall/discount-service/internal/model"
	"github.com/openmall/discount-service/internal/repository"
	"github.com/openmall/discount-service/internal/validation"
)

// ErrInvalidInput помечает ошибки проверки входных данных запроса.
var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrVoucherNotApplicable возвращается, когда ваучер существует, но не
	// подходит к запросу: чужой издатель, чужой магазин или другой тип.
	ErrVoucherNotApplicable = errors.New("voucher not applicable to this request")
	// ErrVoucherFrozen возвращается при попытке изменить условия
	// потреблённого ваучера: менять можно только дату окончания и флаг
	// активности.
	ErrVoucherFrozen = errors.New("voucher already consumed, terms are frozen")
	// ErrOrderNotCompleted возвращается при попытке возврата по
	// незавершённому заказу.
	ErrOrderNotCompleted = errors.New("order is not completed")
	// ErrOrderItemNotFound возвращается, если возвращаемая позиция не
	// принадлежит заказу.
	ErrOrderItemNotFound = errors.New("order item not found")
	// ErrReturnQuantityExceeded возвращается, если возвращаемое количество
	// превышает купленное.
	ErrReturnQuantityExceeded = errors.New("returned quantity exceeds purchased quantity")
	// ErrOrderCompleted возвращается при попытке сменить статус
	// завершённого заказа.
	ErrOrderCompleted = errors.New("order already completed, statuses are frozen")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateVoucher(ctx context.Context, v *model.Voucher) (int64, error)
	GetVoucherByID(ctx context.Context, id int64) (*model.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (*model.Voucher, error)
	ListVouchers(ctx context.Context, issuerType model.IssuerType, issuerID *int64) ([]model.Voucher, error)
	ListAvailableVouchers(ctx context.Context, userID int64, issuerType model.IssuerType, issuerID *int64, vtype *model.VoucherType, now time.Time) ([]model.Voucher, error)
	UpdateVoucher(ctx context.Context, v *model.Voucher) error
	DeleteVoucher(ctx context.Context, id int64) error
	HasActiveUsage(ctx context.Context, userID, voucherID int64) (bool, error)
	VoucherHasActiveUsage(ctx context.Context, voucherID int64) (bool, error)
	SaveOrderWithUsages(ctx context.Context, order *model.Order, items []model.LineItem, usages []model.VoucherUsage) error
	RestoreUsages(ctx context.Context, orderID int64) (int64, error)
	GetUsagesByOrder(ctx context.Context, orderID int64) ([]model.VoucherUsage, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) error
}

// ShipmentClient описывает контракт сервиса доставки для расчёта возврата.
type ShipmentClient interface {
	ReturnShippingFee(ctx context.Context, sellerID, customerShippingAddressID int64) (int64, error)
}

// Service содержит бизнес-логику сервиса скидок.
type Service struct {
	repo           Repository
	shipmentClient ShipmentClient
	now            func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом
// сервиса доставки. shipmentClient может быть nil: тогда возврат стоимости
// доставки в расчёт возмещения не включается.
func NewService(repo Repository, shipmentClient ShipmentClient) *Service {
	return &Service{
		repo:           repo,
		shipmentClient: shipmentClient,
		now:            time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateVoucherInput — параметры создания ваучера. Код генерируется
// сервисом, снаружи не принимается.
type CreateVoucherInput struct {
	Type             model.VoucherType
	IssuerType       model.IssuerType
	IssuerID         *int64
	Description      string
	DiscountUnit     model.DiscountUnit
	DiscountValue    int64
	MaxDiscountValue *int64
	MinOrderValue    int64
	StartDate        time.Time
	EndDate          time.Time
}

func (in *CreateVoucherInput) validate() error {
	if !model.ValidVoucherType(in.Type) {
		return invalidf("invalid voucher type %q", in.Type)
	}
	if !model.ValidIssuerType(in.IssuerType) {
		return invalidf("invalid issuer type %q", in.IssuerType)
	}
	if in.IssuerType == model.IssuerShop && (in.IssuerID == nil || *in.IssuerID <= 0) {
		return invalidf("issuer_id required for shop vouchers")
	}
	if in.IssuerType == model.IssuerPlatform && in.IssuerID != nil {
		return invalidf("issuer_id must be empty for platform vouchers")
	}
	if in.Description == "" {
		return invalidf("description required")
	}
	if !model.ValidDiscountUnit(in.DiscountUnit) {
		return invalidf("invalid discount unit %q", in.DiscountUnit)
	}
	if in.DiscountValue <= 0 {
		return invalidf("discount_value must be positive")
	}
	if in.DiscountUnit == model.UnitPercent && in.DiscountValue > 100 {
		return invalidf("percent discount_value must not exceed 100")
	}
	if in.MaxDiscountValue != nil && *in.MaxDiscountValue < 0 {
		return invalidf("max_discount_value must not be negative")
	}
	if in.MinOrderValue < 0 {
		return invalidf("min_order_value must not be negative")
	}
	if in.StartDate.After(in.EndDate) {
		return invalidf("start_date must not be after end_date")
	}
	return nil
}

// CreateVoucher создаёт ваучер со сгенерированным уникальным кодом.
// Коллизия кода перегенерируется; уникальность гарантирует хранилище.
func (s *Service) CreateVoucher(ctx context.Context, in CreateVoucherInput) (*model.Voucher, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	v := &model.Voucher{
		Type:             in.Type,
		IssuerType:       in.IssuerType,
		IssuerID:         in.IssuerID,
		Description:      in.Description,
		DiscountUnit:     in.DiscountUnit,
		DiscountValue:    in.DiscountValue,
		MaxDiscountValue: in.MaxDiscountValue,
		MinOrderValue:    in.MinOrderValue,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		IsActive:         true,
	}

	for {
		v.Code = validation.GenerateVoucherCode()
		id, err := s.repo.CreateVoucher(ctx, v)
		if err != nil {
			if errors.Is(err, repository.ErrVoucherCodeExists) {
				continue
			}
			return nil, err
		}
		v.ID = id
		return v, nil
	}
}

// GetVoucher возвращает ваучер по идентификатору.
func (s *Service) GetVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	return s.repo.GetVoucherByID(ctx, id)
}

// ListVouchers возвращает ваучеры издателя.
func (s *Service) ListVouchers(ctx context.Context, issuerType model.IssuerType, issuerID *int64) ([]model.Voucher, error) {
	if !model.ValidIssuerType(issuerType) {
		return nil, invalidf("invalid issuer type %q", issuerType)
	}
	return s.repo.ListVouchers(ctx, issuerType, issuerID)
}

// ListAvailableVouchers возвращает ваучеры, доступные пользователю сейчас.
func (s *Service) ListAvailableVouchers(ctx context.Context, userID int64, issuerType model.IssuerType, issuerID *int64, vtype *model.VoucherType) ([]model.Voucher, error) {
	if !model.ValidIssuerType(issuerType) {
		return nil, invalidf("invalid issuer type %q", issuerType)
	}
	if vtype != nil && !model.ValidVoucherType(*vtype) {
		return nil, invalidf("invalid voucher type %q", *vtype)
	}
	return s.repo.ListAvailableVouchers(ctx, userID, issuerType, issuerID, vtype, s.now())
}

// UpdateVoucherInput — изменяемые поля ваучера.
type UpdateVoucherInput struct {
	Description      string
	DiscountUnit     model.DiscountUnit
	DiscountValue    int64
	MaxDiscountValue *int64
	MinOrderValue    int64
	StartDate        time.Time
	EndDate          time.Time
	IsActive         bool
}

// UpdateVoucher обновляет ваучер. Условия потреблённого ваучера заморожены:
// изменить можно только дату окончания и флаг активности, остальные поля
// должны совпадать с сохранёнными.
func (s *Service) UpdateVoucher(ctx context.Context, id int64, in UpdateVoucherInput) (*model.Voucher, error) {
	v, err := s.repo.GetVoucherByID(ctx, id)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.VoucherHasActiveUsage(ctx, id)
	if err != nil {
		return nil, err
	}
	if used && frozenTermsChanged(v, in) {
		return nil, ErrVoucherFrozen
	}

	v.Description = in.Description
	v.DiscountUnit = in.DiscountUnit
	v.DiscountValue = in.DiscountValue
	v.MaxDiscountValue = in.MaxDiscountValue
	v.MinOrderValue = in.MinOrderValue
	v.StartDate = in.StartDate
	v.EndDate = in.EndDate
	v.IsActive = in.IsActive

	create := CreateVoucherInput{
		Type:             v.Type,
		IssuerType:       v.IssuerType,
		IssuerID:         v.IssuerID,
		Description:      v.Description,
		DiscountUnit:     v.DiscountUnit,
		DiscountValue:    v.DiscountValue,
		MaxDiscountValue: v.MaxDiscountValue,
		MinOrderValue:    v.MinOrderValue,
		StartDate:        v.StartDate,
		EndDate:          v.EndDate,
	}
	if err := create.validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateVoucher(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func frozenTermsChanged(v *model.Voucher, in UpdateVoucherInput) bool {
	if v.Description != in.Description ||
		v.DiscountUnit != in.DiscountUnit ||
		v.DiscountValue != in.DiscountValue ||
		v.MinOrderValue != in.MinOrderValue ||
		!v.StartDate.Equal(in.StartDate) {
		return true
	}
	if (v.MaxDiscountValue == nil) != (in.MaxDiscountValue == nil) {
		return true
	}
	if v.MaxDiscountValue != nil && *v.MaxDiscountValue != *in.MaxDiscountValue {
		return true
	}
	return false
}

// DeleteVoucher удаляет непотреблённый ваучер.
func (s *Service) DeleteVoucher(ctx context.Context, id int64) error {
	return s.repo.DeleteVoucher(ctx, id)
}

// StoreApplication — результат применения магазинного ваучера к под-заказу.
type StoreApplication struct {
	Voucher             model.Voucher
	OriginalItemsTotal  int64
	OriginalShippingFee int64
	Discount            discount.StoreDiscount
	FinalTotal          int64
}

// ApplyStoreVoucher применяет ваучер магазина к его под-заказу. Ваучер
// должен быть выпущен именно этим магазином и совпадать по типу с
// applyType; повторное применение уже потреблённого ваучера отклоняется.
func (s *Service) ApplyStoreVoucher(ctx context.Context, userID, sellerID int64, applyType model.VoucherType, code string, itemsTotal, shippingFee int64) (*StoreApplication, error) {
	v, err := s.repo.GetVoucherByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if v.IssuerType != model.IssuerShop || v.IssuerID == nil || *v.IssuerID != sellerID || v.Type != applyType {
		return nil, ErrVoucherNotApplicable
	}

	used, err := s.repo.HasActiveUsage(ctx, userID, v.ID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, repository.ErrVoucherAlreadyUsed
	}

	d, err := discount.ApplyStoreVoucher(v, s.now(), itemsTotal, shippingFee)
	if err != nil {
		return nil, err
	}

	return &StoreApplication{
		Voucher:             *v,
		OriginalItemsTotal:  itemsTotal,
		OriginalShippingFee: shippingFee,
		Discount:            *d,
		FinalTotal:          d.ItemsTotalAfterDiscount + d.ShippingFeeAfterDiscount,
	}, nil
}

// PlatformApplication — результат применения платформенного ваучера к корзине.
type PlatformApplication struct {
	Voucher  model.Voucher
	Discount discount.PlatformDiscount
}

// ApplyPlatformVoucher применяет платформенный ваучер к агрегированной
// корзине и распределяет скидку по магазинам. storeFreeshipApplied
// передаётся логикой корзины и запрещает платформенный freeship-ваучер,
// если какой-либо магазин уже применил собственный.
func (s *Service) ApplyPlatformVoucher(ctx context.Context, userID int64, applyType model.VoucherType, code string, summary model.PlatformCartSummary, stores []model.StoreTotals, storeFreeshipApplied bool) (*PlatformApplication, error) {
	v, err := s.repo.GetVoucherByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if v.IssuerType != model.IssuerPlatform || v.Type != applyType {
		return nil, ErrVoucherNotApplicable
	}

	used, err := s.repo.HasActiveUsage(ctx, userID, v.ID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, repository.ErrVoucherAlreadyUsed
	}

	d, err := discount.AllocatePlatformVoucher(v, s.now(), summary, stores, storeFreeshipApplied)
	if err != nil {
		return nil, err
	}

	return &PlatformApplication{
		Voucher:  *v,
		Discount: *d,
	}, nil
}

// VoucherRef — ссылка на применённый ваучер в запросе фиксации.
type VoucherRef struct {
	IsApplied      bool
	VoucherID      int64
	DiscountAmount int64
}

// CommitStore — под-заказ одного магазина в запросе фиксации потреблений.
type CommitStore struct {
	OrderID                                 int64
	SellerID                                int64
	OriginalItemsTotal                      int64
	OriginalShippingFee                     int64
	DiscountAmountItems                     int64
	DiscountAmountShipping                  int64
	DiscountAmountItemsPlatformAllocated    int64
	DiscountAmountShippingPlatformAllocated int64
	Items                                   []model.LineItem
	OrderVoucher                            *VoucherRef
	FreeshipVoucher                         *VoucherRef
	PlatformOrderVoucher                    *VoucherRef
	PlatformFreeshipVoucher                 *VoucherRef
}

// CommitUsage фиксирует потребления ваучеров по заказам одного checkout'а
// и записывает скидочные поля каждого под-заказа как эталон для будущих
// возвратов. Вызывается один раз после того, как вся скидочная математика
// завершена и заказы созданы. Запись по каждому магазину атомарна.
func (s *Service) CommitUsage(ctx context.Context, userID int64, stores []CommitStore) error {
	if userID <= 0 {
		return invalidf("user_id must be positive")
	}
	if len(stores) == 0 {
		return invalidf("stores must not be empty")
	}

	for _, st := range stores {
		if err := validateCommitStore(&st); err != nil {
			return err
		}
	}

	for _, st := range stores {
		order := &model.Order{
			ID:                                      st.OrderID,
			UserID:                                  userID,
			SellerID:                                st.SellerID,
			OriginalItemsTotal:                      st.OriginalItemsTotal,
			OriginalShippingFee:                     st.OriginalShippingFee,
			DiscountAmountItems:                     st.DiscountAmountItems,
			DiscountAmountShipping:                  st.DiscountAmountShipping,
			DiscountAmountItemsPlatformAllocated:    st.DiscountAmountItemsPlatformAllocated,
			DiscountAmountShippingPlatformAllocated: st.DiscountAmountShippingPlatformAllocated,
			OrderStatus:                             model.OrderStatusPending,
			PaymentStatus:                           model.PaymentStatusPending,
		}
		for _, item := range st.Items {
			order.TotalQuantity += item.Quantity
		}
		order.FinalTotal = order.ComputeFinalTotal()

		var usages []model.VoucherUsage
		for _, ref := range []*VoucherRef{st.OrderVoucher, st.FreeshipVoucher, st.PlatformOrderVoucher, st.PlatformFreeshipVoucher} {
			if ref == nil || !ref.IsApplied {
				continue
			}
			usages = append(usages, model.VoucherUsage{
				VoucherID:      ref.VoucherID,
				UserID:         userID,
				OrderID:        st.OrderID,
				DiscountAmount: ref.DiscountAmount,
				IsApplied:      true,
			})
		}

		if err := s.repo.SaveOrderWithUsages(ctx, order, st.Items, usages); err != nil {
			return err
		}
	}

	return nil
}

func validateCommitStore(st *CommitStore) error {
	if st.OrderID <= 0 {
		return invalidf("order_id must be positive")
	}
	if st.SellerID <= 0 {
		return invalidf("seller_id must be positive")
	}
	if st.OriginalItemsTotal < 0 || st.OriginalShippingFee < 0 ||
		st.DiscountAmountItems < 0 || st.DiscountAmountShipping < 0 ||
		st.DiscountAmountItemsPlatformAllocated < 0 || st.DiscountAmountShippingPlatformAllocated < 0 {
		return invalidf("order amounts must not be negative")
	}
	if len(st.Items) == 0 {
		return invalidf("items must not be empty")
	}
	for _, item := range st.Items {
		if item.ProductID <= 0 || item.Price < 0 || item.Quantity <= 0 {
			return invalidf("invalid order item")
		}
	}
	for _, ref := range []*VoucherRef{st.OrderVoucher, st.FreeshipVoucher, st.PlatformOrderVoucher, st.PlatformFreeshipVoucher} {
		if ref != nil && ref.IsApplied && ref.VoucherID <= 0 {
			return invalidf("voucher_id must be positive for applied voucher")
		}
	}
	return nil
}

// RestoreUsage сбрасывает все потребления ваучеров по заказу при его
// отмене. Идемпотентна: повторный вызов ничего не меняет.
func (s *Service) RestoreUsage(ctx context.Context, orderID int64) (int64, error) {
	if orderID <= 0 {
		return 0, invalidf("order_id must be positive")
	}
	return s.repo.RestoreUsages(ctx, orderID)
}

// GetUsagesByOrder возвращает потребления ваучеров по заказу.
func (s *Service) GetUsagesByOrder(ctx context.Context, orderID int64) ([]model.VoucherUsage, error) {
	return s.repo.GetUsagesByOrder(ctx, orderID)
}

// UpdateOrderStatus переводит статусы заказа. Завершённый заказ менять
// нельзя: его суммы — эталон для возвратов.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Completed() {
		return nil, ErrOrderCompleted
	}

	if err := s.repo.UpdateOrderStatus(ctx, orderID, orderStatus, paymentStatus); err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, orderID)
}

// RefundResult — итог расчёта возмещения по возврату.
type RefundResult struct {
	OrderID           int64
	Refund            discount.Refund
	ReturnShippingFee int64
}

// ComputeReturnRefund рассчитывает возмещение за возвращаемые позиции
// завершённого заказа. Количество каждой позиции сверяется с купленным.
// Если настроен клиент сервиса доставки, к результату прикладывается
// стоимость обратной доставки; в сумму возмещения за товары она не входит.
func (s *Service) ComputeReturnRefund(ctx context.Context, orderID int64, returned []model.ReturnedItem, customerShippingAddressID int64) (*RefundResult, error) {
	if len(returned) == 0 {
		return nil, invalidf("returned items must not be empty")
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Completed() {
		return nil, ErrOrderNotCompleted
	}

	orderItems, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]model.OrderItem, len(orderItems))
	for _, it := range orderItems {
		byID[it.ID] = it
	}

	lines := make([]discount.ReturnedLine, 0, len(returned))
	for _, ret := range returned {
		it, ok := byID[ret.OrderItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrOrderItemNotFound, ret.OrderItemID)
		}
		if ret.Quantity <= 0 {
			return nil, invalidf("returned quantity must be positive")
		}
		if ret.Quantity > it.ProductQuantity {
			return nil, fmt.Errorf("%w: item %d", ErrReturnQuantityExceeded, ret.OrderItemID)
		}
		lines = append(lines, discount.ReturnedLine{
			OrderItemID:  it.ID,
			ProductID:    it.ProductID,
			ProductPrice: it.ProductPrice,
			Quantity:     ret.Quantity,
		})
	}

	refund, err := discount.CalculateRefund(order, lines)
	if err != nil {
		return nil, err
	}

	res := &RefundResult{
		OrderID: orderID,
		Refund:  *refund,
	}

	if s.shipmentClient != nil && customerShippingAddressID > 0 {
		fee, err := s.shipmentClient.ReturnShippingFee(ctx, order.SellerID, customerShippingAddressID)
		if err != nil {
			return nil, fmt.Errorf("return shipping fee: %w", err)
		}
		res.ReturnShippingFee = fee
	}

	return res, nil
}
