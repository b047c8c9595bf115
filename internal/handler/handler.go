// Package handler содержит HTTP-обработчики API сервиса скидок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openmall/discount-service/internal/discount"
	"github.com/openmall/discount-service/internal/middleware"
	"github.com/openmall/discount-service/internal/model"
	"github.com/openmall/discount-service/internal/repository"
	"github.com/openmall/discount-service/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateVoucher(ctx context.Context, in service.CreateVoucherInput) (*model.Voucher, error)
	GetVoucher(ctx context.Context, id int64) (*model.Voucher, error)
	ListVouchers(ctx context.Context, issuerType model.IssuerType, issuerID *int64) ([]model.Voucher, error)
	ListAvailableVouchers(ctx context.Context, userID int64, issuerType model.IssuerType, issuerID *int64, vtype *model.VoucherType) ([]model.Voucher, error)
	UpdateVoucher(ctx context.Context, id int64, in service.UpdateVoucherInput) (*model.Voucher, error)
	DeleteVoucher(ctx context.Context, id int64) error
	ApplyStoreVoucher(ctx context.Context, userID, sellerID int64, applyType model.VoucherType, code string, itemsTotal, shippingFee int64) (*service.StoreApplication, error)
	ApplyPlatformVoucher(ctx context.Context, userID int64, applyType model.VoucherType, code string, summary model.PlatformCartSummary, stores []model.StoreTotals, storeFreeshipApplied bool) (*service.PlatformApplication, error)
	CommitUsage(ctx context.Context, userID int64, stores []service.CommitStore) error
	RestoreUsage(ctx context.Context, orderID int64) (int64, error)
	GetUsagesByOrder(ctx context.Context, orderID int64) ([]model.VoucherUsage, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) (*model.Order, error)
	ComputeReturnRefund(ctx context.Context, orderID int64, returned []model.ReturnedItem, customerShippingAddressID int64) (*service.RefundResult, error)
}

// Handler реализует HTTP-обработчики API сервиса скидок.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// statusForError сопоставляет типизированные ошибки бизнес-логики с
// HTTP-статусами. Неизвестные ошибки считаются внутренними.
func statusForError(err error) int {
	var minOrderErr *discount.MinOrderNotMetError

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrVoucherNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrVoucherAlreadyUsed),
		errors.Is(err, repository.ErrVoucherInUse),
		errors.Is(err, repository.ErrOrderExists),
		errors.Is(err, service.ErrVoucherFrozen),
		errors.Is(err, service.ErrOrderCompleted),
		errors.Is(err, service.ErrOrderNotCompleted),
		errors.Is(err, discount.ErrConflictingFreeshipVoucher):
		return http.StatusConflict
	case errors.Is(err, service.ErrVoucherNotApplicable),
		errors.Is(err, discount.ErrVoucherExpiredOrInactive),
		errors.Is(err, discount.ErrZeroItemsTotal),
		errors.Is(err, service.ErrOrderItemNotFound),
		errors.Is(err, service.ErrReturnQuantityExceeded),
		errors.As(err, &minOrderErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(code), code)
		return
	}
	http.Error(w, err.Error(), code)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type voucherRequest struct {
	Type             string    `json:"type"`
	IssuerType       string    `json:"issuer_type"`
	IssuerID         *int64    `json:"issuer_id,omitempty"`
	Description      string    `json:"description"`
	DiscountUnit     string    `json:"discount_unit"`
	DiscountValue    int64     `json:"discount_value"`
	MaxDiscountValue *int64    `json:"max_discount_value,omitempty"`
	MinOrderValue    int64     `json:"min_order_value"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	IsActive         *bool     `json:"is_active,omitempty"`
}

type voucherResponse struct {
	ID               int64  `json:"id"`
	Code             string `json:"code"`
	Type             string `json:"type"`
	IssuerType       string `json:"issuer_type"`
	IssuerID         *int64 `json:"issuer_id,omitempty"`
	Description      string `json:"description"`
	DiscountUnit     string `json:"discount_unit"`
	DiscountValue    int64  `json:"discount_value"`
	MaxDiscountValue *int64 `json:"max_discount_value,omitempty"`
	MinOrderValue    int64  `json:"min_order_value"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	IsActive         bool   `json:"is_active"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func toVoucherResponse(v *model.Voucher) voucherResponse {
	return voucherResponse{
		ID:               v.ID,
		Code:             v.Code,
		Type:             string(v.Type),
		IssuerType:       string(v.IssuerType),
		IssuerID:         v.IssuerID,
		Description:      v.Description,
		DiscountUnit:     string(v.DiscountUnit),
		DiscountValue:    v.DiscountValue,
		MaxDiscountValue: v.MaxDiscountValue,
		MinOrderValue:    v.MinOrderValue,
		StartDate:        v.StartDate.Format(time.RFC3339),
		EndDate:          v.EndDate.Format(time.RFC3339),
		IsActive:         v.IsActive,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        v.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateVoucher создаёт новый ваучер. Код генерируется сервером.
func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	v, err := h.service.CreateVoucher(r.Context(), service.CreateVoucherInput{
		Type:             model.VoucherType(req.Type),
		IssuerType:       model.IssuerType(req.IssuerType),
		IssuerID:         req.IssuerID,
		Description:      req.Description,
		DiscountUnit:     model.DiscountUnit(req.DiscountUnit),
		DiscountValue:    req.DiscountValue,
		MaxDiscountValue: req.MaxDiscountValue,
		MinOrderValue:    req.MinOrderValue,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	})
	if err != nil {
		h.respondError(w, err, "create voucher error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toVoucherResponse(v))
}

// GetVoucher возвращает ваучер по идентификатору.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	v, err := h.service.GetVoucher(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get voucher error", zap.Int64("voucherID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toVoucherResponse(v))
}

func issuerFromQuery(r *http.Request) (model.IssuerType, *int64, bool) {
	issuerType := model.IssuerType(r.URL.Query().Get("issuer_type"))

	var issuerID *int64
	if raw := r.URL.Query().Get("issuer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return "", nil, false
		}
		issuerID = &id
	}

	return issuerType, issuerID, true
}

// ListVouchers возвращает ваучеры издателя.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	issuerType, issuerID, ok := issuerFromQuery(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	vouchers, err := h.service.ListVouchers(r.Context(), issuerType, issuerID)
	if err != nil {
		h.respondError(w, err, "list vouchers error")
		return
	}

	resp := make([]voucherResponse, 0, len(vouchers))
	for i := range vouchers {
		resp = append(resp, toVoucherResponse(&vouchers[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListAvailableVouchers возвращает ваучеры, доступные текущему пользователю.
func (h *Handler) ListAvailableVouchers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	issuerType, issuerID, ok := issuerFromQuery(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var vtype *model.VoucherType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := model.VoucherType(raw)
		vtype = &t
	}

	vouchers, err := h.service.ListAvailableVouchers(r.Context(), userID, issuerType, issuerID, vtype)
	if err != nil {
		h.respondError(w, err, "list available vouchers error", zap.Int64("userID", userID))
		return
	}

	resp := make([]voucherResponse, 0, len(vouchers))
	for i := range vouchers {
		resp = append(resp, toVoucherResponse(&vouchers[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateVoucher обновляет ваучер. Условия потреблённого ваучера заморожены.
func (h *Handler) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req voucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	v, err := h.service.UpdateVoucher(r.Context(), id, service.UpdateVoucherInput{
		Description:      req.Description,
		DiscountUnit:     model.DiscountUnit(req.DiscountUnit),
		DiscountValue:    req.DiscountValue,
		MaxDiscountValue: req.MaxDiscountValue,
		MinOrderValue:    req.MinOrderValue,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		IsActive:         isActive,
	})
	if err != nil {
		h.respondError(w, err, "update voucher error", zap.Int64("voucherID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toVoucherResponse(v))
}

// DeleteVoucher удаляет непотреблённый ваучер.
func (h *Handler) DeleteVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteVoucher(r.Context(), id); err != nil {
		h.respondError(w, err, "delete voucher error", zap.Int64("voucherID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type applyStoreRequest struct {
	SellerID    int64  `json:"seller_id"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	ItemsTotal  int64  `json:"items_total"`
	ShippingFee int64  `json:"shipping_fee"`
}

type applyStoreResponse struct {
	VoucherID                int64  `json:"voucher_id"`
	Code                     string `json:"code"`
	DiscountAmountItems      int64  `json:"discount_amount_items"`
	DiscountAmountShipping   int64  `json:"discount_amount_shipping"`
	ItemsTotalAfterDiscount  int64  `json:"items_total_after_discount"`
	ShippingFeeAfterDiscount int64  `json:"shipping_fee_after_discount"`
	FinalTotal               int64  `json:"final_total"`
}

// ApplyStoreVoucher применяет ваучер магазина к его под-заказу.
func (h *Handler) ApplyStoreVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req applyStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.SellerID <= 0 || req.Code == "" || !model.ValidVoucherType(model.VoucherType(req.Type)) ||
		req.ItemsTotal < 0 || req.ShippingFee < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	app, err := h.service.ApplyStoreVoucher(r.Context(), userID, req.SellerID, model.VoucherType(req.Type), req.Code, req.ItemsTotal, req.ShippingFee)
	if err != nil {
		h.respondError(w, err, "apply store voucher error", zap.Int64("userID", userID), zap.String("code", req.Code))
		return
	}

	h.writeJSON(w, http.StatusOK, applyStoreResponse{
		VoucherID:                app.Voucher.ID,
		Code:                     app.Voucher.Code,
		DiscountAmountItems:      app.Discount.DiscountAmountItems,
		DiscountAmountShipping:   app.Discount.DiscountAmountShipping,
		ItemsTotalAfterDiscount:  app.Discount.ItemsTotalAfterDiscount,
		ShippingFeeAfterDiscount: app.Discount.ShippingFeeAfterDiscount,
		FinalTotal:               app.FinalTotal,
	})
}

type storeTotalsRequest struct {
	SellerID    int64 `json:"seller_id"`
	ItemsTotal  int64 `json:"items_total"`
	ShippingFee int64 `json:"shipping_fee"`
}

type applyPlatformRequest struct {
	Type                 string               `json:"type"`
	Code                 string               `json:"code"`
	ItemsTotal           int64                `json:"items_total"`
	ShippingFee          int64                `json:"shipping_fee"`
	StoreFreeshipApplied bool                 `json:"store_freeship_applied"`
	Stores               []storeTotalsRequest `json:"stores"`
}

type allocationResponse struct {
	SellerID                int64 `json:"seller_id"`
	AllocatedDiscountAmount int64 `json:"allocated_discount_amount"`
}

type applyPlatformResponse struct {
	VoucherID                int64                `json:"voucher_id"`
	Code                     string               `json:"code"`
	DiscountAmountItems      int64                `json:"discount_amount_items"`
	DiscountAmountShipping   int64                `json:"discount_amount_shipping"`
	ItemsTotalAfterDiscount  int64                `json:"items_total_after_discount"`
	ShippingFeeAfterDiscount int64                `json:"shipping_fee_after_discount"`
	Allocations              []allocationResponse `json:"allocations"`
}

// ApplyPlatformVoucher применяет платформенный ваучер к корзине и
// распределяет скидку по магазинам.
func (h *Handler) ApplyPlatformVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req applyPlatformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Code == "" || !model.ValidVoucherType(model.VoucherType(req.Type)) ||
		req.ItemsTotal < 0 || req.ShippingFee < 0 || len(req.Stores) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stores := make([]model.StoreTotals, 0, len(req.Stores))
	for _, st := range req.Stores {
		if st.SellerID <= 0 || st.ItemsTotal < 0 || st.ShippingFee < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		stores = append(stores, model.StoreTotals{
			SellerID:    st.SellerID,
			ItemsTotal:  st.ItemsTotal,
			ShippingFee: st.ShippingFee,
		})
	}

	summary := model.PlatformCartSummary{
		ItemsTotal:  req.ItemsTotal,
		ShippingFee: req.ShippingFee,
	}

	app, err := h.service.ApplyPlatformVoucher(r.Context(), userID, model.VoucherType(req.Type), req.Code, summary, stores, req.StoreFreeshipApplied)
	if err != nil {
		h.respondError(w, err, "apply platform voucher error", zap.Int64("userID", userID), zap.String("code", req.Code))
		return
	}

	allocations := make([]allocationResponse, 0, len(app.Discount.Allocations))
	for _, a := range app.Discount.Allocations {
		allocations = append(allocations, allocationResponse{
			SellerID:                a.SellerID,
			AllocatedDiscountAmount: a.AllocatedDiscountAmount,
		})
	}

	h.writeJSON(w, http.StatusOK, applyPlatformResponse{
		VoucherID:                app.Voucher.ID,
		Code:                     app.Voucher.Code,
		DiscountAmountItems:      app.Discount.DiscountAmountItems,
		DiscountAmountShipping:   app.Discount.DiscountAmountShipping,
		ItemsTotalAfterDiscount:  app.Discount.ItemsTotalAfterDiscount,
		ShippingFeeAfterDiscount: app.Discount.ShippingFeeAfterDiscount,
		Allocations:              allocations,
	})
}

type voucherRefRequest struct {
	IsApplied      bool  `json:"is_applied"`
	VoucherID      int64 `json:"voucher_id"`
	DiscountAmount int64 `json:"discount_amount"`
}

func (v *voucherRefRequest) toRef() *service.VoucherRef {
	if v == nil {
		return nil
	}
	return &service.VoucherRef{
		IsApplied:      v.IsApplied,
		VoucherID:      v.VoucherID,
		DiscountAmount: v.DiscountAmount,
	}
}

type lineItemRequest struct {
	ProductID int64 `json:"product_id"`
	Price     int64 `json:"price"`
	Quantity  int64 `json:"quantity"`
}

type commitStoreRequest struct {
	OrderID                                 int64              `json:"order_id"`
	SellerID                                int64              `json:"seller_id"`
	OriginalItemsTotal                      int64              `json:"original_items_total"`
	OriginalShippingFee                     int64              `json:"original_shipping_fee"`
	DiscountAmountItems                     int64              `json:"discount_amount_items"`
	DiscountAmountShipping                  int64              `json:"discount_amount_shipping"`
	DiscountAmountItemsPlatformAllocated    int64              `json:"discount_amount_items_platform_allocated"`
	DiscountAmountShippingPlatformAllocated int64              `json:"discount_amount_shipping_platform_allocated"`
	Items                                   []lineItemRequest  `json:"items"`
	OrderVoucher                            *voucherRefRequest `json:"order_voucher,omitempty"`
	FreeshipVoucher                         *voucherRefRequest `json:"freeship_voucher,omitempty"`
	PlatformOrderVoucher                    *voucherRefRequest `json:"platform_order_voucher,omitempty"`
	PlatformFreeshipVoucher                 *voucherRefRequest `json:"platform_freeship_voucher,omitempty"`
}

type commitRequest struct {
	Stores []commitStoreRequest `json:"stores"`
}

// CommitUsage фиксирует потребления ваучеров и скидочные поля заказов
// после оформления корзины.
func (h *Handler) CommitUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stores := make([]service.CommitStore, 0, len(req.Stores))
	for _, st := range req.Stores {
		items := make([]model.LineItem, 0, len(st.Items))
		for _, item := range st.Items {
			items = append(items, model.LineItem{
				ProductID: item.ProductID,
				Price:     item.Price,
				Quantity:  item.Quantity,
			})
		}

		stores = append(stores, service.CommitStore{
			OrderID:                                 st.OrderID,
			SellerID:                                st.SellerID,
			OriginalItemsTotal:                      st.OriginalItemsTotal,
			OriginalShippingFee:                     st.OriginalShippingFee,
			DiscountAmountItems:                     st.DiscountAmountItems,
			DiscountAmountShipping:                  st.DiscountAmountShipping,
			DiscountAmountItemsPlatformAllocated:    st.DiscountAmountItemsPlatformAllocated,
			DiscountAmountShippingPlatformAllocated: st.DiscountAmountShippingPlatformAllocated,
			Items:                                   items,
			OrderVoucher:                            st.OrderVoucher.toRef(),
			FreeshipVoucher:                         st.FreeshipVoucher.toRef(),
			PlatformOrderVoucher:                    st.PlatformOrderVoucher.toRef(),
			PlatformFreeshipVoucher:                 st.PlatformFreeshipVoucher.toRef(),
		})
	}

	if err := h.service.CommitUsage(r.Context(), userID, stores); err != nil {
		h.respondError(w, err, "commit usage error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type restoreResponse struct {
	RestoredCount int64 `json:"restored_count"`
}

// RestoreUsage сбрасывает потребления ваучеров отменённого заказа.
func (h *Handler) RestoreUsage(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	count, err := h.service.RestoreUsage(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err, "restore usage error", zap.Int64("orderID", orderID))
		return
	}

	h.writeJSON(w, http.StatusOK, restoreResponse{RestoredCount: count})
}

type usageResponse struct {
	ID             int64  `json:"id"`
	VoucherID      int64  `json:"voucher_id"`
	UserID         int64  `json:"user_id"`
	OrderID        int64  `json:"order_id"`
	DiscountAmount int64  `json:"discount_amount"`
	UsageDate      string `json:"usage_date"`
	IsApplied      bool   `json:"is_applied"`
}

// GetUsages возвращает потребления ваучеров по заказу.
func (h *Handler) GetUsages(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	usages, err := h.service.GetUsagesByOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err, "get usages error", zap.Int64("orderID", orderID))
		return
	}

	if len(usages) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]usageResponse, 0, len(usages))
	for _, u := range usages {
		resp = append(resp, usageResponse{
			ID:             u.ID,
			VoucherID:      u.VoucherID,
			UserID:         u.UserID,
			OrderID:        u.OrderID,
			DiscountAmount: u.DiscountAmount,
			UsageDate:      u.UsageDate.Format(time.RFC3339),
			IsApplied:      u.IsApplied,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type orderStatusRequest struct {
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
}

type orderResponse struct {
	ID                                      int64  `json:"id"`
	UserID                                  int64  `json:"user_id"`
	SellerID                                int64  `json:"seller_id"`
	TotalQuantity                           int64  `json:"total_quantity"`
	OriginalItemsTotal                      int64  `json:"original_items_total"`
	OriginalShippingFee                     int64  `json:"original_shipping_fee"`
	DiscountAmountItems                     int64  `json:"discount_amount_items"`
	DiscountAmountShipping                  int64  `json:"discount_amount_shipping"`
	DiscountAmountItemsPlatformAllocated    int64  `json:"discount_amount_items_platform_allocated"`
	DiscountAmountShippingPlatformAllocated int64  `json:"discount_amount_shipping_platform_allocated"`
	FinalTotal                              int64  `json:"final_total"`
	OrderStatus                             string `json:"order_status"`
	PaymentStatus                           string `json:"payment_status"`
}

// UpdateOrderStatus переводит статусы заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.OrderStatus == "" && req.PaymentStatus == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.OrderStatus != "" && !model.ValidOrderStatus(model.OrderStatus(req.OrderStatus)) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.PaymentStatus != "" && !model.ValidPaymentStatus(model.PaymentStatus(req.PaymentStatus)) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, model.OrderStatus(req.OrderStatus), model.PaymentStatus(req.PaymentStatus))
	if err != nil {
		h.respondError(w, err, "update order status error", zap.Int64("orderID", orderID))
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse{
		ID:                                      order.ID,
		UserID:                                  order.UserID,
		SellerID:                                order.SellerID,
		TotalQuantity:                           order.TotalQuantity,
		OriginalItemsTotal:                      order.OriginalItemsTotal,
		OriginalShippingFee:                     order.OriginalShippingFee,
		DiscountAmountItems:                     order.DiscountAmountItems,
		DiscountAmountShipping:                  order.DiscountAmountShipping,
		DiscountAmountItemsPlatformAllocated:    order.DiscountAmountItemsPlatformAllocated,
		DiscountAmountShippingPlatformAllocated: order.DiscountAmountShippingPlatformAllocated,
		FinalTotal:                              order.FinalTotal,
		OrderStatus:                             string(order.OrderStatus),
		PaymentStatus:                           string(order.PaymentStatus),
	})
}

type returnItemRequest struct {
	OrderItemID int64 `json:"order_item_id"`
	Quantity    int64 `json:"quantity"`
}

type refundRequest struct {
	CustomerShippingAddressID int64               `json:"customer_shipping_address_id"`
	Items                     []returnItemRequest `json:"items"`
}

type itemRefundResponse struct {
	OrderItemID     int64 `json:"order_item_id"`
	ProductID       int64 `json:"product_id"`
	ProductPrice    int64 `json:"product_price"`
	Quantity        int64 `json:"quantity"`
	PerUnitDiscount int64 `json:"per_unit_discount"`
	RefundAmount    int64 `json:"refund_amount"`
}

type refundResponse struct {
	OrderID           int64                `json:"order_id"`
	RefundAmount      int64                `json:"refund_amount"`
	ReturnShippingFee int64                `json:"return_shipping_fee"`
	Items             []itemRefundResponse `json:"items"`
}

// ComputeReturnRefund рассчитывает возмещение за возвращаемые позиции заказа.
func (h *Handler) ComputeReturnRefund(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	returned := make([]model.ReturnedItem, 0, len(req.Items))
	for _, item := range req.Items {
		returned = append(returned, model.ReturnedItem{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
		})
	}

	result, err := h.service.ComputeReturnRefund(r.Context(), orderID, returned, req.CustomerShippingAddressID)
	if err != nil {
		h.respondError(w, err, "compute return refund error", zap.Int64("orderID", orderID))
		return
	}

	items := make([]itemRefundResponse, 0, len(result.Refund.Items))
	for _, item := range result.Refund.Items {
		items = append(items, itemRefundResponse{
			OrderItemID:     item.OrderItemID,
			ProductID:       item.ProductID,
			ProductPrice:    item.ProductPrice,
			Quantity:        item.Quantity,
			PerUnitDiscount: item.PerUnitDiscount,
			RefundAmount:    item.RefundAmount,
		})
	}

	h.writeJSON(w, http.StatusOK, refundResponse{
		OrderID:           result.OrderID,
		RefundAmount:      result.Refund.RefundAmount,
		ReturnShippingFee: result.ReturnShippingFee,
		Items:             items,
	})
}
