package discount

import (
	"testing"
	"time"

	"github.com/openmall/discount-service/internal/model"
)

func platformVoucher(t model.VoucherType, now time.Time) *model.Voucher {
	return &model.Voucher{
		ID:            7,
		Type:          t,
		IssuerType:    model.IssuerPlatform,
		DiscountUnit:  model.UnitPercent,
		DiscountValue: 10,
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(time.Hour),
		IsActive:      true,
	}
}

func TestAllocatePlatformVoucher_ProportionalShares(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	v := platformVoucher(model.VoucherTypeOrder, now)
	v.MaxDiscountValue = int64ptr(3000)

	stores := []model.StoreTotals{
		{SellerID: 1, ItemsTotal: 25000, ShippingFee: 10000},
		{SellerID: 2, ItemsTotal: 30000, ShippingFee: 15000},
	}
	summary := model.PlatformCartSummary{ItemsTotal: 55000, ShippingFee: 25000}

	got, err := AllocatePlatformVoucher(v, now, summary, stores, false)
	if err != nil {
		t.Fatalf("AllocatePlatformVoucher() error = %v", err)
	}

	// 10% от 55000 = 5500, ограничено потолком 3000.
	if got.DiscountAmountItems != 3000 {
		t.Fatalf("DiscountAmountItems = %d, want 3000", got.DiscountAmountItems)
	}
	if got.ItemsTotalAfterDiscount != 52000 {
		t.Fatalf("ItemsTotalAfterDiscount = %d, want 52000", got.ItemsTotalAfterDiscount)
	}
	if got.ShippingFeeAfterDiscount != 25000 {
		t.Fatalf("ShippingFeeAfterDiscount = %d, want 25000", got.ShippingFeeAfterDiscount)
	}

	// 25000/55000*3000 = 1363.63... -> 1364, 30000/55000*3000 = 1636.36... -> 1636.
	want := []StoreAllocation{
		{SellerID: 1, AllocatedDiscountAmount: 1364},
		{SellerID: 2, AllocatedDiscountAmount: 1636},
	}
	if len(got.Allocations) != len(want) {
		t.Fatalf("allocations count = %d, want %d", len(got.Allocations), len(want))
	}
	for i, alloc := range got.Allocations {
		if alloc != want[i] {
			t.Fatalf("allocation[%d] = %+v, want %+v", i, alloc, want[i])
		}
	}
}

func TestAllocatePlatformVoucher_ResidueWithinBound(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	v := platformVoucher(model.VoucherTypeOrder, now)
	v.DiscountUnit = model.UnitAmount
	v.DiscountValue = 1000

	// Три магазина с равными базами: 1000/3 на каждого, по 333.33 -> 333.
	stores := []model.StoreTotals{
		{SellerID: 1, ItemsTotal: 10000},
		{SellerID: 2, ItemsTotal: 10000},
		{SellerID: 3, ItemsTotal: 10000},
	}
	summary := model.PlatformCartSummary{ItemsTotal: 30000}

	got, err := AllocatePlatformVoucher(v, now, summary, stores, false)
	if err != nil {
		t.Fatalf("AllocatePlatformVoucher() error = %v", err)
	}

	var sum int64
	for _, alloc := range got.Allocations {
		sum += alloc.AllocatedDiscountAmount
	}

	residue := got.DiscountAmountItems - sum
	if residue < 0 {
		residue = -residue
	}
	if residue > int64(len(stores))-1 {
		t.Fatalf("rounding residue %d exceeds %d", residue, len(stores)-1)
	}
}

func TestAllocatePlatformVoucher_FreeshipConflict(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	v := platformVoucher(model.VoucherTypeFreeship, now)

	stores := []model.StoreTotals{{SellerID: 1, ItemsTotal: 30000, ShippingFee: 10000}}
	summary := model.PlatformCartSummary{ItemsTotal: 30000, ShippingFee: 10000}

	if _, err := AllocatePlatformVoucher(v, now, summary, stores, true); err != ErrConflictingFreeshipVoucher {
		t.Fatalf("expected ErrConflictingFreeshipVoucher, got %v", err)
	}

	// Без магазинного freeship-ваучера применение проходит.
	if _, err := AllocatePlatformVoucher(v, now, summary, stores, false); err != nil {
		t.Fatalf("unexpected error without store freeship: %v", err)
	}
}

func TestAllocatePlatformVoucher_FreeshipSharesByShipping(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	v := platformVoucher(model.VoucherTypeFreeship, now)
	v.DiscountUnit = model.UnitAmount
	v.DiscountValue = 6000

	stores := []model.StoreTotals{
		{SellerID: 1, ItemsTotal: 50000, ShippingFee: 4000},
		{SellerID: 2, ItemsTotal: 10000, ShippingFee: 8000},
	}
	summary := model.PlatformCartSummary{ItemsTotal: 60000, ShippingFee: 12000}

	got, err := AllocatePlatformVoucher(v, now, summary, stores, false)
	if err != nil {
		t.Fatalf("AllocatePlatformVoucher() error = %v", err)
	}

	if got.DiscountAmountShipping != 6000 {
		t.Fatalf("DiscountAmountShipping = %d, want 6000", got.DiscountAmountShipping)
	}
	// Доли считаются от стоимости доставки, а не от суммы товаров.
	if got.Allocations[0].AllocatedDiscountAmount != 2000 {
		t.Fatalf("allocation[0] = %d, want 2000", got.Allocations[0].AllocatedDiscountAmount)
	}
	if got.Allocations[1].AllocatedDiscountAmount != 4000 {
		t.Fatalf("allocation[1] = %d, want 4000", got.Allocations[1].AllocatedDiscountAmount)
	}
}

func TestAllocatePlatformVoucher_ZeroShippingBase(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	v := platformVoucher(model.VoucherTypeFreeship, now)
	v.DiscountUnit = model.UnitAmount
	v.DiscountValue = 5000

	stores := []model.StoreTotals{{SellerID: 1, ItemsTotal: 30000, ShippingFee: 0}}
	summary := model.PlatformCartSummary{ItemsTotal: 30000, ShippingFee: 0}

	got, err := AllocatePlatformVoucher(v, now, summary, stores, false)
	if err != nil {
		t.Fatalf("AllocatePlatformVoucher() error = %v", err)
	}

	if got.DiscountAmountShipping != 0 {
		t.Fatalf("DiscountAmountShipping = %d, want 0", got.DiscountAmountShipping)
	}
	if got.Allocations[0].AllocatedDiscountAmount != 0 {
		t.Fatalf("allocation = %d, want 0", got.Allocations[0].AllocatedDiscountAmount)
	}
}
