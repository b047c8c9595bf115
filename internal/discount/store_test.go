package discount

import (
	"testing"
	"time"

	"github.com/openmall/discount-service/internal/model"
)

func int64ptr(v int64) *int64 { return &v }

func TestApplyStoreVoucher(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		voucher     *model.Voucher
		itemsTotal  int64
		shippingFee int64
		want        StoreDiscount
	}{
		{
			name: "order amount",
			voucher: &model.Voucher{
				Type:          model.VoucherTypeOrder,
				DiscountUnit:  model.UnitAmount,
				DiscountValue: 5000,
				MinOrderValue: 25000,
				StartDate:     now.Add(-time.Hour),
				EndDate:       now.Add(time.Hour),
				IsActive:      true,
			},
			itemsTotal:  30000,
			shippingFee: 25000,
			want: StoreDiscount{
				DiscountAmountItems:      5000,
				DiscountAmountShipping:   0,
				ItemsTotalAfterDiscount:  25000,
				ShippingFeeAfterDiscount: 25000,
			},
		},
		{
			name: "order percent rounds half up",
			voucher: &model.Voucher{
				Type:          model.VoucherTypeOrder,
				DiscountUnit:  model.UnitPercent,
				DiscountValue: 15,
				StartDate:     now.Add(-time.Hour),
				EndDate:       now.Add(time.Hour),
				IsActive:      true,
			},
			itemsTotal:  30003, // 15% = 4500.45 -> 4500
			shippingFee: 10000,
			want: StoreDiscount{
				DiscountAmountItems:      4500,
				ItemsTotalAfterDiscount:  25503,
				ShippingFeeAfterDiscount: 10000,
			},
		},
		{
			name: "order percent capped",
			voucher: &model.Voucher{
				Type:             model.VoucherTypeOrder,
				DiscountUnit:     model.UnitPercent,
				DiscountValue:    10,
				MaxDiscountValue: int64ptr(2000),
				StartDate:        now.Add(-time.Hour),
				EndDate:          now.Add(time.Hour),
				IsActive:         true,
			},
			itemsTotal:  30000,
			shippingFee: 10000,
			want: StoreDiscount{
				DiscountAmountItems:      2000,
				ItemsTotalAfterDiscount:  28000,
				ShippingFeeAfterDiscount: 10000,
			},
		},
		{
			name: "amount clamped to base",
			voucher: &model.Voucher{
				Type:          model.VoucherTypeOrder,
				DiscountUnit:  model.UnitAmount,
				DiscountValue: 50000,
				StartDate:     now.Add(-time.Hour),
				EndDate:       now.Add(time.Hour),
				IsActive:      true,
			},
			itemsTotal:  30000,
			shippingFee: 10000,
			want: StoreDiscount{
				DiscountAmountItems:      30000,
				ItemsTotalAfterDiscount:  0,
				ShippingFeeAfterDiscount: 10000,
			},
		},
		{
			name: "freeship amount leaves items untouched",
			voucher: &model.Voucher{
				Type:          model.VoucherTypeFreeship,
				DiscountUnit:  model.UnitAmount,
				DiscountValue: 15000,
				StartDate:     now.Add(-time.Hour),
				EndDate:       now.Add(time.Hour),
				IsActive:      true,
			},
			itemsTotal:  30000,
			shippingFee: 25000,
			want: StoreDiscount{
				DiscountAmountShipping:   15000,
				ItemsTotalAfterDiscount:  30000,
				ShippingFeeAfterDiscount: 10000,
			},
		},
		{
			name: "freeship clamped to shipping fee",
			voucher: &model.Voucher{
				Type:          model.VoucherTypeFreeship,
				DiscountUnit:  model.UnitAmount,
				DiscountValue: 40000,
				StartDate:     now.Add(-time.Hour),
				EndDate:       now.Add(time.Hour),
				IsActive:      true,
			},
			itemsTotal:  30000,
			shippingFee: 25000,
			want: StoreDiscount{
				DiscountAmountShipping:   25000,
				ItemsTotalAfterDiscount:  30000,
				ShippingFeeAfterDiscount: 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyStoreVoucher(tt.voucher, now, tt.itemsTotal, tt.shippingFee)
			if err != nil {
				t.Fatalf("ApplyStoreVoucher() error = %v", err)
			}
			if *got != tt.want {
				t.Fatalf("ApplyStoreVoucher() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestApplyStoreVoucher_Expired(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	v := &model.Voucher{
		Type:          model.VoucherTypeOrder,
		DiscountUnit:  model.UnitAmount,
		DiscountValue: 5000,
		StartDate:     now.Add(-48 * time.Hour),
		EndDate:       now.Add(-24 * time.Hour),
		IsActive:      true,
	}

	if _, err := ApplyStoreVoucher(v, now, 30000, 10000); err != ErrVoucherExpiredOrInactive {
		t.Fatalf("expected ErrVoucherExpiredOrInactive, got %v", err)
	}
}
