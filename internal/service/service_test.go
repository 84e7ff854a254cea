package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dorixona/backend/internal/cache"
	"dorixona/backend/internal/domain"
	"dorixona/backend/internal/store"
	"dorixona/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopDebtSummaryCache{}, nil, 5*time.Second, "UZ")
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func operatorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "operator", Role: "operator"})
}

func intake(t *testing.T, svc *Service, outletID string, items []domain.ReceiptItemRequest, idemKey string) domain.ReceiptResponse {
	t.Helper()
	resp, err := svc.CreateReceipt(adminCtx(), domain.ReceiptCreateRequest{
		OutletID:       outletID,
		IdempotencyKey: idemKey,
		Items:          items,
	})
	if err != nil {
		t.Fatalf("create receipt failed: %v", err)
	}
	return resp
}

func TestCreateReceiptMovesStockAndDebt(t *testing.T) {
	svc := newTestService()

	// 3 packages of 10 pills at 1200 so'm each.
	resp := intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 3},
	}, "")

	if resp.Receipt.TotalPrice != 36000 {
		t.Fatalf("expected receipt total 36000, got %d", resp.Receipt.TotalPrice)
	}
	if len(resp.Receipt.Lines) != 1 || resp.Receipt.Lines[0].TotalGiven != 30 {
		t.Fatalf("expected one line with 30 units, got %+v", resp.Receipt.Lines)
	}
	if resp.Outlet.RemainingDebt != 36000 {
		t.Fatalf("expected outlet debt 36000, got %d", resp.Outlet.RemainingDebt)
	}

	product, err := svc.GetProduct(adminCtx(), "prod-paratsetamol")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockUnits != 570 {
		t.Fatalf("expected central stock 570 after intake, got %d", product.StockUnits)
	}
}

func TestCreateReceiptIdempotencyKeyReturnsStoredReceipt(t *testing.T) {
	svc := newTestService()

	first := intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 2},
	}, "idem-receipt-1")
	second := intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 2},
	}, "idem-receipt-1")

	if !second.Duplicate {
		t.Fatalf("expected second submission to be flagged as duplicate")
	}
	if second.Receipt.ID != first.Receipt.ID {
		t.Fatalf("expected same receipt id, got %s and %s", first.Receipt.ID, second.Receipt.ID)
	}
	if second.Outlet.RemainingDebt != first.Outlet.RemainingDebt {
		t.Fatalf("duplicate intake changed debt: %d vs %d", first.Outlet.RemainingDebt, second.Outlet.RemainingDebt)
	}
}

func TestCreateReceiptRejectsInsufficientCentralStock(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateReceipt(adminCtx(), domain.ReceiptCreateRequest{
		OutletID: "out-shifo",
		Items:    []domain.ReceiptItemRequest{{ProductID: "prod-bint-steril", Units: 9999}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCreateReceiptSumsRepeatedProductLines(t *testing.T) {
	svc := newTestService()

	// Seeded stock is 250 units. Each line fits on its own, together they
	// do not; the intake must fail without touching central stock.
	_, err := svc.CreateReceipt(adminCtx(), domain.ReceiptCreateRequest{
		OutletID: "out-shifo",
		Items: []domain.ReceiptItemRequest{
			{ProductID: "prod-bint-steril", Units: 200},
			{ProductID: "prod-bint-steril", Units: 200},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, err := svc.GetProduct(adminCtx(), "prod-bint-steril")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockUnits != 250 {
		t.Fatalf("expected central stock untouched at 250, got %d", product.StockUnits)
	}
}

func TestCreateReceiptRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateReceipt(operatorCtx(), domain.ReceiptCreateRequest{
		OutletID: "out-shifo",
		Items:    []domain.ReceiptItemRequest{{ProductID: "prod-paratsetamol", Packages: 1}},
	})
	if err == nil {
		t.Fatalf("expected operator intake to be rejected")
	}
}

func TestSellProductConsumesOldestReceiptFirst(t *testing.T) {
	svc := newTestService()

	first := intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-shprits-5ml", Units: 5},
	}, "")
	time.Sleep(2 * time.Millisecond)
	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-shprits-5ml", Units: 3},
	}, "")

	resp, err := svc.SellProduct(operatorCtx(), domain.SaleRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-shprits-5ml",
		Units:     7,
	})
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if resp.Qty != 7 {
		t.Fatalf("expected 7 units sold, got %d", resp.Qty)
	}
	if len(resp.Allocations) != 2 {
		t.Fatalf("expected allocations across both receipts, got %+v", resp.Allocations)
	}
	if resp.Allocations[0].ReceiptID != first.Receipt.ID || resp.Allocations[0].Qty != 5 {
		t.Fatalf("expected oldest receipt drained first, got %+v", resp.Allocations[0])
	}
}

func TestSellProductDoesNotChangeDebt(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 3},
	}, "")

	before, err := svc.OutletDebtSummary(operatorCtx(), "out-shifo")
	if err != nil {
		t.Fatalf("debt summary failed: %v", err)
	}

	if _, err := svc.SellProduct(operatorCtx(), domain.SaleRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-paratsetamol",
		Packages:  1,
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	after, err := svc.OutletDebtSummary(operatorCtx(), "out-shifo")
	if err != nil {
		t.Fatalf("debt summary failed: %v", err)
	}
	if after.RemainingDebt != before.RemainingDebt {
		t.Fatalf("sale changed debt: %d -> %d", before.RemainingDebt, after.RemainingDebt)
	}
}

func TestSellMoreThanRemainingFails(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-shprits-5ml", Units: 8},
	}, "")

	_, err := svc.SellProduct(operatorCtx(), domain.SaleRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-shprits-5ml",
		Units:     10,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestReturnProductCreditsDebtAndRestoresCentralStock(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 3},
	}, "")

	stockBefore, err := svc.GetProduct(adminCtx(), "prod-paratsetamol")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}

	resp, err := svc.ReturnProduct(adminCtx(), domain.ReturnRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-paratsetamol",
		Packages:  1,
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if resp.Qty != 10 {
		t.Fatalf("expected 10 units returned, got %d", resp.Qty)
	}
	if resp.CreditValue != 12000 {
		t.Fatalf("expected credit 12000, got %d", resp.CreditValue)
	}
	if resp.Outlet.RemainingDebt != 24000 {
		t.Fatalf("expected debt to drop to 24000, got %d", resp.Outlet.RemainingDebt)
	}

	stockAfter, err := svc.GetProduct(adminCtx(), "prod-paratsetamol")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if stockAfter.StockUnits != stockBefore.StockUnits+10 {
		t.Fatalf("expected central stock to recover 10 units, got %d -> %d", stockBefore.StockUnits, stockAfter.StockUnits)
	}
}

func TestReturnReducesOutletRemaining(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 3},
	}, "")

	if _, err := svc.ReturnProduct(adminCtx(), domain.ReturnRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-paratsetamol",
		Packages:  1,
	}); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	stock, err := svc.OutletStock(adminCtx(), "out-shifo")
	if err != nil {
		t.Fatalf("outlet stock failed: %v", err)
	}
	if len(stock.Products) != 1 {
		t.Fatalf("expected one product, got %d", len(stock.Products))
	}
	p := stock.Products[0]
	if p.Remaining != 20 {
		t.Fatalf("expected 20 units remaining on shelf after return, got %d", p.Remaining)
	}
	if p.Sold != 10 {
		t.Fatalf("expected returned units counted as consumed, got %d", p.Sold)
	}
}

func TestRecordDebtPaymentRejectsOverpayment(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-yunusobod", []domain.ReceiptItemRequest{
		{ProductID: "prod-analgin", Packages: 5},
	}, "")
	// 5 packages x 10 pills x 900 so'm.
	summary, err := svc.OutletDebtSummary(adminCtx(), "out-yunusobod")
	if err != nil {
		t.Fatalf("debt summary failed: %v", err)
	}
	if summary.RemainingDebt != 45000 {
		t.Fatalf("expected debt 45000, got %d", summary.RemainingDebt)
	}

	_, err = svc.RecordDebtPayment(adminCtx(), domain.PaymentRequest{
		OutletID: "out-yunusobod",
		Amount:   46000,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for overpayment, got %v", err)
	}

	resp, err := svc.RecordDebtPayment(adminCtx(), domain.PaymentRequest{
		OutletID: "out-yunusobod",
		Amount:   45000,
	})
	if err != nil {
		t.Fatalf("exact payment failed: %v", err)
	}
	if resp.Outlet.RemainingDebt != 0 {
		t.Fatalf("expected debt cleared, got %d", resp.Outlet.RemainingDebt)
	}
}

func TestDeleteReceiptOnlyWhenNothingConsumed(t *testing.T) {
	svc := newTestService()

	resp := intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-ibuprofen", Packages: 2},
	}, "")

	if _, err := svc.SellProduct(operatorCtx(), domain.SaleRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-ibuprofen",
		Units:     1,
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if err := svc.DeleteReceipt(adminCtx(), resp.Receipt.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected delete of consumed receipt to fail, got %v", err)
	}

	fresh := intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-analgin", Packages: 1},
	}, "")
	if err := svc.DeleteReceipt(adminCtx(), fresh.Receipt.ID); err != nil {
		t.Fatalf("delete of untouched receipt failed: %v", err)
	}
	if _, err := svc.GetReceipt(adminCtx(), fresh.Receipt.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted receipt to be gone, got %v", err)
	}
}

func TestOutletStockExposesSoldDerivedFromTotals(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 3},
	}, "")
	if _, err := svc.SellProduct(operatorCtx(), domain.SaleRequest{
		OutletID:  "out-shifo",
		ProductID: "prod-paratsetamol",
		Units:     18,
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	stock, err := svc.OutletStock(operatorCtx(), "out-shifo")
	if err != nil {
		t.Fatalf("outlet stock failed: %v", err)
	}
	p := stock.Products[0]
	if p.TotalGiven != 30 || p.Remaining != 12 || p.Sold != 18 {
		t.Fatalf("unexpected stock figures: %+v", p)
	}
	if p.SoldValue != 21600 || p.RemainingValue != 14400 {
		t.Fatalf("unexpected stock values: %+v", p)
	}
}

func TestSendDebtReminderUsesOutletPhone(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 1},
	}, "")

	resp, err := svc.SendDebtReminder(adminCtx(), domain.SMSReminderRequest{OutletID: "out-shifo"})
	if err != nil {
		t.Fatalf("reminder failed: %v", err)
	}
	if resp.Phone != "+998901234567" {
		t.Fatalf("expected normalized phone, got %s", resp.Phone)
	}
	if resp.Message == "" {
		t.Fatalf("expected default reminder message")
	}

	notifications, err := svc.ListNotifications(adminCtx(), 10)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	found := false
	for _, n := range notifications {
		if n.Kind == domain.NotificationReminder && n.OutletID == "out-shifo" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reminder notification to be recorded")
	}
}

func TestSendDebtReminderRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.SendDebtReminder(operatorCtx(), domain.SMSReminderRequest{OutletID: "out-shifo"})
	if err == nil {
		t.Fatalf("expected operator reminder to be rejected")
	}
}

func TestCreateOutletNormalizesPhone(t *testing.T) {
	svc := newTestService()

	outlet, err := svc.CreateOutlet(adminCtx(), domain.OutletKindPharmacy, domain.OutletCreateRequest{
		Name:  "Salomatlik dorixonasi",
		Phone: "90 777 66 55",
	})
	if err != nil {
		t.Fatalf("create outlet failed: %v", err)
	}
	if outlet.Phone != "+998907776655" {
		t.Fatalf("expected E.164 phone, got %s", outlet.Phone)
	}
}

func TestMutationsWriteAuditLog(t *testing.T) {
	svc := newTestService()

	intake(t, svc, "out-shifo", []domain.ReceiptItemRequest{
		{ProductID: "prod-paratsetamol", Packages: 1},
	}, "")

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected audit log entries after intake")
	}
	if logs[0].ActorUsername != "admin" {
		t.Fatalf("expected admin actor on audit entry, got %s", logs[0].ActorUsername)
	}

	today, err := svc.ListAuditLogs(adminCtx(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list audit logs by day failed: %v", err)
	}
	if len(today) != len(logs) {
		t.Fatalf("expected today's filter to keep all %d entries, got %d", len(logs), len(today))
	}

	yesterday, err := svc.ListAuditLogs(adminCtx(), time.Now().UTC().AddDate(0, 0, -1), 10)
	if err != nil {
		t.Fatalf("list audit logs by day failed: %v", err)
	}
	if len(yesterday) != 0 {
		t.Fatalf("expected no entries for yesterday, got %d", len(yesterday))
	}
}
