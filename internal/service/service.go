package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dorixona/backend/internal/cache"
	"dorixona/backend/internal/domain"
	"dorixona/backend/internal/reconcile"
	"dorixona/backend/internal/sms"
	"dorixona/backend/internal/store"
	"dorixona/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	debtCache   cache.DebtSummaryCache
	smsSender   sms.Sender
	cacheTTL    time.Duration
	phoneRegion string
}

func New(repo store.Repository, debtCache cache.DebtSummaryCache, smsSender sms.Sender, cacheTTL time.Duration, phoneRegion string) *Service {
	if debtCache == nil {
		debtCache = cache.NoopDebtSummaryCache{}
	}
	if smsSender == nil {
		smsSender = sms.LogSender{}
	}
	if cacheTTL < time.Second {
		cacheTTL = 30 * time.Second
	}
	if phoneRegion == "" {
		phoneRegion = "UZ"
	}

	return &Service{
		repo:        repo,
		debtCache:   debtCache,
		smsSender:   smsSender,
		cacheTTL:    cacheTTL,
		phoneRegion: phoneRegion,
	}
}

func (s *Service) ListProducts(ctx context.Context, includeArchived bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeArchived)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Dosage = strings.TrimSpace(req.Dosage)
	req.Manufacturer = strings.TrimSpace(req.Manufacturer)
	req.UnitKind = strings.ToLower(strings.TrimSpace(req.UnitKind))

	if req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.UnitKind != domain.UnitKindPachka && req.UnitKind != domain.UnitKindDona {
		return domain.Product{}, store.ErrValidation
	}
	if req.SellingPrice < 1 || req.PurchasePrice < 0 {
		return domain.Product{}, store.ErrValidation
	}
	if req.InitialPackages < 0 || req.InitialUnits < 0 {
		return domain.Product{}, store.ErrValidation
	}

	pills := req.PillsPerPackage
	if req.UnitKind == domain.UnitKindDona {
		pills = 1
	}
	if pills < 1 {
		pills = 1
	}

	product := domain.Product{
		Name:            req.Name,
		Dosage:          req.Dosage,
		Manufacturer:    req.Manufacturer,
		UnitKind:        req.UnitKind,
		PillsPerPackage: pills,
		SellingPrice:    req.SellingPrice,
		PurchasePrice:   req.PurchasePrice,
		StockUnits:      reconcile.ToUnits(req.InitialPackages, pills) + req.InitialUnits,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.SellingPrice, created.StockUnits))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Dosage != nil {
		updated.Dosage = strings.TrimSpace(*req.Dosage)
	}
	if req.Manufacturer != nil {
		updated.Manufacturer = strings.TrimSpace(*req.Manufacturer)
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.PurchasePrice != nil {
		if *req.PurchasePrice < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PurchasePrice = *req.PurchasePrice
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%d", saved.Name, saved.SellingPrice))
	return saved, nil
}

func (s *Service) ArchiveProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrValidation
	}
	if err := s.repo.ArchiveProduct(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "product_archive", "product", id, "")
	return nil
}

func (s *Service) TopUpProductStock(ctx context.Context, id string, req domain.StockTopUpRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.Packages < 0 || req.Units < 0 {
		return domain.Product{}, store.ErrValidation
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	units := reconcile.ToUnits(req.Packages, product.PillsPerPackage) + req.Units
	if units < 1 {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.TopUpProductStock(ctx, id, units)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_stock_topup", "product", id, fmt.Sprintf("units=%d,total=%d", units, updated.StockUnits))
	return updated, nil
}

func (s *Service) ListOutlets(ctx context.Context, kind string) ([]domain.Outlet, error) {
	return s.repo.ListOutlets(ctx, kind)
}

func (s *Service) GetOutlet(ctx context.Context, id string) (domain.Outlet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Outlet{}, store.ErrValidation
	}
	return s.repo.GetOutlet(ctx, id)
}

func (s *Service) CreateOutlet(ctx context.Context, kind string, req domain.OutletCreateRequest) (domain.Outlet, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Outlet{}, fmt.Errorf("admin role required")
	}
	if kind != domain.OutletKindPharmacy && kind != domain.OutletKindPolyclinic {
		return domain.Outlet{}, store.ErrValidation
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Outlet{}, store.ErrValidation
	}

	phone := strings.TrimSpace(req.Phone)
	if phone != "" {
		normalized, err := sms.NormalizePhone(phone, s.phoneRegion)
		if err != nil {
			return domain.Outlet{}, fmt.Errorf("phone: %w", store.ErrValidation)
		}
		phone = normalized
	}

	outlet := domain.Outlet{
		Kind:    kind,
		Name:    req.Name,
		Address: strings.TrimSpace(req.Address),
		Phone:   phone,
		Manager: strings.TrimSpace(req.Manager),
		Region:  strings.TrimSpace(req.Region),
	}

	created, err := s.repo.CreateOutlet(ctx, outlet)
	if err != nil {
		return domain.Outlet{}, err
	}

	s.logAudit(ctx, "outlet_create", kind, created.ID, fmt.Sprintf("name=%s", created.Name))
	return created, nil
}

func (s *Service) UpdateOutlet(ctx context.Context, id string, req domain.OutletUpdateRequest) (domain.Outlet, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Outlet{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Outlet{}, store.ErrValidation
	}

	existing, err := s.repo.GetOutlet(ctx, id)
	if err != nil {
		return domain.Outlet{}, err
	}

	updated := existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Outlet{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone != "" {
			normalized, err := sms.NormalizePhone(phone, s.phoneRegion)
			if err != nil {
				return domain.Outlet{}, fmt.Errorf("phone: %w", store.ErrValidation)
			}
			phone = normalized
		}
		updated.Phone = phone
	}
	if req.Manager != nil {
		updated.Manager = strings.TrimSpace(*req.Manager)
	}
	if req.Region != nil {
		updated.Region = strings.TrimSpace(*req.Region)
	}

	saved, err := s.repo.UpdateOutlet(ctx, updated)
	if err != nil {
		return domain.Outlet{}, err
	}

	s.logAudit(ctx, "outlet_update", saved.Kind, saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return saved, nil
}

func (s *Service) CreateReceipt(ctx context.Context, req domain.ReceiptCreateRequest) (domain.ReceiptResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ReceiptResponse{}, fmt.Errorf("admin role required")
	}

	req.OutletID = strings.TrimSpace(req.OutletID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.OutletID == "" || len(req.Items) == 0 {
		return domain.ReceiptResponse{}, store.ErrValidation
	}

	lines := make([]domain.ReceiptLine, 0, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Packages < 0 || item.Units < 0 {
			return domain.ReceiptResponse{}, store.ErrValidation
		}

		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return domain.ReceiptResponse{}, err
		}
		if product.Archived {
			return domain.ReceiptResponse{}, fmt.Errorf("product %s is archived: %w", productID, store.ErrValidation)
		}

		qty := reconcile.ToUnits(item.Packages, product.PillsPerPackage) + item.Units
		if qty < 1 {
			return domain.ReceiptResponse{}, store.ErrValidation
		}

		lines = append(lines, domain.ReceiptLine{
			ProductID:  productID,
			UnitPrice:  product.SellingPrice,
			TotalGiven: qty,
		})
	}

	receipt := domain.Receipt{
		OutletID:       req.OutletID,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          lines,
	}

	created, duplicate, err := s.repo.CreateReceipt(ctx, receipt)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	outlet, err := s.repo.GetOutlet(ctx, created.OutletID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	if !duplicate {
		s.invalidateDebtCache(ctx, created.OutletID)
		s.notify(ctx, domain.NotificationIntake, created.OutletID,
			fmt.Sprintf("%s: yangi kirim %d so'm (%d pozitsiya)", outlet.Name, created.TotalPrice, len(created.Lines)))
		s.logAudit(ctx, "receipt_create", "receipt", created.ID, fmt.Sprintf("outlet=%s,total=%d", created.OutletID, created.TotalPrice))
	}

	return domain.ReceiptResponse{Receipt: created, Outlet: outlet, Duplicate: duplicate}, nil
}

func (s *Service) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Receipt{}, store.ErrValidation
	}
	return s.repo.GetReceipt(ctx, id)
}

func (s *Service) ListReceiptsByOutlet(ctx context.Context, outletID string) ([]domain.Receipt, error) {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		return nil, store.ErrValidation
	}
	return s.repo.ListReceiptsByOutlet(ctx, outletID)
}

func (s *Service) DeleteReceipt(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrValidation
	}

	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteReceipt(ctx, id); err != nil {
		return err
	}

	s.invalidateDebtCache(ctx, receipt.OutletID)
	s.logAudit(ctx, "receipt_delete", "receipt", id, fmt.Sprintf("outlet=%s,total=%d", receipt.OutletID, receipt.TotalPrice))
	return nil
}

func (s *Service) SellProduct(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	req.OutletID = strings.TrimSpace(req.OutletID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.OutletID == "" || req.ProductID == "" {
		return domain.SaleResponse{}, store.ErrValidation
	}
	if req.Packages < 0 || req.Units < 0 {
		return domain.SaleResponse{}, store.ErrValidation
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	qty := reconcile.ToUnits(req.Packages, product.PillsPerPackage) + req.Units
	resp, err := s.repo.SellProduct(ctx, req.OutletID, req.ProductID, qty)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.notify(ctx, domain.NotificationSale, req.OutletID,
		fmt.Sprintf("%s: %d dona sotildi (%d so'm)", product.Name, resp.Qty, resp.SoldValue))
	s.logAudit(ctx, "product_sell", "outlet", req.OutletID, fmt.Sprintf("product=%s,qty=%d,value=%d", req.ProductID, resp.Qty, resp.SoldValue))
	return resp, nil
}

func (s *Service) ReturnProduct(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	req.OutletID = strings.TrimSpace(req.OutletID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.OutletID == "" || req.ProductID == "" {
		return domain.ReturnResponse{}, store.ErrValidation
	}
	if req.Packages < 0 || req.Units < 0 {
		return domain.ReturnResponse{}, store.ErrValidation
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	qty := reconcile.ToUnits(req.Packages, product.PillsPerPackage) + req.Units
	resp, err := s.repo.ReturnProduct(ctx, req.OutletID, req.ProductID, qty)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.invalidateDebtCache(ctx, req.OutletID)
	s.notify(ctx, domain.NotificationReturn, req.OutletID,
		fmt.Sprintf("%s: %d dona qaytarildi (%d so'm)", product.Name, resp.Qty, resp.CreditValue))
	s.logAudit(ctx, "product_return", "outlet", req.OutletID, fmt.Sprintf("product=%s,qty=%d,credit=%d", req.ProductID, resp.Qty, resp.CreditValue))
	return resp, nil
}

func (s *Service) RecordDebtPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	req.OutletID = strings.TrimSpace(req.OutletID)
	if req.OutletID == "" {
		return domain.PaymentResponse{}, store.ErrValidation
	}

	resp, err := s.repo.RecordDebtPayment(ctx, req.OutletID, req.Amount)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.invalidateDebtCache(ctx, req.OutletID)
	s.notify(ctx, domain.NotificationPayment, req.OutletID,
		fmt.Sprintf("%s: %d so'm to'lov qabul qilindi", resp.Outlet.Name, resp.Payment.Amount))
	s.logAudit(ctx, "debt_payment", "outlet", req.OutletID, fmt.Sprintf("amount=%d,remaining=%d", resp.Payment.Amount, resp.Outlet.RemainingDebt))
	return resp, nil
}

func (s *Service) ListDebtPayments(ctx context.Context, outletID string) ([]domain.DebtPayment, error) {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		return nil, store.ErrValidation
	}
	return s.repo.ListDebtPayments(ctx, outletID)
}

func (s *Service) OutletStock(ctx context.Context, outletID string) (domain.OutletStockResponse, error) {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		return domain.OutletStockResponse{}, store.ErrValidation
	}

	products, err := s.repo.OutletStock(ctx, outletID)
	if err != nil {
		return domain.OutletStockResponse{}, err
	}
	for _, p := range products {
		if p.Remaining > p.TotalGiven {
			log.Printf("[service] WARN: outlet %s product %s remaining %d exceeds given %d", outletID, p.ProductID, p.Remaining, p.TotalGiven)
		}
	}

	return domain.OutletStockResponse{OutletID: outletID, Products: products}, nil
}

func (s *Service) OutletDebtSummary(ctx context.Context, outletID string) (domain.DebtSummary, error) {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		return domain.DebtSummary{}, store.ErrValidation
	}

	cacheKey := debtCacheKey(outletID)
	if cached, ok, err := s.debtCache.Get(ctx, cacheKey); err != nil {
		log.Printf("[service] WARN: debt cache read failed outlet=%s: %v", outletID, err)
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.DebtSummary(ctx, outletID)
	if err != nil {
		return domain.DebtSummary{}, err
	}

	if err := s.debtCache.Set(ctx, cacheKey, &summary, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: debt cache write failed outlet=%s: %v", outletID, err)
	}
	return summary, nil
}

func (s *Service) SendDebtReminder(ctx context.Context, req domain.SMSReminderRequest) (domain.SMSReminderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SMSReminderResponse{}, fmt.Errorf("admin role required")
	}

	req.OutletID = strings.TrimSpace(req.OutletID)
	if req.OutletID == "" {
		return domain.SMSReminderResponse{}, store.ErrValidation
	}

	outlet, err := s.repo.GetOutlet(ctx, req.OutletID)
	if err != nil {
		return domain.SMSReminderResponse{}, err
	}
	if outlet.Phone == "" {
		return domain.SMSReminderResponse{}, fmt.Errorf("outlet has no phone: %w", store.ErrValidation)
	}

	phone, err := sms.NormalizePhone(outlet.Phone, s.phoneRegion)
	if err != nil {
		return domain.SMSReminderResponse{}, fmt.Errorf("outlet phone: %w", store.ErrValidation)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = fmt.Sprintf("Hurmatli %s, sizning qarzingiz %d so'm. Iltimos, to'lovni amalga oshiring.", outlet.Name, outlet.RemainingDebt)
	}

	if err := s.smsSender.Send(ctx, phone, message); err != nil {
		return domain.SMSReminderResponse{}, fmt.Errorf("sms delivery failed: %w", err)
	}

	sentAt := time.Now().UTC()
	s.notify(ctx, domain.NotificationReminder, outlet.ID,
		fmt.Sprintf("%s: qarz eslatmasi yuborildi (%s)", outlet.Name, phone))
	s.logAudit(ctx, "sms_reminder", "outlet", outlet.ID, fmt.Sprintf("phone=%s", phone))

	return domain.SMSReminderResponse{
		OutletID: outlet.ID,
		Phone:    phone,
		Message:  message,
		SentAt:   sentAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListNotifications(ctx, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, day time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, day, limit)
}

func debtCacheKey(outletID string) string {
	return "debt-summary:" + outletID
}

func (s *Service) invalidateDebtCache(ctx context.Context, outletID string) {
	if err := s.debtCache.Delete(ctx, debtCacheKey(outletID)); err != nil {
		log.Printf("[service] WARN: debt cache invalidation failed outlet=%s: %v", outletID, err)
	}
}

func (s *Service) notify(ctx context.Context, kind, outletID, message string) {
	if err := s.repo.CreateNotification(ctx, domain.Notification{
		ID:        xid.New("ntf"),
		Kind:      kind,
		OutletID:  outletID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to record notification kind=%s outlet=%s: %v", kind, outletID, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to record audit log action=%s: %v", action, err)
	}
}
