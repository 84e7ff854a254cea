package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dorixona/backend/internal/domain"
	"dorixona/backend/internal/reconcile"
	"dorixona/backend/internal/store"
	"dorixona/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	outlets         map[string]domain.Outlet
	receiptsByID    map[string]*domain.Receipt
	receiptsByIdem  map[string]string
	debtOwed        map[string]int64
	payments        map[string][]domain.DebtPayment
	notifications   []domain.Notification
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD. If
// unset, hardcoded dev defaults are used with a warning printed to stdout.
// These credentials are never used in production (the backend uses PostgreSQL
// when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"operator", operatorPwd, "operator"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-paratsetamol", Name: "Paratsetamol 500mg", Dosage: "500mg", Manufacturer: "Jurabek Laboratories", UnitKind: domain.UnitKindPachka, PillsPerPackage: 10, SellingPrice: 1200, PurchasePrice: 800, StockUnits: 600},
		{ID: "prod-analgin", Name: "Analgin 500mg", Dosage: "500mg", Manufacturer: "Uzkimyofarm", UnitKind: domain.UnitKindPachka, PillsPerPackage: 10, SellingPrice: 900, PurchasePrice: 550, StockUnits: 400},
		{ID: "prod-ibuprofen", Name: "Ibuprofen 200mg", Dosage: "200mg", Manufacturer: "Nobel Pharmsanoat", UnitKind: domain.UnitKindPachka, PillsPerPackage: 20, SellingPrice: 1500, PurchasePrice: 1000, StockUnits: 800},
		{ID: "prod-shprits-5ml", Name: "Shprits 5ml", Dosage: "5ml", Manufacturer: "Asia Trade Pharm", UnitKind: domain.UnitKindDona, PillsPerPackage: 1, SellingPrice: 1800, PurchasePrice: 1100, StockUnits: 500},
		{ID: "prod-bint-steril", Name: "Bint steril 5x10", Dosage: "5m x 10cm", Manufacturer: "Lola Farm", UnitKind: domain.UnitKindDona, PillsPerPackage: 1, SellingPrice: 4500, PurchasePrice: 3000, StockUnits: 250},
	}

	outlets := []domain.Outlet{
		{ID: "out-shifo", Kind: domain.OutletKindPharmacy, Name: "Shifo dorixonasi", Address: "Chilonzor 9-kvartal, Toshkent", Phone: "+998901234567", Manager: "Dilshod Karimov", Region: "Toshkent", CreatedAt: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)},
		{ID: "out-yunusobod", Kind: domain.OutletKindPolyclinic, Name: "Yunusobod 7-poliklinika", Address: "Yunusobod tumani, Toshkent", Phone: "+998935557788", Manager: "Nilufar Rashidova", Region: "Toshkent", CreatedAt: time.Date(2025, 1, 12, 10, 30, 0, 0, time.UTC)},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	outletMap := make(map[string]domain.Outlet, len(outlets))
	for _, o := range outlets {
		outletMap[o.ID] = o
	}

	return &Store{
		products:        productMap,
		outlets:         outletMap,
		receiptsByID:    make(map[string]*domain.Receipt),
		receiptsByIdem:  make(map[string]string),
		debtOwed:        make(map[string]int64),
		payments:        make(map[string][]domain.DebtPayment),
		notifications:   make([]domain.Notification, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, includeArchived bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Archived && !includeArchived {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return domain.Product{}, store.ErrNotFound
	}
	return product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.UnitKind == "" || product.SellingPrice < 1 {
		return domain.Product{}, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return domain.Product{}, store.ErrValidation
	}
	if product.PillsPerPackage < 1 {
		product.PillsPerPackage = 1
	}

	s.products[product.ID] = product
	return product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SellingPrice < 1 {
		return domain.Product{}, store.ErrValidation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return domain.Product{}, store.ErrNotFound
	}
	product.StockUnits = existing.StockUnits
	product.Archived = existing.Archived
	s.products[product.ID] = product
	return product, nil
}

func (s *Store) ArchiveProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	product.Archived = true
	s.products[id] = product
	return nil
}

func (s *Store) TopUpProductStock(_ context.Context, id string, units int) (domain.Product, error) {
	if units < 1 {
		return domain.Product{}, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return domain.Product{}, store.ErrNotFound
	}
	product.StockUnits += units
	s.products[id] = product
	return product, nil
}

func (s *Store) ListOutlets(_ context.Context, kind string) ([]domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outlets := make([]domain.Outlet, 0, len(s.outlets))
	for _, o := range s.outlets {
		if kind != "" && o.Kind != kind {
			continue
		}
		outlets = append(outlets, s.fillDebt(o))
	}
	slices.SortFunc(outlets, func(a, b domain.Outlet) int {
		return cmpString(a.Name, b.Name)
	})
	return outlets, nil
}

func (s *Store) GetOutlet(_ context.Context, id string) (domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outlet, exists := s.outlets[id]
	if !exists {
		return domain.Outlet{}, store.ErrNotFound
	}
	return s.fillDebt(outlet), nil
}

func (s *Store) CreateOutlet(_ context.Context, outlet domain.Outlet) (domain.Outlet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outlet.Name == "" || outlet.Kind == "" {
		return domain.Outlet{}, store.ErrValidation
	}
	if outlet.ID == "" {
		outlet.ID = xid.New("out")
	}
	if _, exists := s.outlets[outlet.ID]; exists {
		return domain.Outlet{}, store.ErrValidation
	}
	if outlet.CreatedAt.IsZero() {
		outlet.CreatedAt = time.Now().UTC()
	}
	s.outlets[outlet.ID] = outlet
	return outlet, nil
}

func (s *Store) UpdateOutlet(_ context.Context, outlet domain.Outlet) (domain.Outlet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if outlet.Name == "" {
		return domain.Outlet{}, store.ErrValidation
	}
	existing, exists := s.outlets[outlet.ID]
	if !exists {
		return domain.Outlet{}, store.ErrNotFound
	}
	outlet.Kind = existing.Kind
	outlet.CreatedAt = existing.CreatedAt
	s.outlets[outlet.ID] = outlet
	return s.fillDebt(outlet), nil
}

func (s *Store) CreateReceipt(_ context.Context, receipt domain.Receipt) (domain.Receipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if receipt.OutletID == "" || len(receipt.Lines) == 0 {
		return domain.Receipt{}, false, store.ErrValidation
	}
	if _, exists := s.outlets[receipt.OutletID]; !exists {
		return domain.Receipt{}, false, store.ErrNotFound
	}
	if receipt.IdempotencyKey != "" {
		if existingID, ok := s.receiptsByIdem[receipt.IdempotencyKey]; ok {
			return cloneReceipt(s.receiptsByID[existingID]), true, nil
		}
	}

	// Verify central stock before applying anything: intake is all or
	// nothing. Requirements are summed per product so several lines of the
	// same product cannot each pass against the undecremented stock.
	required := make(map[string]int, len(receipt.Lines))
	for _, line := range receipt.Lines {
		if _, exists := s.products[line.ProductID]; !exists {
			return domain.Receipt{}, false, store.ErrNotFound
		}
		if line.TotalGiven < 1 || line.UnitPrice < 1 {
			return domain.Receipt{}, false, store.ErrValidation
		}
		required[line.ProductID] += line.TotalGiven
	}
	for productID, units := range required {
		if s.products[productID].StockUnits < units {
			return domain.Receipt{}, false, fmt.Errorf("product %s: %w", productID, store.ErrInsufficientStock)
		}
	}

	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}

	var total int64
	for i := range receipt.Lines {
		line := &receipt.Lines[i]
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		line.ReceiptID = receipt.ID
		line.Remaining = line.TotalGiven
		total += line.UnitPrice * int64(line.TotalGiven)

		product := s.products[line.ProductID]
		product.StockUnits -= line.TotalGiven
		s.products[line.ProductID] = product
	}
	receipt.TotalPrice = total

	stored := receipt
	s.receiptsByID[receipt.ID] = &stored
	if receipt.IdempotencyKey != "" {
		s.receiptsByIdem[receipt.IdempotencyKey] = receipt.ID
	}
	s.debtOwed[receipt.OutletID] += total
	return cloneReceipt(&stored), false, nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, exists := s.receiptsByID[id]
	if !exists {
		return domain.Receipt{}, store.ErrNotFound
	}
	return cloneReceipt(receipt), nil
}

func (s *Store) ListReceiptsByOutlet(_ context.Context, outletID string) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.Receipt, 0, 8)
	for _, r := range s.receiptsByID {
		if r.OutletID != outletID {
			continue
		}
		receipts = append(receipts, cloneReceipt(r))
	}
	slices.SortFunc(receipts, func(a, b domain.Receipt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return receipts, nil
}

func (s *Store) DeleteReceipt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, exists := s.receiptsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	for _, line := range receipt.Lines {
		if line.Remaining != line.TotalGiven {
			return fmt.Errorf("receipt %s has consumed lines: %w", id, store.ErrValidation)
		}
	}

	for _, line := range receipt.Lines {
		product, ok := s.products[line.ProductID]
		if ok {
			product.StockUnits += line.TotalGiven
			s.products[line.ProductID] = product
		}
	}
	s.debtOwed[receipt.OutletID] -= receipt.TotalPrice
	if s.debtOwed[receipt.OutletID] < 0 {
		s.debtOwed[receipt.OutletID] = 0
	}
	if receipt.IdempotencyKey != "" {
		delete(s.receiptsByIdem, receipt.IdempotencyKey)
	}
	delete(s.receiptsByID, id)
	return nil
}

// openLines collects still-stocked receipt lines for one outlet/product pair.
// Callers must hold the lock.
func (s *Store) openLines(outletID, productID string) []reconcile.ReturnLine {
	lines := make([]reconcile.ReturnLine, 0, 8)
	for _, r := range s.receiptsByID {
		if r.OutletID != outletID {
			continue
		}
		for _, line := range r.Lines {
			if line.ProductID != productID || line.Remaining < 1 {
				continue
			}
			lines = append(lines, reconcile.ReturnLine{
				LineID:    line.ID,
				ReceiptID: r.ID,
				CreatedAt: r.CreatedAt,
				Remaining: line.Remaining,
				UnitPrice: line.UnitPrice,
			})
		}
	}
	return lines
}

// applyPlan decrements line remainders according to an allocation plan.
// Callers must hold the lock.
func (s *Store) applyPlan(plan reconcile.Plan) {
	for _, alloc := range plan.Allocations {
		receipt := s.receiptsByID[alloc.ReceiptID]
		if receipt == nil {
			continue
		}
		for i := range receipt.Lines {
			if receipt.Lines[i].ID == alloc.LineID {
				receipt.Lines[i].Remaining -= alloc.Qty
				break
			}
		}
	}
}

func (s *Store) SellProduct(_ context.Context, outletID, productID string, qty int) (domain.SaleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.outlets[outletID]; !exists {
		return domain.SaleResponse{}, store.ErrNotFound
	}
	if _, exists := s.products[productID]; !exists {
		return domain.SaleResponse{}, store.ErrNotFound
	}

	plan, err := reconcile.PlanReturn(qty, s.openLines(outletID, productID))
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.applyPlan(plan)

	return domain.SaleResponse{
		OutletID:    outletID,
		ProductID:   productID,
		Qty:         plan.Qty,
		SoldValue:   plan.Value,
		Allocations: toDomainAllocations(plan.Allocations),
	}, nil
}

func (s *Store) ReturnProduct(_ context.Context, outletID, productID string, qty int) (domain.ReturnResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outlet, exists := s.outlets[outletID]
	if !exists {
		return domain.ReturnResponse{}, store.ErrNotFound
	}
	product, exists := s.products[productID]
	if !exists {
		return domain.ReturnResponse{}, store.ErrNotFound
	}

	plan, err := reconcile.PlanReturn(qty, s.openLines(outletID, productID))
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	s.applyPlan(plan)

	product.StockUnits += plan.Qty
	s.products[productID] = product
	s.debtOwed[outletID] = reconcile.RemainingDebt(s.debtOwed[outletID], plan.Value)

	return domain.ReturnResponse{
		OutletID:    outletID,
		ProductID:   productID,
		Qty:         plan.Qty,
		CreditValue: plan.Value,
		Allocations: toDomainAllocations(plan.Allocations),
		Outlet:      s.fillDebt(outlet),
	}, nil
}

func (s *Store) RecordDebtPayment(_ context.Context, outletID string, amount int64) (domain.PaymentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outlet, exists := s.outlets[outletID]
	if !exists {
		return domain.PaymentResponse{}, store.ErrNotFound
	}

	remaining := reconcile.RemainingDebt(s.debtOwed[outletID], s.paidTotal(outletID))
	amount, err := reconcile.ClampPayment(amount, remaining)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	payment := domain.DebtPayment{
		ID:        xid.New("pay"),
		OutletID:  outletID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	s.payments[outletID] = append(s.payments[outletID], payment)

	return domain.PaymentResponse{
		Payment: payment,
		Outlet:  s.fillDebt(outlet),
	}, nil
}

func (s *Store) ListDebtPayments(_ context.Context, outletID string) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.payments[outletID]
	result := make([]domain.DebtPayment, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.DebtPayment) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) DebtSummary(_ context.Context, outletID string) (domain.DebtSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.outlets[outletID]; !exists {
		return domain.DebtSummary{}, store.ErrNotFound
	}
	owed := s.debtOwed[outletID]
	paid := s.paidTotal(outletID)
	return domain.DebtSummary{
		OutletID:      outletID,
		TotalOwed:     owed,
		TotalPaid:     paid,
		RemainingDebt: reconcile.RemainingDebt(owed, paid),
	}, nil
}

func (s *Store) OutletStock(_ context.Context, outletID string) ([]domain.ProductStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.outlets[outletID]; !exists {
		return nil, store.ErrNotFound
	}

	type group struct {
		items     []reconcile.LineItem
		unitPrice int64
		latest    time.Time
	}
	groups := make(map[string]*group)
	for _, r := range s.receiptsByID {
		if r.OutletID != outletID {
			continue
		}
		for _, line := range r.Lines {
			g := groups[line.ProductID]
			if g == nil {
				g = &group{}
				groups[line.ProductID] = g
			}
			g.items = append(g.items, reconcile.LineItem{
				TotalGiven: line.TotalGiven,
				Remaining:  line.Remaining,
				UnitPrice:  line.UnitPrice,
			})
			if !r.CreatedAt.Before(g.latest) {
				g.latest = r.CreatedAt
				g.unitPrice = line.UnitPrice
			}
		}
	}

	result := make([]domain.ProductStock, 0, len(groups))
	for productID, g := range groups {
		summary := reconcile.Summarize(g.items)
		name := ""
		if p, ok := s.products[productID]; ok {
			name = p.Name
		}
		result = append(result, domain.ProductStock{
			ProductID:      productID,
			ProductName:    name,
			UnitPrice:      g.unitPrice,
			TotalGiven:     summary.TotalGiven,
			Remaining:      summary.Remaining,
			Sold:           summary.Sold,
			SoldValue:      summary.SoldValue,
			RemainingValue: summary.RemainingValue,
		})
	}
	slices.SortFunc(result, func(a, b domain.ProductStock) int {
		return cmpString(a.ProductName, b.ProductName)
	})
	return result, nil
}

func (s *Store) CreateNotification(_ context.Context, notification domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification.ID == "" {
		notification.ID = xid.New("ntf")
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Notification, len(s.notifications))
	copy(result, s.notifications)
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, day time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if !day.IsZero() {
			y, m, d := entry.CreatedAt.UTC().Date()
			dy, dm, dd := day.UTC().Date()
			if y != dy || m != dm || d != dd {
				continue
			}
		}
		result = append(result, entry)
	}
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetUser(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(username)]
	if !exists {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(user.Username)
	if username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[strings.ToLower(username)]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = passwordHash
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) SetUserActive(_ context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[strings.ToLower(username)]
	if !exists {
		return store.ErrNotFound
	}
	user.Active = active
	s.usersByUsername[user.Username] = user
	return nil
}

// fillDebt stamps the derived remaining debt onto an outlet copy. Callers
// must hold at least the read lock.
func (s *Store) fillDebt(outlet domain.Outlet) domain.Outlet {
	outlet.RemainingDebt = reconcile.RemainingDebt(s.debtOwed[outlet.ID], s.paidTotal(outlet.ID))
	return outlet
}

func (s *Store) paidTotal(outletID string) int64 {
	var paid int64
	for _, p := range s.payments[outletID] {
		paid += p.Amount
	}
	return paid
}

func cloneReceipt(receipt *domain.Receipt) domain.Receipt {
	clone := *receipt
	clone.Lines = make([]domain.ReceiptLine, len(receipt.Lines))
	copy(clone.Lines, receipt.Lines)
	return clone
}

func toDomainAllocations(allocations []reconcile.Allocation) []domain.SaleAllocation {
	result := make([]domain.SaleAllocation, 0, len(allocations))
	for _, a := range allocations {
		result = append(result, domain.SaleAllocation{
			ReceiptID: a.ReceiptID,
			LineID:    a.LineID,
			Qty:       a.Qty,
			Value:     a.Value,
		})
	}
	return result
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
