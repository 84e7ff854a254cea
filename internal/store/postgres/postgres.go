package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dorixona/backend/internal/domain"
	"dorixona/backend/internal/reconcile"
	"dorixona/backend/internal/store"
	"dorixona/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, includeArchived bool) ([]domain.Product, error) {
	query := `
		SELECT id, name, dosage, manufacturer, unit_kind, pills_per_package,
		       selling_price, purchase_price, stock_units, archived
		FROM products
		WHERE archived = false
		ORDER BY name`
	if includeArchived {
		query = `
		SELECT id, name, dosage, manufacturer, unit_kind, pills_per_package,
		       selling_price, purchase_price, stock_units, archived
		FROM products
		ORDER BY name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Dosage, &p.Manufacturer, &p.UnitKind,
			&p.PillsPerPackage, &p.SellingPrice, &p.PurchasePrice, &p.StockUnits, &p.Archived); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, dosage, manufacturer, unit_kind, pills_per_package,
		       selling_price, purchase_price, stock_units, archived
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Dosage, &p.Manufacturer, &p.UnitKind,
		&p.PillsPerPackage, &p.SellingPrice, &p.PurchasePrice, &p.StockUnits, &p.Archived)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, store.ErrNotFound
		}
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.Name == "" || product.UnitKind == "" || product.SellingPrice < 1 {
		return domain.Product{}, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.PillsPerPackage < 1 {
		product.PillsPerPackage = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, dosage, manufacturer, unit_kind, pills_per_package,
		                      selling_price, purchase_price, stock_units, archived, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,now(),now())
	`, product.ID, product.Name, product.Dosage, product.Manufacturer, product.UnitKind,
		product.PillsPerPackage, product.SellingPrice, product.PurchasePrice, product.StockUnits)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, store.ErrValidation
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.Name == "" || product.SellingPrice < 1 {
		return domain.Product{}, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, dosage = $3, manufacturer = $4, selling_price = $5,
		    purchase_price = $6, updated_at = now()
		WHERE id = $1
		RETURNING stock_units, archived, unit_kind, pills_per_package
	`, product.ID, product.Name, product.Dosage, product.Manufacturer,
		product.SellingPrice, product.PurchasePrice).
		Scan(&product.StockUnits, &product.Archived, &product.UnitKind, &product.PillsPerPackage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, store.ErrNotFound
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Store) ArchiveProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET archived = true, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) TopUpProductStock(ctx context.Context, id string, units int) (domain.Product, error) {
	if units < 1 {
		return domain.Product{}, store.ErrValidation
	}

	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_units = stock_units + $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, dosage, manufacturer, unit_kind, pills_per_package,
		          selling_price, purchase_price, stock_units, archived
	`, id, units).Scan(&p.ID, &p.Name, &p.Dosage, &p.Manufacturer, &p.UnitKind,
		&p.PillsPerPackage, &p.SellingPrice, &p.PurchasePrice, &p.StockUnits, &p.Archived)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, store.ErrNotFound
		}
		return domain.Product{}, err
	}
	return p, nil
}

const outletColumns = `
	o.id, o.kind, o.name, o.address, o.phone, o.manager, o.region, o.created_at,
	GREATEST(o.debt_owed - COALESCE((SELECT SUM(p.amount) FROM debt_payments p WHERE p.outlet_id = o.id), 0), 0)`

func scanOutlet(row interface{ Scan(...any) error }) (domain.Outlet, error) {
	var o domain.Outlet
	err := row.Scan(&o.ID, &o.Kind, &o.Name, &o.Address, &o.Phone, &o.Manager, &o.Region,
		&o.CreatedAt, &o.RemainingDebt)
	if err != nil {
		return domain.Outlet{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func (s *Store) ListOutlets(ctx context.Context, kind string) ([]domain.Outlet, error) {
	query := `SELECT ` + outletColumns + ` FROM outlets o ORDER BY o.name`
	args := []any{}
	if kind != "" {
		query = `SELECT ` + outletColumns + ` FROM outlets o WHERE o.kind = $1 ORDER BY o.name`
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outlets := make([]domain.Outlet, 0, 32)
	for rows.Next() {
		o, err := scanOutlet(rows)
		if err != nil {
			return nil, err
		}
		outlets = append(outlets, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outlets, nil
}

func (s *Store) GetOutlet(ctx context.Context, id string) (domain.Outlet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outletColumns+` FROM outlets o WHERE o.id = $1`, id)
	outlet, err := scanOutlet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Outlet{}, store.ErrNotFound
		}
		return domain.Outlet{}, err
	}
	return outlet, nil
}

func (s *Store) CreateOutlet(ctx context.Context, outlet domain.Outlet) (domain.Outlet, error) {
	if outlet.Name == "" || outlet.Kind == "" {
		return domain.Outlet{}, store.ErrValidation
	}
	if outlet.ID == "" {
		outlet.ID = xid.New("out")
	}
	if outlet.CreatedAt.IsZero() {
		outlet.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outlets (id, kind, name, address, phone, manager, region, debt_owed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)
	`, outlet.ID, outlet.Kind, outlet.Name, outlet.Address, outlet.Phone, outlet.Manager,
		outlet.Region, outlet.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Outlet{}, store.ErrValidation
		}
		return domain.Outlet{}, err
	}
	return outlet, nil
}

func (s *Store) UpdateOutlet(ctx context.Context, outlet domain.Outlet) (domain.Outlet, error) {
	if outlet.Name == "" {
		return domain.Outlet{}, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE outlets
		SET name = $2, address = $3, phone = $4, manager = $5, region = $6
		WHERE id = $1
	`, outlet.ID, outlet.Name, outlet.Address, outlet.Phone, outlet.Manager, outlet.Region)
	if err != nil {
		return domain.Outlet{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Outlet{}, err
	}
	if affected == 0 {
		return domain.Outlet{}, store.ErrNotFound
	}
	return s.GetOutlet(ctx, outlet.ID)
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (domain.Receipt, bool, error) {
	if receipt.OutletID == "" || len(receipt.Lines) == 0 {
		return domain.Receipt{}, false, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Receipt{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if receipt.IdempotencyKey != "" {
		var existingID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM receipts WHERE idempotency_key = $1
		`, receipt.IdempotencyKey).Scan(&existingID)
		if err == nil {
			existing, lookupErr := s.receiptInTx(ctx, tx, existingID)
			if lookupErr != nil {
				return domain.Receipt{}, false, lookupErr
			}
			return existing, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Receipt{}, false, err
		}
	}

	var outletExists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM outlets WHERE id = $1`, receipt.OutletID).
		Scan(&outletExists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Receipt{}, false, store.ErrNotFound
		}
		return domain.Receipt{}, false, err
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
		if line.TotalGiven < 1 || line.UnitPrice < 1 {
			return domain.Receipt{}, false, store.ErrValidation
		}

		var stock int
		err := tx.QueryRowContext(ctx, `
			SELECT stock_units FROM products WHERE id = $1 FOR UPDATE
		`, line.ProductID).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Receipt{}, false, store.ErrNotFound
			}
			return domain.Receipt{}, false, err
		}
		if stock < line.TotalGiven {
			return domain.Receipt{}, false, fmt.Errorf("product %s: %w", line.ProductID, store.ErrInsufficientStock)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_units = stock_units - $2, updated_at = now() WHERE id = $1
		`, line.ProductID, line.TotalGiven); err != nil {
			return domain.Receipt{}, false, err
		}

		if line.ID == "" {
			line.ID = xid.New("line")
		}
		line.ReceiptID = receipt.ID
		line.Remaining = line.TotalGiven
		total += line.UnitPrice * int64(line.TotalGiven)
	}
	receipt.TotalPrice = total

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO receipts (id, outlet_id, idempotency_key, total_price, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, receipt.ID, receipt.OutletID, nullIfEmpty(receipt.IdempotencyKey), receipt.TotalPrice,
		receipt.CreatedAt); err != nil {
		return domain.Receipt{}, false, err
	}
	for _, line := range receipt.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_lines (id, receipt_id, product_id, unit_price, total_given, remaining)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ID, line.ReceiptID, line.ProductID, line.UnitPrice, line.TotalGiven, line.Remaining); err != nil {
			return domain.Receipt{}, false, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE outlets SET debt_owed = debt_owed + $2 WHERE id = $1
	`, receipt.OutletID, receipt.TotalPrice); err != nil {
		return domain.Receipt{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Receipt{}, false, err
	}
	return receipt, false, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) receiptInTx(ctx context.Context, q querier, id string) (domain.Receipt, error) {
	var (
		receipt domain.Receipt
		idemKey sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, outlet_id, idempotency_key, total_price, created_at
		FROM receipts
		WHERE id = $1
	`, id).Scan(&receipt.ID, &receipt.OutletID, &idemKey, &receipt.TotalPrice, &receipt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Receipt{}, store.ErrNotFound
		}
		return domain.Receipt{}, err
	}
	receipt.IdempotencyKey = idemKey.String
	receipt.CreatedAt = receipt.CreatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT id, receipt_id, product_id, unit_price, total_given, remaining
		FROM receipt_lines
		WHERE receipt_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.ReceiptLine
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.ProductID, &line.UnitPrice,
			&line.TotalGiven, &line.Remaining); err != nil {
			return domain.Receipt{}, err
		}
		receipt.Lines = append(receipt.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	return s.receiptInTx(ctx, s.db, id)
}

func (s *Store) ListReceiptsByOutlet(ctx context.Context, outletID string) ([]domain.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM receipts WHERE outlet_id = $1 ORDER BY created_at DESC, id DESC
	`, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	receipts := make([]domain.Receipt, 0, len(ids))
	for _, id := range ids {
		receipt, err := s.receiptInTx(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (s *Store) DeleteReceipt(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	receipt, err := s.receiptInTx(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, line := range receipt.Lines {
		if line.Remaining != line.TotalGiven {
			return fmt.Errorf("receipt %s has consumed lines: %w", id, store.ErrValidation)
		}
	}

	for _, line := range receipt.Lines {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_units = stock_units + $2, updated_at = now() WHERE id = $1
		`, line.ProductID, line.TotalGiven); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE outlets SET debt_owed = GREATEST(debt_owed - $2, 0) WHERE id = $1
	`, receipt.OutletID, receipt.TotalPrice); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM receipt_lines WHERE receipt_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// lockOpenLines loads the outlet's still-stocked lines for one product with
// row locks held, ordered the same way the planner orders them.
func lockOpenLines(ctx context.Context, tx *sql.Tx, outletID, productID string) ([]reconcile.ReturnLine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT l.id, l.receipt_id, r.created_at, l.remaining, l.unit_price
		FROM receipt_lines l
		JOIN receipts r ON r.id = l.receipt_id
		WHERE r.outlet_id = $1 AND l.product_id = $2 AND l.remaining > 0
		ORDER BY r.created_at ASC, l.receipt_id ASC, l.id ASC
		FOR UPDATE OF l
	`, outletID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]reconcile.ReturnLine, 0, 8)
	for rows.Next() {
		var line reconcile.ReturnLine
		if err := rows.Scan(&line.LineID, &line.ReceiptID, &line.CreatedAt, &line.Remaining, &line.UnitPrice); err != nil {
			return nil, err
		}
		line.CreatedAt = line.CreatedAt.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func applyPlan(ctx context.Context, tx *sql.Tx, plan reconcile.Plan) error {
	for _, alloc := range plan.Allocations {
		if _, err := tx.ExecContext(ctx, `
			UPDATE receipt_lines SET remaining = remaining - $2 WHERE id = $1
		`, alloc.LineID, alloc.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SellProduct(ctx context.Context, outletID, productID string, qty int) (domain.SaleResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.SaleResponse{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireOutletAndProduct(ctx, tx, outletID, productID); err != nil {
		return domain.SaleResponse{}, err
	}

	lines, err := lockOpenLines(ctx, tx, outletID, productID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	plan, err := reconcile.PlanReturn(qty, lines)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if err := applyPlan(ctx, tx, plan); err != nil {
		return domain.SaleResponse{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SaleResponse{}, err
	}

	return domain.SaleResponse{
		OutletID:    outletID,
		ProductID:   productID,
		Qty:         plan.Qty,
		SoldValue:   plan.Value,
		Allocations: toDomainAllocations(plan.Allocations),
	}, nil
}

func (s *Store) ReturnProduct(ctx context.Context, outletID, productID string, qty int) (domain.ReturnResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireOutletAndProduct(ctx, tx, outletID, productID); err != nil {
		return domain.ReturnResponse{}, err
	}

	lines, err := lockOpenLines(ctx, tx, outletID, productID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	plan, err := reconcile.PlanReturn(qty, lines)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	if err := applyPlan(ctx, tx, plan); err != nil {
		return domain.ReturnResponse{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock_units = stock_units + $2, updated_at = now() WHERE id = $1
	`, productID, plan.Qty); err != nil {
		return domain.ReturnResponse{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE outlets SET debt_owed = GREATEST(debt_owed - $2, 0) WHERE id = $1
	`, outletID, plan.Value); err != nil {
		return domain.ReturnResponse{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ReturnResponse{}, err
	}

	outlet, err := s.GetOutlet(ctx, outletID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	return domain.ReturnResponse{
		OutletID:    outletID,
		ProductID:   productID,
		Qty:         plan.Qty,
		CreditValue: plan.Value,
		Allocations: toDomainAllocations(plan.Allocations),
		Outlet:      outlet,
	}, nil
}

func requireOutletAndProduct(ctx context.Context, tx *sql.Tx, outletID, productID string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM outlets WHERE id = $1`, outletID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1`, productID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) RecordDebtPayment(ctx context.Context, outletID string, amount int64) (domain.PaymentResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var owed int64
	if err := tx.QueryRowContext(ctx, `
		SELECT debt_owed FROM outlets WHERE id = $1 FOR UPDATE
	`, outletID).Scan(&owed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentResponse{}, store.ErrNotFound
		}
		return domain.PaymentResponse{}, err
	}

	var paid int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM debt_payments WHERE outlet_id = $1
	`, outletID).Scan(&paid); err != nil {
		return domain.PaymentResponse{}, err
	}

	amount, err = reconcile.ClampPayment(amount, reconcile.RemainingDebt(owed, paid))
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	payment := domain.DebtPayment{
		ID:        xid.New("pay"),
		OutletID:  outletID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO debt_payments (id, outlet_id, amount, created_at)
		VALUES ($1,$2,$3,$4)
	`, payment.ID, payment.OutletID, payment.Amount, payment.CreatedAt); err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentResponse{}, err
	}

	outlet, err := s.GetOutlet(ctx, outletID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return domain.PaymentResponse{Payment: payment, Outlet: outlet}, nil
}

func (s *Store) ListDebtPayments(ctx context.Context, outletID string) ([]domain.DebtPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outlet_id, amount, created_at
		FROM debt_payments
		WHERE outlet_id = $1
		ORDER BY created_at DESC, id DESC
	`, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.DebtPayment, 0, 16)
	for rows.Next() {
		var p domain.DebtPayment
		if err := rows.Scan(&p.ID, &p.OutletID, &p.Amount, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) DebtSummary(ctx context.Context, outletID string) (domain.DebtSummary, error) {
	var (
		owed int64
		paid int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT o.debt_owed, COALESCE((SELECT SUM(p.amount) FROM debt_payments p WHERE p.outlet_id = o.id), 0)
		FROM outlets o
		WHERE o.id = $1
	`, outletID).Scan(&owed, &paid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DebtSummary{}, store.ErrNotFound
		}
		return domain.DebtSummary{}, err
	}
	return domain.DebtSummary{
		OutletID:      outletID,
		TotalOwed:     owed,
		TotalPaid:     paid,
		RemainingDebt: reconcile.RemainingDebt(owed, paid),
	}, nil
}

func (s *Store) OutletStock(ctx context.Context, outletID string) ([]domain.ProductStock, error) {
	if _, err := s.GetOutlet(ctx, outletID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.product_id, p.name, l.unit_price, l.total_given, l.remaining, r.created_at
		FROM receipt_lines l
		JOIN receipts r ON r.id = l.receipt_id
		JOIN products p ON p.id = l.product_id
		WHERE r.outlet_id = $1
		ORDER BY p.name, r.created_at
	`, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type group struct {
		name      string
		items     []reconcile.LineItem
		unitPrice int64
		latest    time.Time
	}
	order := make([]string, 0, 16)
	groups := make(map[string]*group)
	for rows.Next() {
		var (
			productID string
			name      string
			unitPrice int64
			given     int
			remaining int
			createdAt time.Time
		)
		if err := rows.Scan(&productID, &name, &unitPrice, &given, &remaining, &createdAt); err != nil {
			return nil, err
		}
		g := groups[productID]
		if g == nil {
			g = &group{name: name}
			groups[productID] = g
			order = append(order, productID)
		}
		g.items = append(g.items, reconcile.LineItem{TotalGiven: given, Remaining: remaining, UnitPrice: unitPrice})
		if !createdAt.Before(g.latest) {
			g.latest = createdAt
			g.unitPrice = unitPrice
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.ProductStock, 0, len(order))
	for _, productID := range order {
		g := groups[productID]
		summary := reconcile.Summarize(g.items)
		result = append(result, domain.ProductStock{
			ProductID:      productID,
			ProductName:    g.name,
			UnitPrice:      g.unitPrice,
			TotalGiven:     summary.TotalGiven,
			Remaining:      summary.Remaining,
			Sold:           summary.Sold,
			SoldValue:      summary.SoldValue,
			RemainingValue: summary.RemainingValue,
		})
	}
	return result, nil
}

func (s *Store) CreateNotification(ctx context.Context, notification domain.Notification) error {
	if notification.ID == "" {
		notification.ID = xid.New("ntf")
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, outlet_id, message, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, notification.ID, notification.Kind, nullIfEmpty(notification.OutletID),
		notification.Message, notification.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, COALESCE(outlet_id, ''), message, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.OutletID, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType,
		entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, day time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs`
	args := []any{limit}
	if !day.IsZero() {
		dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
		query += `
		WHERE created_at >= $2 AND created_at < $3`
		args = append(args, dayStart, dayStart.Add(24*time.Hour))
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		WHERE username = lower($1)
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserAccount{}, store.ErrNotFound
		}
		return domain.UserAccount{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES (lower($1),$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = lower($1)
	`, username, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, username string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET active = $2 WHERE username = lower($1)
	`, username, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
