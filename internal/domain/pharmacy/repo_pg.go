package pharmacy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

// -- Medication --

type medicationRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicationRepo(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const medCols = `id, name, generic_name, manufacturer, category, dosage_form, strength,
	unit, hsn_code, gst_percent, reorder_level, is_active, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Manufacturer, &m.Category,
		&m.DosageForm, &m.Strength, &m.Unit, &m.HSNCode, &m.GSTPercent,
		&m.ReorderLevel, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMedications(rows pgx.Rows) ([]*Medication, error) {
	defer rows.Close()
	var out []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medications (id, name, generic_name, manufacturer, category, dosage_form,
			strength, unit, hsn_code, gst_percent, reorder_level, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.GenericName, m.Manufacturer, m.Category, m.DosageForm,
		m.Strength, m.Unit, m.HSNCode, m.GSTPercent, m.ReorderLevel, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *medicationRepoPG) one(ctx context.Context, sql string, arg interface{}) (*Medication, error) {
	m, err := scanMedication(r.conn(ctx).QueryRow(ctx, sql, arg))
	if db.IsNotFound(err) {
		return nil, ErrMedicationNotFound
	}
	return m, err
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return r.one(ctx, `SELECT `+medCols+` FROM medications WHERE id = $1`, id)
}

func (r *medicationRepoPG) GetByName(ctx context.Context, name string) (*Medication, error) {
	return r.one(ctx, `SELECT `+medCols+` FROM medications WHERE lower(name) = lower($1)`, strings.TrimSpace(name))
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medications SET name=$2, generic_name=$3, manufacturer=$4, category=$5,
			dosage_form=$6, strength=$7, unit=$8, hsn_code=$9, gst_percent=$10,
			reorder_level=$11, is_active=$12, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.GenericName, m.Manufacturer, m.Category, m.DosageForm,
		m.Strength, m.Unit, m.HSNCode, m.GSTPercent, m.ReorderLevel, m.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMedicationNotFound
	}
	return nil
}

func (r *medicationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMedicationNotFound
	}
	return nil
}

func (r *medicationRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medication, int, error) {
	q := db.NewQuery("medications", medCols).OrderBy("name")
	if v, ok := params["q"]; ok {
		q.Contains(v, "name", "generic_name", "manufacturer")
	}
	if v, ok := params["category"]; ok {
		q.Where("lower(category) = lower(?)", v)
	}
	if v, ok := params["active"]; ok {
		if active, err := strconv.ParseBool(v); err == nil {
			q.Eq("is_active", active)
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanMedications(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *medicationRepoPG) ListActive(ctx context.Context) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medCols+` FROM medications WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanMedications(rows)
}

// -- Batch --

type batchRepoPG struct {
	pool *pgxpool.Pool
}

func NewBatchRepo(pool *pgxpool.Pool) BatchRepository {
	return &batchRepoPG{pool: pool}
}

func (r *batchRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const batchCols = `b.id, b.medication_id, b.batch_number, b.expiry_date, b.quantity,
	b.purchase_price, b.selling_price, b.mrp, b.supplier, b.received_at`

func scanBatch(row pgx.Row, extra ...interface{}) (*Batch, error) {
	var b Batch
	dest := []interface{}{&b.ID, &b.MedicationID, &b.BatchNumber, &b.ExpiryDate,
		&b.Quantity, &b.PurchasePrice, &b.SellingPrice, &b.MRP, &b.Supplier, &b.ReceivedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBatches(rows pgx.Rows) ([]*Batch, error) {
	defer rows.Close()
	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanStockBatches(rows pgx.Rows) ([]*StockBatch, error) {
	defer rows.Close()
	var out []*StockBatch
	for rows.Next() {
		var name string
		b, err := scanBatch(rows, &name)
		if err != nil {
			return nil, err
		}
		out = append(out, &StockBatch{Batch: *b, MedicationName: name})
	}
	return out, rows.Err()
}

func (r *batchRepoPG) Create(ctx context.Context, b *Batch) error {
	b.ID = uuid.New()
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicine_batches (id, medication_id, batch_number, expiry_date, quantity,
			purchase_price, selling_price, mrp, supplier, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.MedicationID, b.BatchNumber, b.ExpiryDate, b.Quantity,
		b.PurchasePrice, b.SellingPrice, b.MRP, b.Supplier, b.ReceivedAt)
	return err
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := scanBatch(r.conn(ctx).QueryRow(ctx, `SELECT `+batchCols+` FROM medicine_batches b WHERE b.id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrBatchNotFound
	}
	return b, err
}

func (r *batchRepoPG) Update(ctx context.Context, b *Batch) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine_batches SET batch_number=$2, expiry_date=$3, quantity=$4,
			purchase_price=$5, selling_price=$6, mrp=$7, supplier=$8
		WHERE id = $1`,
		b.ID, b.BatchNumber, b.ExpiryDate, b.Quantity, b.PurchasePrice, b.SellingPrice, b.MRP, b.Supplier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *batchRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicine_batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *batchRepoPG) ListByMedication(ctx context.Context, medicationID uuid.UUID) ([]*Batch, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+batchCols+` FROM medicine_batches b
		WHERE b.medication_id = $1 ORDER BY b.expiry_date, b.received_at`, medicationID)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

func (r *batchRepoPG) ListInStock(ctx context.Context) ([]*Batch, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+batchCols+` FROM medicine_batches b WHERE b.quantity > 0`)
	if err != nil {
		return nil, err
	}
	return scanBatches(rows)
}

func (r *batchRepoPG) ListStock(ctx context.Context) ([]*StockBatch, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+batchCols+`, m.name
		FROM medicine_batches b JOIN medications m ON m.id = b.medication_id
		ORDER BY m.name, b.expiry_date`)
	if err != nil {
		return nil, err
	}
	return scanStockBatches(rows)
}

func (r *batchRepoPG) ListExpiringBefore(ctx context.Context, before time.Time) ([]*StockBatch, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+batchCols+`, m.name
		FROM medicine_batches b JOIN medications m ON m.id = b.medication_id
		WHERE b.quantity > 0 AND b.expiry_date <= $1
		ORDER BY b.expiry_date, m.name`, before)
	if err != nil {
		return nil, err
	}
	return scanStockBatches(rows)
}

func (r *batchRepoPG) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var qty int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine_batches SET quantity = quantity + $2
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity`, id, delta).Scan(&qty)
	if db.IsNotFound(err) {
		// distinguish a missing batch from a short one
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, ErrInsufficientStock
	}
	return qty, err
}

func (r *batchRepoPG) ExistsByKey(ctx context.Context, batchNumber string, expiry time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM medicine_batches
			WHERE lower(batch_number) = lower($1) AND expiry_date = $2)`,
		strings.TrimSpace(batchNumber), expiry).Scan(&exists)
	return exists, err
}

// -- Purchase --

type purchaseRepoPG struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) PurchaseRepository {
	return &purchaseRepoPG{pool: pool}
}

func (r *purchaseRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const purchaseCols = `id, invoice_number, supplier, purchase_date, subtotal, discount_total,
	cgst_total, sgst_total, grand_total, created_at`

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.InvoiceNumber, &p.Supplier, &p.PurchaseDate, &p.Subtotal,
		&p.DiscountTotal, &p.CGSTTotal, &p.SGSTTotal, &p.GrandTotal, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *purchaseRepoPG) Create(ctx context.Context, p *Purchase) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO purchases (id, invoice_number, supplier, purchase_date, subtotal,
			discount_total, cgst_total, sgst_total, grand_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		p.ID, p.InvoiceNumber, p.Supplier, p.PurchaseDate, p.Subtotal,
		p.DiscountTotal, p.CGSTTotal, p.SGSTTotal, p.GrandTotal,
	).Scan(&p.CreatedAt)
}

func (r *purchaseRepoPG) CreateLine(ctx context.Context, purchaseID uuid.UUID, l *PurchaseLine) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO purchase_items (id, purchase_id, medication_id, batch_id, batch_number,
			expiry_date, quantity, free_quantity, purchase_rate, mrp, discount_percent,
			gst_percent, subtotal, discount_amount, taxable_amount, cgst_amount,
			sgst_amount, line_total, cost_per_unit, profit_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20)`,
		l.ID, purchaseID, l.MedicationID, l.BatchID, l.BatchNumber, l.ExpiryDate,
		l.Quantity, l.FreeQuantity, l.PurchaseRate, l.MRP, l.DiscountPercent,
		l.GSTPercent, l.Subtotal, l.DiscountAmount, l.TaxableAmount, l.CGSTAmount,
		l.SGSTAmount, l.LineTotal, l.CostPerUnit, l.ProfitPercent)
	return err
}

func (r *purchaseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	p, err := scanPurchase(r.conn(ctx).QueryRow(ctx, `SELECT `+purchaseCols+` FROM purchases WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.id, i.medication_id, m.name, i.batch_id, i.batch_number, i.expiry_date,
			i.quantity, i.free_quantity, i.purchase_rate, i.mrp, i.discount_percent,
			i.gst_percent, i.subtotal, i.discount_amount, i.taxable_amount, i.cgst_amount,
			i.sgst_amount, i.line_total, i.cost_per_unit, i.profit_percent
		FROM purchase_items i JOIN medications m ON m.id = i.medication_id
		WHERE i.purchase_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l PurchaseLine
		if err := rows.Scan(&l.ID, &l.MedicationID, &l.MedicationName, &l.BatchID,
			&l.BatchNumber, &l.ExpiryDate, &l.Quantity, &l.FreeQuantity, &l.PurchaseRate,
			&l.MRP, &l.DiscountPercent, &l.GSTPercent, &l.Subtotal, &l.DiscountAmount,
			&l.TaxableAmount, &l.CGSTAmount, &l.SGSTAmount, &l.LineTotal, &l.CostPerUnit,
			&l.ProfitPercent); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, l)
	}
	return p, rows.Err()
}

func (r *purchaseRepoPG) List(ctx context.Context, limit, offset int) ([]*Purchase, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+purchaseCols+` FROM purchases
		ORDER BY purchase_date DESC, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
