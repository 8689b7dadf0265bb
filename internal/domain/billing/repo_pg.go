package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/money"
)

type billRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &billRepoPG{pool: pool}
}

func (r *billRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const billCols = `id, bill_number, patient_id, customer_name, customer_phone, prescription_id,
	subtotal, discount_type, discount_value, discount_amount, tax_percent, tax_amount, total,
	payment_method, payment_status, amount_paid, created_by, created_at`

const itemCols = `id, bill_id, medication_id, batch_id, medication_name, batch_number,
	quantity, unit_price, line_total`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.PatientID, &b.CustomerName, &b.CustomerPhone,
		&b.PrescriptionID, &b.Subtotal, &b.DiscountType, &b.DiscountValue, &b.DiscountAmount,
		&b.TaxPercent, &b.TaxAmount, &b.Total, &b.PaymentMethod, &b.PaymentStatus,
		&b.AmountPaid, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *billRepoPG) NextSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill_counters (bill_date, last_seq) VALUES ($1, 1)
		ON CONFLICT (bill_date) DO UPDATE SET last_seq = bill_counters.last_seq + 1
		RETURNING last_seq`, day.Format("2006-01-02")).Scan(&seq)
	return seq, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing (id, bill_number, patient_id, customer_name, customer_phone,
			prescription_id, subtotal, discount_type, discount_value, discount_amount,
			tax_percent, tax_amount, total, payment_method, payment_status, amount_paid, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at`,
		b.ID, b.BillNumber, b.PatientID, b.CustomerName, b.CustomerPhone, b.PrescriptionID,
		b.Subtotal, b.DiscountType, b.DiscountValue, b.DiscountAmount, b.TaxPercent,
		b.TaxAmount, b.Total, b.PaymentMethod, b.PaymentStatus, b.AmountPaid, b.CreatedBy,
	).Scan(&b.CreatedAt)
}

func (r *billRepoPG) CreateItem(ctx context.Context, it *BillItem) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing_item (`+itemCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		it.ID, it.BillID, it.MedicationID, it.BatchID, it.MedicationName, it.BatchNumber,
		it.Quantity, it.UnitPrice, it.LineTotal)
	return err
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM billing WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM billing_item WHERE bill_id = $1 ORDER BY medication_name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	b.Items = []BillItem{}
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.MedicationID, &it.BatchID, &it.MedicationName,
			&it.BatchNumber, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

func (r *billRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error) {
	q := db.NewQuery("billing", billCols).OrderBy("created_at DESC")
	if f.From != nil {
		q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q.Where("created_at < ?", *f.To)
	}
	if f.PaymentStatus != "" {
		q.Eq("payment_status", f.PaymentStatus)
	}
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *billRepoPG) UpdatePayment(ctx context.Context, id uuid.UUID, amountPaid float64, status, method string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE billing SET amount_paid = $2, payment_status = $3, payment_method = $4
		WHERE id = $1`, id, amountPaid, status, method)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *billRepoPG) Revenue(ctx context.Context, from, to time.Time) (*Revenue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(LEAST(amount_paid, total)), 0)
		FROM billing
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rev := &Revenue{ByMethod: make(map[string]float64)}
	for rows.Next() {
		var method string
		var n int
		var total, collected float64
		if err := rows.Scan(&method, &n, &total, &collected); err != nil {
			return nil, err
		}
		rev.Bills += n
		rev.Total += total
		rev.Collected += collected
		rev.ByMethod[method] = money.Round2(collected)
	}
	rev.Total = money.Round2(rev.Total)
	rev.Collected = money.Round2(rev.Collected)
	rev.Pending = money.Round2(rev.Total - rev.Collected)
	return rev, rows.Err()
}
