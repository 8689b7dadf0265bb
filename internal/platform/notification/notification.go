// Package notification sends e-mail from the hospital, currently the
// pharmacy stock alert report.
package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"
)

// EmailSender is the interface for sending HTML email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer delivers messages through an SMTP server.
type Mailer struct {
	dialer dialer
	from   string
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *Mailer) message(to []string, subject, htmlBody string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)
	return msg
}

func (m *Mailer) SendEmail(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.message(to, subject, htmlBody)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type LowStockItem struct {
	Name         string
	Quantity     int
	ReorderLevel int
}

type ExpiringItem struct {
	Name        string
	BatchNumber string
	ExpiryDate  time.Time
	Quantity    int
}

// StockAlert is the body of the pharmacy stock report.
type StockAlert struct {
	Hospital    string
	GeneratedAt time.Time
	WithinDays  int
	LowStock    []LowStockItem
	Expiring    []ExpiringItem
}

func (a StockAlert) Empty() bool {
	return len(a.LowStock) == 0 && len(a.Expiring) == 0
}

func (a StockAlert) Subject() string {
	return fmt.Sprintf("%s pharmacy stock alert: %d low, %d expiring", a.Hospital, len(a.LowStock), len(a.Expiring))
}

var stockAlertTmpl = template.Must(template.New("stock_alert").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("02 Jan 2006") },
}).Parse(`<html><body>
<h2>{{.Hospital}} pharmacy stock report</h2>
<p>Generated {{.GeneratedAt.Format "02 Jan 2006 15:04"}}</p>
{{if .LowStock}}<h3>Below reorder level</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Medicine</th><th>In stock</th><th>Reorder level</th></tr>
{{range .LowStock}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.ReorderLevel}}</td></tr>
{{end}}</table>{{end}}
{{if .Expiring}}<h3>Expiring within {{.WithinDays}} days</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Medicine</th><th>Batch</th><th>Expiry</th><th>Quantity</th></tr>
{{range .Expiring}}<tr><td>{{.Name}}</td><td>{{.BatchNumber}}</td><td>{{date .ExpiryDate}}</td><td>{{.Quantity}}</td></tr>
{{end}}</table>{{end}}
</body></html>`))

// RenderStockAlert returns the HTML body of the report.
func RenderStockAlert(alert StockAlert) (string, error) {
	var buf bytes.Buffer
	if err := stockAlertTmpl.Execute(&buf, alert); err != nil {
		return "", fmt.Errorf("render stock alert: %w", err)
	}
	return buf.String(), nil
}

// Compose builds the stock alert message without sending it.
func (m *Mailer) Compose(to []string, alert StockAlert) (*gomail.Message, error) {
	if len(to) == 0 {
		return nil, errors.New("no recipients")
	}
	body, err := RenderStockAlert(alert)
	if err != nil {
		return nil, err
	}
	return m.message(to, alert.Subject(), body), nil
}

func (m *Mailer) SendStockAlert(ctx context.Context, to []string, alert StockAlert) error {
	msg, err := m.Compose(to, alert)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send stock alert: %w", err)
	}
	return nil
}
