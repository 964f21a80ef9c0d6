package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/xeonx/timeago"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

var timeagoEnglish = timeago.NoMax(timeago.English)

// InvoiceData is what the message builders need to know about an invoice.
type InvoiceData struct {
	Invoice *model.Invoice
	Client  *model.Client
	Owner   *model.User
	// PayURL is the link shown to the client; empty hides the link.
	PayURL string
	// Note is an optional free text added above the summary.
	Note string
}

type view struct {
	ClientName string
	Number     string
	Amount     string
	IssueDate  string
	DueDate    string
	PaidDate   string
	PayURL     string
	Note       string
	Urgency    string
	Sender     string
}

func newView(d InvoiceData) view {
	return view{
		ClientName: d.Client.Name,
		Number:     d.Invoice.Number,
		Amount:     FormatAmount(d.Invoice),
		IssueDate:  formatDate(d.Invoice.IssueDate),
		DueDate:    formatDate(d.Invoice.DueDate),
		PayURL:     d.PayURL,
		Note:       strings.TrimSpace(d.Note),
		Sender:     d.Owner.SenderName(),
	}
}

// FormatAmount renders the invoice total with its currency code.
func FormatAmount(inv *model.Invoice) string {
	cur := strings.ToUpper(inv.Currency)
	if cur == "" {
		cur = "USD"
	}
	return inv.TotalAmount.StringFixed(2) + " " + cur
}

func formatDate(t time.Time) string {
	return t.UTC().Format("January 2, 2006")
}

// InvoiceMessage builds the email that delivers an invoice.
func InvoiceMessage(d InvoiceData) (Message, error) {
	v := newView(d)
	return render(d, fmt.Sprintf("Invoice %s from %s", v.Number, v.Sender), "invoice", v)
}

// ReminderMessage builds a payment reminder. now decides whether the invoice
// is announced as due soon or as overdue.
func ReminderMessage(d InvoiceData, now time.Time) (Message, error) {
	v := newView(d)
	subject := fmt.Sprintf("Reminder: Invoice %s is due soon", v.Number)
	if model.IsPastDue(d.Invoice, now) {
		subject = fmt.Sprintf("Invoice %s is overdue", v.Number)
		v.Urgency = fmt.Sprintf("This invoice was due %s.", timeagoEnglish.FormatReference(d.Invoice.DueDate, now))
	} else {
		v.Urgency = "This is a friendly reminder that your invoice is due soon."
	}
	return render(d, subject, "reminder", v)
}

// ReceiptMessage confirms a payment received on paidAt.
func ReceiptMessage(d InvoiceData, paidAt time.Time) (Message, error) {
	v := newView(d)
	v.PaidDate = formatDate(paidAt)
	return render(d, fmt.Sprintf("Payment Receipt for Invoice %s", v.Number), "receipt", v)
}

func render(d InvoiceData, subject, name string, v view) (Message, error) {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name, v); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name, v); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}
	return Message{
		To:       d.Client.Email,
		ToName:   d.Client.Name,
		FromName: v.Sender,
		ReplyTo:  d.Owner.Email,
		Subject:  subject,
		Text:     text.String(),
		HTML:     html.String(),
	}, nil
}

var textTemplates = texttemplate.Must(texttemplate.New("mail").Parse(`
{{- define "invoice" -}}
Hello {{.ClientName}},
{{if .Note}}
{{.Note}}
{{end}}
Please find your invoice {{.Number}} for {{.Amount}}.

Due date: {{.DueDate}}
{{if .PayURL}}
You can pay this invoice online at: {{.PayURL}}
{{end}}
Thank you for your business!

Regards,
{{.Sender}}
{{end}}

{{- define "reminder" -}}
Hello {{.ClientName}},

{{.Urgency}}

Invoice Number: {{.Number}}
Amount Due: {{.Amount}}
Due Date: {{.DueDate}}
{{if .PayURL}}
You can pay this invoice online at: {{.PayURL}}
{{end}}
Regards,
{{.Sender}}
{{end}}

{{- define "receipt" -}}
Hello {{.ClientName}},

We've received your payment of {{.Amount}} for invoice {{.Number}}.

Payment date: {{.PaidDate}}

Thank you for your business!

Regards,
{{.Sender}}
{{end}}
`))

var htmlTemplates = htmltemplate.Must(htmltemplate.New("mail").Parse(`
{{- define "summary" -}}
<table style="width:100%;border-collapse:collapse;margin:20px 0">
<tr><td><strong>Invoice Number:</strong></td><td>{{.Number}}</td></tr>
<tr><td><strong>Issue Date:</strong></td><td>{{.IssueDate}}</td></tr>
<tr><td><strong>Due Date:</strong></td><td>{{.DueDate}}</td></tr>
<tr><td><strong>Amount:</strong></td><td>{{.Amount}}</td></tr>
</table>
{{- end}}

{{- define "paylink" -}}
{{if .PayURL}}<p><a href="{{.PayURL}}">Pay Invoice</a></p>{{end}}
{{- end}}

{{- define "invoice" -}}
<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>Invoice {{.Number}}</h2>
<p>Hello {{.ClientName}},</p>
{{if .Note}}<p>{{.Note}}</p>{{end}}
<p>Please find your invoice for {{.Amount}}.</p>
{{template "summary" .}}
{{template "paylink" .}}
<p>Thank you for your business!</p>
<p>Regards,<br>{{.Sender}}</p>
</div>
{{- end}}

{{- define "reminder" -}}
<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>Payment Reminder</h2>
<p>Hello {{.ClientName}},</p>
<p>{{.Urgency}}</p>
{{template "summary" .}}
{{template "paylink" .}}
<p>Regards,<br>{{.Sender}}</p>
</div>
{{- end}}

{{- define "receipt" -}}
<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>Payment Receipt</h2>
<p>Hello {{.ClientName}},</p>
<p>We've received your payment of {{.Amount}} for invoice {{.Number}}.</p>
<p>Payment date: {{.PaidDate}}</p>
<p>Thank you for your business!</p>
<p>Regards,<br>{{.Sender}}</p>
</div>
{{- end}}
`))
