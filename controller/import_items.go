package controller

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

const maxImportSize = 5 << 20

// ImportedItem is one line read from an uploaded CSV or XML file.
type ImportedItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// ParseItems reads invoice lines from CSV or XML. ext can be "", ".csv" or
// ".xml"; an empty ext sniffs the content.
func ParseItems(r io.Reader, ext string) ([]ImportedItem, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trim := bytes.TrimSpace(all)

	switch strings.ToLower(ext) {
	case ".csv":
		return parseCSV(bytes.NewReader(all))
	case ".xml":
		return parseXML(bytes.NewReader(all))
	case "":
		if len(trim) > 0 && trim[0] == '<' {
			return parseXML(bytes.NewReader(all))
		}
		return parseCSV(bytes.NewReader(all))
	default:
		return nil, fmt.Errorf("unsupported extension: %s (use .csv or .xml)", ext)
	}
}

// CSV
// Expected header: description;quantity;unit_price
//   - separator ';' or ','
//   - decimal comma allowed ("3,5")
//   - "text" and "net_price" are accepted as header aliases
func parseCSV(r io.Reader) ([]ImportedItem, error) {
	br := bufio.NewReader(r)
	var headerLine string
	for headerLine == "" {
		line, err := br.ReadString('\n')
		headerLine = strings.TrimSpace(line)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}

	sep := ';'
	if !strings.Contains(headerLine, ";") && strings.Contains(headerLine, ",") {
		sep = ','
	}
	cr := csv.NewReader(strings.NewReader(headerLine + "\n" + string(rest)))
	cr.Comma = sep
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parse error: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}
	header := make([]string, len(rows[0]))
	for i := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(rows[0][i]))
	}
	idx := func(names ...string) int {
		for i, h := range header {
			for _, n := range names {
				if h == n {
					return i
				}
			}
		}
		return -1
	}
	descIdx := idx("description", "text")
	qtyIdx := idx("quantity")
	priceIdx := idx("unit_price", "net_price")
	if descIdx < 0 || qtyIdx < 0 || priceIdx < 0 {
		return nil, fmt.Errorf("csv header must contain: description, quantity, unit_price")
	}

	var out []ImportedItem
	for ri := 1; ri < len(rows); ri++ {
		rec := rows[ri]
		empty := true
		for _, c := range rec {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		get := func(i int) string {
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		it, err := importedItem(get(descIdx), get(qtyIdx), get(priceIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ri+1, err)
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("csv has no data rows")
	}
	return out, nil
}

// XML
// <invoice><items><item><description/><quantity/><unit_price/></item></items></invoice>
type xmlInvoice struct {
	XMLName xml.Name  `xml:"invoice"`
	Version string    `xml:"version,attr"`
	Items   []xmlItem `xml:"items>item"`
}

type xmlItem struct {
	Description string `xml:"description"`
	Quantity    string `xml:"quantity"`
	UnitPrice   string `xml:"unit_price"`
}

func parseXML(r io.Reader) ([]ImportedItem, error) {
	var inv xmlInvoice
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&inv); err != nil {
		return nil, fmt.Errorf("xml parse error: %w", err)
	}
	if len(inv.Items) == 0 {
		return nil, fmt.Errorf("xml contains no items")
	}
	out := make([]ImportedItem, 0, len(inv.Items))
	for i, x := range inv.Items {
		it, err := importedItem(x.Description, x.Quantity, x.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		out = append(out, it)
	}
	return out, nil
}

func importedItem(desc, qty, price string) (ImportedItem, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ImportedItem{}, fmt.Errorf("description is required")
	}
	q, err := parseLocalizedDecimal(qty)
	if err != nil {
		return ImportedItem{}, fmt.Errorf("invalid quantity: %v", err)
	}
	p, err := parseLocalizedDecimal(price)
	if err != nil {
		return ImportedItem{}, fmt.Errorf("invalid unit_price: %v", err)
	}
	return ImportedItem{Description: desc, Quantity: q, UnitPrice: p}, nil
}

// Accepts "3,5", "3.5", " 95.00 €" etc.
func parseLocalizedDecimal(s string) (decimal.Decimal, error) {
	s = nonDigitRe.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

var nonDigitRe = regexp.MustCompile(`[^\d\-,\.]`)

// utf-8 only
func charsetReader(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}

// apiInvoiceItemsImport handles POST /api/v1/invoices/:id/items/import. The
// multipart field "file" holds CSV or XML; the lines are appended to the
// invoice in one transaction.
func (ctrl *controller) apiInvoiceItemsImport(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := c.Request().ParseMultipartForm(maxImportSize); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "multipart error: "+err.Error()))
	}
	file, header, err := c.Request().FormFile("file")
	if err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "file missing"))
	}
	defer file.Close()

	imported, err := ParseItems(io.LimitReader(file, maxImportSize), filepath.Ext(header.Filename))
	if err != nil {
		return respond(c, http.StatusBadRequest, apiError("parse_error", err.Error()))
	}

	ctx := c.Request().Context()
	ownerID := apiOwnerID(c)
	inv, err := ctrl.model.LoadInvoice(ctx, id, ownerID)
	if err != nil {
		return apiFail(c, err, "invoice")
	}
	items := make([]model.InvoiceItem, 0, len(inv.Items)+len(imported))
	for i, it := range inv.Items {
		items = append(items, model.InvoiceItem{
			Position:    i + 1,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	for _, it := range imported {
		items = append(items, model.InvoiceItem{
			Position:    len(items) + 1,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	inv.Items = items
	if err := ctrl.model.UpdateInvoice(ctx, inv); err != nil {
		return apiFail(c, err, "invoice")
	}
	requestLogger(c).Info("invoice items imported", "invoice_id", id, "count", len(imported))
	return respond(c, http.StatusOK, ctrl.invoiceToAPI(inv))
}
