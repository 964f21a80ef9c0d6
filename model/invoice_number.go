package model

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	clientNumberReplacer = regexp.MustCompile(`%CN%`)
	counterReplacer      = regexp.MustCompile(`%(0?)(\d*)C%`)
	year4Replacer        = regexp.MustCompile(`%YYYY%`)
	year2Replacer        = regexp.MustCompile(`%YY%`)
)

// FormatInvoiceNumber expands an invoice number template.
//
//	%CN%    client reference
//	%YYYY%  four digit year of issued
//	%YY%    two digit year of issued
//	%C%     counter; %04C% pads with zeros to width 4
func FormatInvoiceNumber(tmpl, clientRef string, counter uint, issued time.Time) string {
	out := clientNumberReplacer.ReplaceAllLiteralString(tmpl, clientRef)

	year := issued.UTC().Year()
	out = year4Replacer.ReplaceAllLiteralString(out, fmt.Sprintf("%04d", year))
	out = year2Replacer.ReplaceAllLiteralString(out, fmt.Sprintf("%02d", year%100))

	return counterReplacer.ReplaceAllStringFunc(out, func(m string) string {
		sub := counterReplacer.FindStringSubmatch(m)
		if sub[1] == "0" && sub[2] != "" {
			return fmt.Sprintf("%0"+sub[2]+"d", counter)
		}
		// width without the zero flag is ignored
		return strconv.FormatUint(uint64(counter), 10)
	})
}

// maxNumberAttempts bounds how many counters createInvoice skips when a
// generated number is already taken by a hand-picked one.
const maxNumberAttempts = 25

// errNumbersExhausted is returned when maxNumberAttempts generated numbers in
// a row were taken.
var errNumbersExhausted = errors.New("no free invoice number")

// lockOwnerCounter serialises counter allocation per owner. Postgres holds a
// row lock on the owner's user until the transaction ends; SQLite writers are
// serialised by the database itself.
func lockOwnerCounter(tx *gorm.DB, ownerID uint) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	var ids []uint
	return tx.Model(&User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", ownerID).
		Pluck("id", &ids).Error
}

// maxCounter returns the highest invoice counter used by ownerID.
func maxCounter(tx *gorm.DB, ownerID uint) (uint, error) {
	var max sql.NullInt64
	if err := tx.Model(&Invoice{}).
		Where("owner_id = ?", ownerID).
		Select("COALESCE(MAX(counter), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return uint(max.Int64), nil
}

// numberTemplate returns the owner's invoice number template, always
// containing a counter placeholder.
func numberTemplate(tx *gorm.DB, ownerID uint) (string, error) {
	tmpl := DefaultInvoiceNumberTemplate
	var u User
	err := tx.Select("id", "invoice_number_template").Where("id = ?", ownerID).First(&u).Error
	switch {
	case err == nil:
		tmpl = u.NumberTemplate()
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", err
	}
	if !counterReplacer.MatchString(tmpl) {
		tmpl += "-%C%"
	}
	return tmpl, nil
}

func numberTaken(tx *gorm.DB, ownerID uint, number string) (bool, error) {
	var n int64
	err := tx.Model(&Invoice{}).Where("owner_id = ? AND number = ?", ownerID, number).Count(&n).Error
	return n > 0, err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
