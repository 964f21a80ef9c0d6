package model

import (
	"strconv"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Cursors are row offsets rendered as decimal strings. An unreadable cursor
// starts from the first row.
func decodeCursor(cursor string) int {
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// findPage runs q for one page. One extra row is fetched to learn whether a
// next page exists; next is empty on the last page.
func findPage[T any](q *gorm.DB, limit int, cursor string) (rows []T, next string, err error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := decodeCursor(cursor)
	if err := q.Offset(offset).Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	if len(rows) > limit {
		rows = rows[:limit]
		next = strconv.Itoa(offset + limit)
	}
	return rows, next, nil
}
