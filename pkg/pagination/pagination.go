package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorSize = 8 + 16
)

var errMalformedCursor = errors.New("malformed cursor")

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of a page ordered by (created_at DESC, id DESC).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit when unset.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the page size plus the one look-ahead row that tells
// whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor packs the timestamp (unix nanoseconds) and id into an opaque
// URL-safe token.
func EncodeCursor(c Cursor) string {
	var raw [cursorSize]byte
	binary.BigEndian.PutUint64(raw[:8], uint64(c.CreatedAt.UnixNano()))
	copy(raw[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// ParseCursor reverses EncodeCursor. A blank token yields nil, the first page.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != cursorSize {
		return nil, errMalformedCursor
	}
	id, err := uuid.FromBytes(raw[8:])
	if err != nil {
		return nil, errMalformedCursor
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Keyset returns a gorm scope that orders newest first on the given table
// alias and starts after the cursor. An empty alias means unqualified columns.
func Keyset(alias string, after *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	return func(db *gorm.DB) *gorm.DB {
		if after != nil {
			db = db.Where("("+col("created_at")+", "+col("id")+") < (?, ?)", after.CreatedAt, after.ID)
		}
		return db.Order(col("created_at") + " DESC, " + col("id") + " DESC").Limit(limit)
	}
}

// Trim cuts rows fetched with LimitWithBuffer down to the page size and
// returns the cursor of the next page, or "" when this is the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(cursorOf(page[len(page)-1]))
}
