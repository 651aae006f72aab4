package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

// badRows yields n rows that all fail to scan.
type badRows struct {
	pgx.Rows
	n int
}

var errBadRow = errors.New("cannot scan payment_status")

func (r *badRows) Next() bool {
	if r.n == 0 {
		return false
	}
	r.n--
	return true
}

func (r *badRows) Scan(...any) error { return errBadRow }
func (r *badRows) Err() error        { return nil }
func (r *badRows) Close()            {}

func TestCollectSignupsFailsOnUnreadableRow(t *testing.T) {
	out, err := collectSignups(&badRows{n: 2}, "ANA1")
	if !errors.Is(err, errBadRow) {
		t.Fatalf("err = %v, want scan error", err)
	}
	if out != nil {
		t.Fatalf("partial result returned: %+v", out)
	}
}

func TestCollectSignupsEmpty(t *testing.T) {
	out, err := collectSignups(&badRows{}, "ANA1")
	if err != nil || len(out) != 0 {
		t.Fatalf("got %+v, %v", out, err)
	}
}
