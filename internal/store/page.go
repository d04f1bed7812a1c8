package store

import "kinship/internal/models"

// minScanBatch is the smallest batch a filtered page scan reads at once.
const minScanBatch = 32

// Query describes one page of a filtered index scan.
type Query struct {
	Index  string
	Prefix []any
	Token  string
	Limit  int
	Desc   bool
	// Filter names the predicates applied after the scan. It is bound into
	// the cursor so a token cannot resume under different predicates.
	Filter string
}

// Result is one page of a filtered scan. Next is empty when the range is
// exhausted.
type Result[T any] struct {
	Items   []*T
	Next    string
	Scanned int
}

// ScanPage scans q.Index under q.Prefix, loads each record and keeps those
// keep accepts until q.Limit are found. The cursor resumes after the key of
// the last kept record, so records skipped by keep are re-examined at most
// once per page. A nil keep accepts everything.
func ScanPage[T any, PT interface {
	*T
	models.Entity
}](t *Tx, q Query, keep func(*T) bool) (*Result[T], error) {
	if q.Limit <= 0 {
		return nil, models.NewValidationError("Page size must be positive")
	}
	p, err := EncodeKey(q.Prefix...)
	if err != nil {
		return nil, err
	}
	filter := string(p) + "\x00" + q.Filter
	after, err := DecodeCursor(q.Token, q.Index, q.Desc, filter)
	if err != nil {
		return nil, err
	}

	var keys [][]byte
	res := &Result[T]{Items: []*T{}}
	batch := max(q.Limit*2, minScanBatch)
	for len(res.Items) <= q.Limit {
		rows, err := t.ScanAfter(q.Index, q.Prefix, after, batch, q.Desc)
		if err != nil {
			return nil, err
		}
		res.Scanned += len(rows)
		recs, err := Fetch[T, PT](t, q.Index, entityIDs(rows))
		if err != nil {
			return nil, err
		}
		for i, rec := range recs {
			if keep == nil || keep(rec) {
				res.Items = append(res.Items, rec)
				keys = append(keys, rows[i].Key)
			}
		}
		if len(rows) < batch {
			break
		}
		after = rows[len(rows)-1].Key
	}

	if len(res.Items) > q.Limit {
		res.Items = res.Items[:q.Limit]
		res.Next = EncodeCursor(q.Index, keys[q.Limit-1], q.Desc, filter)
	}
	return res, nil
}
