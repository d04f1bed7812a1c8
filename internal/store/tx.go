package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"kinship/internal/models"
	"kinship/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fetchBatch bounds the number of ids in one IN clause.
const fetchBatch = 500

// Tx is a unit of work against the store. Reads inside a Tx see its own
// writes; nothing is visible to other readers until the Tx commits.
type Tx struct {
	db    *gorm.DB
	ctx   context.Context
	store *Store
}

// Context returns the context the transaction runs under.
func (t *Tx) Context() context.Context { return t.ctx }

// Now returns the store clock.
func (t *Tx) Now() time.Time { return t.store.Now() }

// Put inserts e, or replaces it when it already has an id, and rewrites every
// index row it occupies. New records get a fresh id and, unless already set,
// a creation time. A unique index collision yields a Conflict.
func (t *Tx) Put(e models.Entity) (string, error) {
	kind := string(e.Kind())
	defer observability.TrackStoreOp("put", kind)()

	rec := e.Base()
	isNew := rec.ID == ""
	if isNew {
		rec.ID = uuid.NewString()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = t.store.Now()
		}
	}

	rows, err := entries(e)
	if err != nil {
		return "", err
	}
	if err := t.checkUnique(rec.ID, rows); err != nil {
		return "", err
	}

	if isNew {
		err = t.db.Create(e).Error
	} else {
		err = t.db.Save(e).Error
	}
	if err != nil {
		return "", translate(err)
	}
	if err := t.writeEntries(rec.ID, rows); err != nil {
		return "", err
	}

	t.store.log.LogWrite(t.ctx, "put", map[string]any{"kind": kind, "id": rec.ID, "new": isNew})
	return rec.ID, nil
}

// UniqueError names the unique index a write collided on.
type UniqueError struct {
	Index string
}

func (e *UniqueError) Error() string { return "unique index " + e.Index }

// CollidedOn reports whether err is a Conflict raised by the unique index.
func CollidedOn(err error, index string) bool {
	var ue *UniqueError
	return errors.As(err, &ue) && ue.Index == index
}

func (t *Tx) checkUnique(id string, rows []models.IndexEntry) error {
	for _, row := range rows {
		idx := byName[row.IndexName]
		if !idx.Unique {
			continue
		}
		var owner models.IndexEntry
		err := t.db.Where("index_name = ? AND entry_key = ?", row.IndexName, row.Key).Take(&owner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if owner.EntityID != id {
			return &models.AppError{
				Code:    models.CodeConflict,
				Message: fmt.Sprintf("%s already taken", row.IndexName),
				Err:     &UniqueError{Index: row.IndexName},
			}
		}
	}
	return nil
}

func (t *Tx) writeEntries(id string, rows []models.IndexEntry) error {
	if err := t.db.Where("entity_id = ?", id).Delete(&models.IndexEntry{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := t.db.CreateInBatches(rows, 200).Error; err != nil {
		return translate(err)
	}
	return nil
}

// translate maps driver uniqueness violations onto Conflict. It relies on the
// gorm.Config TranslateError option.
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.NewConflictError("unique constraint violated")
	}
	return err
}

// Get loads the record with id into dst. Missing records yield NotFound.
func (t *Tx) Get(id string, dst models.Entity) error {
	defer observability.TrackStoreOp("get", string(dst.Kind()))()
	err := t.db.Where("id = ?", id).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(string(dst.Kind()), id)
	}
	return err
}

// Delete loads the record with id into dst and removes it with its index rows.
func (t *Tx) Delete(dst models.Entity, id string) error {
	if err := t.Get(id, dst); err != nil {
		return err
	}
	return t.Remove(dst)
}

// Remove deletes an already loaded record with its index rows.
func (t *Tx) Remove(e models.Entity) error {
	kind := string(e.Kind())
	defer observability.TrackStoreOp("delete", kind)()
	id := e.Base().ID

	res := t.db.Delete(e)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(kind, id)
	}
	if err := t.db.Where("entity_id = ?", id).Delete(&models.IndexEntry{}).Error; err != nil {
		return err
	}
	t.store.log.LogWrite(t.ctx, "delete", map[string]any{"kind": kind, "id": id})
	return nil
}

// Scan returns the entries of index whose keys fall within r, in key order or
// reversed. A limit <= 0 means no limit.
func (t *Tx) Scan(index string, r KeyRange, limit int, desc bool) ([]models.IndexEntry, error) {
	if _, ok := byName[index]; !ok {
		return nil, fmt.Errorf("store: unknown index %s", index)
	}
	defer observability.TrackStoreOp("scan", index)()

	q := t.db.Where("index_name = ? AND entry_key >= ? AND entry_key < ?", index, r.Start, r.End)
	if desc {
		q = q.Order("entry_key DESC")
	} else {
		q = q.Order("entry_key ASC")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.IndexEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ScanAfter scans the prefix range of index, resuming strictly after the key
// after (nil starts at the beginning) in scan direction.
func (t *Tx) ScanAfter(index string, prefix []any, after []byte, limit int, desc bool) ([]models.IndexEntry, error) {
	p, err := EncodeKey(prefix...)
	if err != nil {
		return nil, err
	}
	r := PrefixRange(p)
	if after != nil {
		if desc {
			r.End = after
		} else {
			r.Start = append(append([]byte{}, after...), 0x00)
		}
	}
	return t.Scan(index, r, limit, desc)
}

// Lookup returns the ids under prefix, ordered by the index's trailing key.
func (t *Tx) Lookup(index string, prefix ...any) ([]string, error) {
	rows, err := t.ScanAfter(index, prefix, nil, 0, false)
	if err != nil {
		return nil, err
	}
	return entityIDs(rows), nil
}

// RangeScan returns one page of ids under prefix and the token for the next
// page, or "" when the range is exhausted.
func (t *Tx) RangeScan(index string, prefix []any, token string, limit int, desc bool) ([]string, string, error) {
	if limit <= 0 {
		return nil, "", models.NewValidationError("Page size must be positive")
	}
	p, err := EncodeKey(prefix...)
	if err != nil {
		return nil, "", err
	}
	filter := string(p)
	after, err := DecodeCursor(token, index, desc, filter)
	if err != nil {
		return nil, "", err
	}
	rows, err := t.ScanAfter(index, prefix, after, limit+1, desc)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		next = EncodeCursor(index, rows[limit-1].Key, desc, filter)
	}
	return entityIDs(rows), next, nil
}

// Count returns the number of entries under prefix.
func (t *Tx) Count(index string, prefix ...any) (int64, error) {
	p, err := EncodeKey(prefix...)
	if err != nil {
		return 0, err
	}
	defer observability.TrackStoreOp("count", index)()
	r := PrefixRange(p)
	var n int64
	err = t.db.Model(&models.IndexEntry{}).
		Where("index_name = ? AND entry_key >= ? AND entry_key < ?", index, r.Start, r.End).
		Count(&n).Error
	return n, err
}

// First returns the first id under prefix, if any.
func (t *Tx) First(index string, prefix ...any) (string, bool, error) {
	rows, err := t.ScanAfter(index, prefix, nil, 1, false)
	if err != nil || len(rows) == 0 {
		return "", false, err
	}
	return rows[0].EntityID, true, nil
}

// GetBy loads into dst the record a unique index maps values to. A missing
// entry yields NotFound; an entry without a record is an inconsistency.
func (t *Tx) GetBy(dst models.Entity, index string, values ...any) error {
	id, ok, err := t.First(index, values...)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFoundError(string(dst.Kind()), fmt.Sprint(values...))
	}
	if err := t.Get(id, dst); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewInconsistencyError(index, id)
		}
		return err
	}
	return nil
}

// Exists reports whether any entry lies under prefix.
func (t *Tx) Exists(index string, prefix ...any) (bool, error) {
	_, ok, err := t.First(index, prefix...)
	return ok, err
}

// Fetch loads the records for ids, preserving order. An id with no record
// means index was not kept in lockstep and yields an inconsistency error.
func Fetch[T any, PT interface {
	*T
	models.Entity
}](t *Tx, index string, ids []string) ([]*T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	kind := string(PT(new(T)).Kind())
	defer observability.TrackStoreOp("fetch", kind)()

	found := make(map[string]*T, len(ids))
	for start := 0; start < len(ids); start += fetchBatch {
		end := min(start+fetchBatch, len(ids))
		var batch []*T
		if err := t.db.Where("id IN ?", ids[start:end]).Find(&batch).Error; err != nil {
			return nil, err
		}
		for _, rec := range batch {
			found[PT(rec).Base().ID] = rec
		}
	}

	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		rec, ok := found[id]
		if !ok {
			err := models.NewInconsistencyError(index, id)
			t.store.log.LogError(t.ctx, "fetch", err)
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// all loads every record of the kind proto belongs to, in id order.
func (t *Tx) all(proto models.Entity) ([]models.Entity, error) {
	slice := reflect.New(reflect.SliceOf(reflect.TypeOf(proto)))
	if err := t.db.Order("id").Find(slice.Interface()).Error; err != nil {
		return nil, err
	}
	elems := slice.Elem()
	out := make([]models.Entity, elems.Len())
	for i := range out {
		out[i] = elems.Index(i).Interface().(models.Entity)
	}
	return out, nil
}

func entityIDs(rows []models.IndexEntry) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.EntityID
	}
	return ids
}
