// Package jsondoc is the JSON-document primitive facade: Get/Put over
// whole documents plus an RFC 7396 merge-patch Patch, namespaced
// under key.PrimitiveJSON. Documents are native Objects the engine
// understands structurally, not opaque JSON text.
package jsondoc

import (
	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/value"
	"strata/pkg/strata"
)

// Store is a handle to one run's JSON-document namespace.
type Store struct {
	db    *strata.DB
	runID key.RunID
}

func Open(db *strata.DB, runID key.RunID) *Store {
	return &Store{db: db, runID: runID}
}

func (s *Store) key(namespace, name string) key.Key {
	return key.New(s.runID, key.PrimitiveJSON, namespace, name)
}

// Get reads the document at namespace/name.
func (s *Store) Get(namespace, name string) (value.Value, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return value.Value{}, false, err
	}
	defer tx.Abort()
	return tx.Read(s.key(namespace, name))
}

// Put replaces the whole document at namespace/name. doc must be an
// Object (or Null, to store an explicit JSON null document).
func (s *Store) Put(namespace, name string, doc value.Value) error {
	if doc.Type() != value.TypeObject && doc.Type() != value.TypeNull {
		return errs.Newf(errs.KindWrongType, "jsondoc: document must be an object, got %s", doc.Type())
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Write(s.key(namespace, name), doc); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Delete tombstones the document at namespace/name.
func (s *Store) Delete(namespace, name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Delete(s.key(namespace, name)); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Patch applies an RFC 7396 JSON Merge Patch to the document at
// namespace/name within a single transaction: read current state,
// merge, write back. A missing document is treated as an empty object,
// so Patch can also create one.
func (s *Store) Patch(namespace, name string, patch value.Value) (value.Value, error) {
	k := s.key(namespace, name)
	tx, err := s.db.Begin()
	if err != nil {
		return value.Value{}, err
	}
	current, ok, err := tx.Read(k)
	if err != nil {
		tx.Abort()
		return value.Value{}, err
	}
	if !ok {
		current = value.Object(nil)
	}
	merged := MergePatch(current, patch)
	if err := tx.Write(k, merged); err != nil {
		tx.Abort()
		return value.Value{}, err
	}
	if _, err := tx.Commit(); err != nil {
		return value.Value{}, err
	}
	return merged, nil
}

// MergePatch applies patch to target per RFC 7396: a null field value
// in the patch deletes that field from the target; a non-object patch
// replaces target wholesale; otherwise fields merge recursively.
func MergePatch(target, patch value.Value) value.Value {
	if patch.Type() != value.TypeObject {
		return patch
	}
	var base map[string]value.Value
	if target.Type() == value.TypeObject {
		base = target.Fields()
	} else {
		base = make(map[string]value.Value)
	}
	out := make(map[string]value.Value, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch.Fields() {
		if pv.IsNull() {
			delete(out, k)
			continue
		}
		out[k] = MergePatch(out[k], pv)
	}
	return value.Object(out)
}
