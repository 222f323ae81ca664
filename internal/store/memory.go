package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// View is a declarative, in-memory stand-in for a CouchDB-style map/reduce
// view: Map receives each document in a database and may emit zero or more
// (key, value) rows; Reduce, if non-nil, is applied to grouped values when a
// query requests reduction.
type View struct {
	Map    func(doc map[string]interface{}) (key, value interface{}, ok bool)
	Reduce func(values []interface{}) interface{}
}

// Memory is an in-memory Client implementation used by the test suite, per
// §9's "Polymorphism over the store" design note. It registers views by
// (designDoc, view) name rather than interpreting the ViewRegistry's
// map/reduce source strings, since the registry's JavaScript-flavored source
// is meant for the real store, not re-execution in Go.
type Memory struct {
	mu    sync.Mutex
	dbs   map[string]map[string]map[string]interface{}
	views map[string]map[string]View // db -> "designDoc/view" -> View
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		dbs:   make(map[string]map[string]map[string]interface{}),
		views: make(map[string]map[string]View),
	}
}

// RegisterView installs a view implementation for db/designDoc/view. Tests
// call this after CreateDB to wire the same view semantics the ViewRegistry
// would install against a real store.
func (m *Memory) RegisterView(db, designDoc, view string, v View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.views[db] == nil {
		m.views[db] = make(map[string]View)
	}
	m.views[db][designDoc+"/"+view] = v
}

func toDoc(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromDoc(m map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *Memory) Get(_ context.Context, db, id string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dbs[db]
	if !ok {
		return ErrNotFound
	}
	doc, ok := d[id]
	if !ok {
		return ErrNotFound
	}
	return fromDoc(doc, out)
}

func (m *Memory) Put(_ context.Context, db string, doc interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dbs[db]
	if !ok {
		return "", ErrNotFound
	}
	converted, err := toDoc(doc)
	if err != nil {
		return "", err
	}
	id, _ := converted["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		converted["_id"] = id
	}
	rev := uuid.NewString()
	converted["_rev"] = rev
	d[id] = converted

	if setter, ok := doc.(interface{ SetRev(string) }); ok {
		setter.SetRev(rev)
	}
	if setter, ok := doc.(interface{ SetID(string) }); ok {
		setter.SetID(id)
	}
	return rev, nil
}

func (m *Memory) Bulk(ctx context.Context, db string, docs []interface{}) ([]BulkResult, error) {
	results := make([]BulkResult, len(docs))
	for i, doc := range docs {
		rev, err := m.Put(ctx, db, doc)
		converted, _ := toDoc(doc)
		id, _ := converted["_id"].(string)
		if err != nil {
			results[i] = BulkResult{ID: id, Error: err.Error()}
			continue
		}
		results[i] = BulkResult{ID: id, Rev: rev, OK: true}
	}
	return results, nil
}

func (m *Memory) AllByIDs(_ context.Context, db string, ids []string) (map[string]map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]map[string]interface{})
	d, ok := m.dbs[db]
	if !ok {
		return result, nil
	}
	for _, id := range ids {
		if doc, ok := d[id]; ok {
			result[id] = doc
		}
	}
	return result, nil
}

// compareKeys implements the CouchDB-style ordering used for range queries:
// HighKey (an object) sorts above every string/number key, and composite
// (array) keys compare element-wise.
func compareKeys(a, b interface{}) int {
	aHigh := isHighKey(a)
	bHigh := isHighKey(b)
	if aHigh && bHigh {
		return 0
	} else if aHigh {
		return 1
	} else if bHigh {
		return -1
	}

	aArr, aIsArr := a.([]interface{})
	bArr, bIsArr := b.([]interface{})
	if aIsArr && bIsArr {
		for i := 0; i < len(aArr) && i < len(bArr); i++ {
			if c := compareKeys(aArr[i], bArr[i]); c != 0 {
				return c
			}
		}
		return len(aArr) - len(bArr)
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(as, bs)
	}

	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		switch {
		case ab == bb:
			return 0
		case !ab && bb:
			return -1
		default:
			return 1
		}
	}

	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	return 0
}

func isHighKey(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	return ok && len(m) == 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (m *Memory) View(_ context.Context, db, designDoc, view string, query ViewQuery) ([]ViewRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[db][designDoc+"/"+view]
	if !ok {
		return nil, ErrNotFound
	}

	// Under Descending, StartKey is the upper bound and EndKey the lower, as
	// in CouchDB.
	low, high := query.StartKey, query.EndKey
	if query.Descending {
		low, high = high, low
	}

	var rows []ViewRow
	for id, doc := range m.dbs[db] {
		key, value, emit := v.Map(doc)
		if !emit {
			continue
		}
		if low != nil && compareKeys(key, low) < 0 {
			continue
		}
		if high != nil && compareKeys(key, high) > 0 {
			continue
		}
		row := ViewRow{Key: key, Value: value, ID: id}
		if query.IncludeDocs {
			row.Doc = doc
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		c := compareKeys(rows[i].Key, rows[j].Key)
		if query.Descending {
			return c > 0
		}
		return c < 0
	})

	if query.Reduce && v.Reduce != nil {
		values := make([]interface{}, len(rows))
		for i, r := range rows {
			values[i] = r.Value
		}
		return []ViewRow{{Value: v.Reduce(values)}}, nil
	}

	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	return rows, nil
}

func (m *Memory) CreateDB(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dbs[name]; ok {
		return nil
	}
	m.dbs[name] = make(map[string]map[string]interface{})
	return nil
}

func (m *Memory) DeleteDB(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dbs, name)
	delete(m.views, name)
	return nil
}

func (m *Memory) ListDBs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.dbs))
	for name := range m.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Exists(_ context.Context, db string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dbs[db]
	return ok, nil
}

func (m *Memory) Count(_ context.Context, db string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dbs[db]), nil
}
