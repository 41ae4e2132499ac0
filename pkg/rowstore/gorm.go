package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var procedureName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// GormTable implements Table over a gorm connection.
type GormTable[T Row] struct {
	orm  *gorm.DB
	name string
}

func NewGormTable[T Row](orm *gorm.DB) *GormTable[T] {
	t := &GormTable[T]{orm: orm}
	stmt := &gorm.Statement{DB: orm}
	if err := stmt.Parse(newRow[T]()); err == nil {
		t.name = stmt.Schema.Table
	} else {
		t.name = reflect.TypeOf(newRow[T]()).Elem().Name()
	}
	return t
}

func (t *GormTable[T]) Name() string {
	return t.name
}

func (t *GormTable[T]) wrap(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = syncerr.ErrNotFound
	}
	return syncerr.New(module, op+" "+t.name, err)
}

func applyQuery(tx *gorm.DB, q Query) (*gorm.DB, error) {
	for _, c := range q.Conditions {
		col := clause.Column{Name: c.Column}
		switch c.Operator {
		case OpEq:
			tx = tx.Where(clause.Eq{Column: col, Value: c.Value})
		case OpNeq:
			tx = tx.Where(clause.Neq{Column: col, Value: c.Value})
		case OpLt:
			tx = tx.Where(clause.Lt{Column: col, Value: c.Value})
		case OpGt:
			tx = tx.Where(clause.Gt{Column: col, Value: c.Value})
		case OpIn:
			values, err := toSlice(c.Value)
			if err != nil {
				return nil, err
			}
			tx = tx.Where(clause.IN{Column: col, Values: values})
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Operator)
		}
	}
	for _, o := range q.Orders {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx, nil
}

// session runs fn against the connection for ctx. On postgres a context
// carrying an Authorization header gets its own transaction with the header
// published as request.headers, the way PostgREST scopes row level security.
func session(ctx context.Context, orm *gorm.DB, fn func(tx *gorm.DB) error) error {
	orm = orm.WithContext(ctx)
	auth := Authorization(ctx)
	if auth == "" || orm.Dialector.Name() != "postgres" {
		return fn(orm)
	}
	return orm.Transaction(func(tx *gorm.DB) error {
		headers, err := json.Marshal(map[string]string{"authorization": auth})
		if err != nil {
			return err
		}
		if err := tx.Exec("SELECT set_config('request.headers', ?, true)", string(headers)).Error; err != nil {
			return fmt.Errorf("forward authorization: %w", err)
		}
		return fn(tx)
	})
}

func (t *GormTable[T]) Select(ctx context.Context, q Query) ([]T, error) {
	var rows []T
	err := session(ctx, t.orm, func(tx *gorm.DB) error {
		tx, err := applyQuery(tx.Model(newRow[T]()), q)
		if err != nil {
			return err
		}
		return tx.Find(&rows).Error
	})
	if err != nil {
		return nil, t.wrap("select", err)
	}
	return rows, nil
}

func (t *GormTable[T]) SelectSingle(ctx context.Context, q Query) (T, error) {
	var zero T
	row := newRow[T]()
	err := session(ctx, t.orm, func(tx *gorm.DB) error {
		tx, err := applyQuery(tx.Model(newRow[T]()), q)
		if err != nil {
			return err
		}
		return tx.Take(row).Error
	})
	if err != nil {
		return zero, t.wrap("select single", err)
	}
	return row, nil
}

func (t *GormTable[T]) Insert(ctx context.Context, rows []T) ([]T, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	for _, row := range rows {
		if row.GetID() == uuid.Nil {
			row.SetID(uuid.New())
		}
	}
	err := session(ctx, t.orm, func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, t.wrap("insert", err)
	}
	return rows, nil
}

func (t *GormTable[T]) Update(ctx context.Context, id uuid.UUID, row T) (T, error) {
	var zero T
	row.SetID(id)
	err := session(ctx, t.orm, func(tx *gorm.DB) error {
		tx = tx.Model(row).Select("*").Omit("id", "created_at").Updates(row)
		if tx.Error != nil {
			return tx.Error
		}
		if tx.RowsAffected == 0 {
			return syncerr.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return zero, t.wrap("update", err)
	}
	return row, nil
}

func (t *GormTable[T]) Patch(ctx context.Context, id uuid.UUID, patch Patch) (T, error) {
	var zero T
	row := newRow[T]()
	err := session(ctx, t.orm, func(tx *gorm.DB) error {
		res := tx.Model(newRow[T]()).Where("id = ?", id).Updates(map[string]any(patch))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return syncerr.ErrNotFound
		}
		return tx.Where("id = ?", id).Take(row).Error
	})
	if err != nil {
		return zero, t.wrap("patch", err)
	}
	return row, nil
}

func (t *GormTable[T]) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := session(ctx, t.orm, func(tx *gorm.DB) error {
		return tx.Where("id IN ?", ids).Delete(newRow[T]()).Error
	})
	if err != nil {
		return t.wrap("delete", err)
	}
	return nil
}

// GormStore runs postgres functions the way PostgREST exposes them.
type GormStore struct {
	orm *gorm.DB
}

func NewGormStore(orm *gorm.DB) *GormStore {
	return &GormStore{orm: orm}
}

func (s *GormStore) RPC(ctx context.Context, fn string, dest any, args ...any) error {
	if !procedureName.MatchString(fn) {
		return syncerr.Newf(module, "rpc "+fn, "invalid procedure name")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	err := session(ctx, s.orm, func(tx *gorm.DB) error {
		return tx.Raw(fmt.Sprintf("SELECT * FROM %s(%s)", fn, placeholders), args...).Scan(dest).Error
	})
	return syncerr.New(module, "rpc "+fn, err)
}

func newRow[T Row]() T {
	var zero T
	return reflect.New(reflect.TypeOf(zero).Elem()).Interface().(T)
}

func toSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("IN expects a slice, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
