package core

import (
	"fmt"
	"reflect"
)

// Field binds a column to a struct field through a pointer-returning func.
// The converter of the column must produce values of type V.
//
//	core.Field(func(p *Person) *int { return &p.Age })
func Field[T, V any](ptr func(*T) *V) Accessor {
	return Accessor{
		Set: func(rec any, v any) error {
			r, err := recordAs[T](rec)
			if err != nil {
				return err
			}
			val, ok := v.(V)
			if !ok {
				return fmt.Errorf("value is %T, field is %s", v, reflect.TypeFor[V]())
			}
			*ptr(r) = val
			return nil
		},
		Get: func(rec any) (any, bool, error) {
			r, err := recordAs[T](rec)
			if err != nil {
				return nil, false, err
			}
			return *ptr(r), true, nil
		},
	}
}

// NullableField binds a column to a pointer field. A nil pointer is an empty
// slot, written as an absent field.
//
//	core.NullableField(func(p *Person) **string { return &p.Email })
func NullableField[T, V any](ptr func(*T) **V) Accessor {
	return Accessor{
		Set: func(rec any, v any) error {
			r, err := recordAs[T](rec)
			if err != nil {
				return err
			}
			val, ok := v.(V)
			if !ok {
				return fmt.Errorf("value is %T, field is *%s", v, reflect.TypeFor[V]())
			}
			*ptr(r) = &val
			return nil
		},
		Get: func(rec any) (any, bool, error) {
			r, err := recordAs[T](rec)
			if err != nil {
				return nil, false, err
			}
			p := *ptr(r)
			if p == nil {
				return nil, false, nil
			}
			return *p, true, nil
		},
	}
}

func recordAs[T any](rec any) (*T, error) {
	r, ok := rec.(*T)
	if !ok || r == nil {
		return nil, fmt.Errorf("record is %T, want *%s", rec, reflect.TypeFor[T]())
	}
	return r, nil
}

// New is a SchemaDef.New for struct records.
func New[T any]() func() any {
	return func() any { return new(T) }
}

// Records converts parsed records to their concrete type. Records of any
// other type are skipped.
func Records[T any](recs []any) []*T {
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		if r, ok := rec.(*T); ok {
			out = append(out, r)
		}
	}
	return out
}
