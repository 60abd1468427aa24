package types

import (
	"gorm.io/gorm/clause"
)

type ListFilterOperator string

const (
	ListFilterOperatorEq    ListFilterOperator = "eq"
	ListFilterOperatorNotEq ListFilterOperator = "not_eq"
	ListFilterOperatorGte   ListFilterOperator = "gte"
	ListFilterOperatorLte   ListFilterOperator = "lte"
	ListFilterOperatorRange ListFilterOperator = "range"
	ListFilterOperatorIn    ListFilterOperator = "in"
)

// ListFilter is a single admin list-query predicate. It builds directly into
// a GORM clause so handlers can pass filters through without translation.
type ListFilter struct {
	Field    string             `json:"field"`
	Operator ListFilterOperator `json:"operator"`
	Values   []any              `json:"values"`
}

func (f *ListFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}
	value := f.Values[0]
	switch f.Operator {
	case ListFilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case ListFilterOperatorNotEq:
		clause.NotConditions{Exprs: []clause.Expression{clause.Eq{Column: f.Field, Value: value}}}.Build(builder)
	case ListFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case ListFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case ListFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case ListFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	}
}
