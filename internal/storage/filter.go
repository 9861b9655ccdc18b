package storage

import (
	"fmt"
	"regexp"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FilterOp is a filter comparison.
type FilterOp string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual FilterOp = "=="
	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains FilterOp = "array-contains"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter restricts a subscription or query to matching documents.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Equal returns a filter matching field == value.
func Equal(field string, value any) *Filter {
	return &Filter{Field: field, Op: OpEqual, Value: value}
}

// ArrayContains returns a filter matching documents whose array field contains value.
func ArrayContains(field string, value any) *Filter {
	return &Filter{Field: field, Op: OpArrayContains, Value: value}
}

// Validate checks the field name and operator. Field names are restricted to
// identifiers so they can be embedded in JSON paths.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	if !identifierPattern.MatchString(f.Field) {
		return fmt.Errorf("invalid filter field: %q", f.Field)
	}
	switch f.Op {
	case OpEqual, OpArrayContains:
	default:
		return fmt.Errorf("unsupported filter op: %q", f.Op)
	}
	if _, err := structpb.NewValue(f.Value); err != nil {
		return fmt.Errorf("invalid filter value: %w", err)
	}
	return nil
}

// Match reports whether the document fields satisfy the filter. A nil filter matches everything.
func (f *Filter) Match(fields *structpb.Struct) bool {
	if f == nil {
		return true
	}
	want, err := structpb.NewValue(f.Value)
	if err != nil {
		return false
	}
	got, ok := fields.GetFields()[f.Field]
	if !ok {
		return false
	}

	switch f.Op {
	case OpEqual:
		return proto.Equal(got, want)
	case OpArrayContains:
		for _, v := range got.GetListValue().GetValues() {
			if proto.Equal(v, want) {
				return true
			}
		}
	}
	return false
}
