package attribute

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hengadev/errsx"
)

// Accessor computes the value returned by Get for a field. It receives the raw
// stored value and takes precedence over every other read transform.
type Accessor func(raw any) (any, error)

// Mutator computes the value stored by Set for a field. It takes precedence
// over every other write transform.
type Mutator func(value any) (any, error)

// Appender computes a pseudo-attribute added to ToMap output.
type Appender func(ctx context.Context, m *Model) (any, error)

type appendDef struct {
	name string
	fn   Appender
}

// Schema describes the attributes of one entity type. It is immutable once
// built by NewSchema and safe to share between models.
type Schema struct {
	name       string
	casts      map[string]Cast
	accessors  map[string]Accessor
	mutators   map[string]Mutator
	appends    []appendDef
	hidden     map[string]struct{}
	dateFormat string
}

// SchemaOption configures a Schema under construction.
type SchemaOption func(s *Schema) error

// NewSchema builds the schema of the named entity type.
func NewSchema(name string, options ...SchemaOption) (*Schema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: schema name cannot be empty", ErrInvalidSchema)
	}
	s := &Schema{
		name:       name,
		casts:      make(map[string]Cast),
		accessors:  make(map[string]Accessor),
		mutators:   make(map[string]Mutator),
		hidden:     make(map[string]struct{}),
		dateFormat: DefaultDateTimeFormat,
	}

	errs := errsx.Map{}
	for i, opt := range options {
		if err := opt(s); err != nil {
			errs.Set(fmt.Sprintf("option %d", i+1), err)
		}
	}
	if err := errs.AsError(); err != nil {
		return nil, fmt.Errorf("%w: schema '%s': %w", ErrInvalidSchema, name, err)
	}
	return s, nil
}

// WithCast declares a primitive cast (string, int, float, bool, json, date,
// datetime) for field.
func WithCast(field string, kind CastKind) SchemaOption {
	return func(s *Schema) error {
		if err := validateFieldName(field); err != nil {
			return err
		}
		switch kind {
		case CastString, CastInt, CastFloat, CastBool, CastJSON, CastDate, CastDateTime:
		case CastEnum, CastClass:
			return fmt.Errorf("cast %s for '%s' needs WithEnum or WithClassCast", kind, field)
		default:
			return fmt.Errorf("unknown cast %q for '%s'", kind, field)
		}
		s.casts[field] = Cast{Kind: kind}
		return nil
	}
}

// WithEnum declares field as an enum restricted to values.
func WithEnum(field string, values ...string) SchemaOption {
	return func(s *Schema) error {
		if err := validateFieldName(field); err != nil {
			return err
		}
		if len(values) == 0 {
			return fmt.Errorf("enum '%s' needs at least one value", field)
		}
		s.casts[field] = Cast{Kind: CastEnum, Enum: slices.Clone(values)}
		return nil
	}
}

// WithClassCast declares a custom caster for field.
func WithClassCast(field string, caster ClassCaster) SchemaOption {
	return func(s *Schema) error {
		if err := validateFieldName(field); err != nil {
			return err
		}
		if caster == nil {
			return fmt.Errorf("class caster for '%s' cannot be nil", field)
		}
		s.casts[field] = Cast{Kind: CastClass, Class: caster}
		return nil
	}
}

func WithAccessor(field string, fn Accessor) SchemaOption {
	return func(s *Schema) error {
		if err := validateFieldName(field); err != nil {
			return err
		}
		if fn == nil {
			return fmt.Errorf("accessor for '%s' cannot be nil", field)
		}
		s.accessors[field] = fn
		return nil
	}
}

func WithMutator(field string, fn Mutator) SchemaOption {
	return func(s *Schema) error {
		if err := validateFieldName(field); err != nil {
			return err
		}
		if fn == nil {
			return fmt.Errorf("mutator for '%s' cannot be nil", field)
		}
		s.mutators[field] = fn
		return nil
	}
}

// WithAppend adds a computed attribute to every export. Appends are computed
// in declaration order.
func WithAppend(name string, fn Appender) SchemaOption {
	return func(s *Schema) error {
		if err := validateFieldName(name); err != nil {
			return err
		}
		if fn == nil {
			return fmt.Errorf("appender for '%s' cannot be nil", name)
		}
		for _, a := range s.appends {
			if a.name == name {
				return fmt.Errorf("append '%s' declared twice", name)
			}
		}
		s.appends = append(s.appends, appendDef{name: name, fn: fn})
		return nil
	}
}

// WithHidden excludes fields from ToMap output.
func WithHidden(fields ...string) SchemaOption {
	return func(s *Schema) error {
		for _, f := range fields {
			if err := validateFieldName(f); err != nil {
				return err
			}
			s.hidden[f] = struct{}{}
		}
		return nil
	}
}

// WithDateFormat sets the storage layout of datetime fields.
func WithDateFormat(layout string) SchemaOption {
	return func(s *Schema) error {
		if layout == "" {
			return fmt.Errorf("date format cannot be empty")
		}
		s.dateFormat = layout
		return nil
	}
}

func validateFieldName(field string) error {
	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if strings.Contains(field, PathSeparator) {
		return fmt.Errorf("field name '%s' cannot contain %q", field, PathSeparator)
	}
	return nil
}

func (s *Schema) Name() string { return s.name }

func (s *Schema) Cast(field string) (Cast, bool) {
	c, ok := s.casts[field]
	return c, ok
}

func (s *Schema) Accessor(field string) (Accessor, bool) {
	fn, ok := s.accessors[field]
	return fn, ok
}

func (s *Schema) Mutator(field string) (Mutator, bool) {
	fn, ok := s.mutators[field]
	return fn, ok
}

func (s *Schema) IsHidden(field string) bool {
	_, ok := s.hidden[field]
	return ok
}

// IsDate reports whether field is cast to date or datetime.
func (s *Schema) IsDate(field string) bool {
	c, ok := s.casts[field]
	return ok && (c.Kind == CastDate || c.Kind == CastDateTime)
}

// DateFormat returns the storage layout for datetime fields.
func (s *Schema) DateFormat() string { return s.dateFormat }

// Appends returns the names of appended attributes in declaration order.
func (s *Schema) Appends() []string {
	names := make([]string, len(s.appends))
	for i, a := range s.appends {
		names[i] = a.name
	}
	return names
}
