package attribute

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

func accessorStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	fn, ok := m.schema.Accessor(key)
	if !ok {
		return value, false, nil
	}
	out, err := fn(value)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

func castStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	c, ok := m.schema.Cast(key)
	if !ok || c.Kind == CastDate || c.Kind == CastDateTime {
		return value, false, nil
	}
	out, err := castValue(key, c, value)
	return out, false, err
}

func dateStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	if !m.schema.IsDate(key) || value == nil || value == "" {
		return value, false, nil
	}
	t, err := parseDate(value, m.schema.DateFormat())
	if err != nil {
		c, _ := m.schema.Cast(key)
		return nil, false, newCastError(key, c.Kind, value, err)
	}
	return t, false, nil
}

func mutatorStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	fn, ok := m.schema.Mutator(key)
	if !ok {
		return value, false, nil
	}
	out, err := fn(value)
	if err != nil {
		return nil, true, err
	}
	m.attrs[key] = out
	return out, true, nil
}

func dateInputStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	if !m.schema.IsDate(key) || value == nil || value == "" {
		return value, false, nil
	}
	c, _ := m.schema.Cast(key)
	s, err := storageDate(value, c.Kind, m.schema.DateFormat())
	if err != nil {
		return nil, true, newCastError(key, c.Kind, value, err)
	}
	return s, false, nil
}

func enumStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	c, ok := m.schema.Cast(key)
	if !ok || c.Kind != CastEnum {
		return value, false, nil
	}
	if value == nil {
		m.attrs[key] = nil
		return nil, true, nil
	}
	s := toString(value)
	if !slices.Contains(c.Enum, s) {
		return nil, true, fmt.Errorf("%w: '%s' is not a valid value for '%s'", ErrInvalidEnumValue, s, key)
	}
	m.attrs[key] = s
	return s, true, nil
}

func classStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	c, ok := m.schema.Cast(key)
	if !ok || c.Kind != CastClass {
		return value, false, nil
	}
	attrs, err := c.Class.Set(key, value)
	if err != nil {
		return nil, true, newCastError(key, c.Kind, value, err)
	}
	for k, v := range attrs {
		m.attrs[k] = v
	}
	return value, true, nil
}

func jsonStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	c, ok := m.schema.Cast(key)
	if !ok || c.Kind != CastJSON || value == nil {
		return value, false, nil
	}
	if s, isString := value.(string); isString {
		if !json.Valid([]byte(s)) {
			return nil, true, newCastError(key, c.Kind, value, fmt.Errorf("not valid JSON"))
		}
		m.attrs[key] = s
		return s, true, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, true, newCastError(key, c.Kind, value, err)
	}
	m.attrs[key] = string(data)
	return string(data), true, nil
}

func pathStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	if !strings.Contains(key, PathSeparator) {
		return value, false, nil
	}
	if err := m.fillPath(key, value); err != nil {
		return nil, true, err
	}
	return value, true, nil
}

func storeStage(_ context.Context, m *Model, key string, value any) (any, bool, error) {
	m.attrs[key] = value
	return value, true, nil
}

func exportAccessorsStage(_ context.Context, m *Model, snap *Snapshot) error {
	for _, key := range snap.Keys() {
		fn, ok := m.schema.Accessor(key)
		if !ok {
			continue
		}
		out, err := fn(snap.Values[key])
		if err != nil {
			return fmt.Errorf("accessor '%s': %w", key, err)
		}
		snap.Values[key] = out
		snap.Settle(key)
	}
	return nil
}

func formatDatesStage(_ context.Context, m *Model, snap *Snapshot) error {
	for _, key := range snap.Keys() {
		value := snap.Values[key]
		if snap.Settled(key) || !m.schema.IsDate(key) || value == nil || value == "" {
			continue
		}
		t, err := parseDate(value, m.schema.DateFormat())
		if err != nil {
			c, _ := m.schema.Cast(key)
			return newCastError(key, c.Kind, value, err)
		}
		c, _ := m.schema.Cast(key)
		if c.Kind == CastDate {
			snap.Values[key] = t.Format(DateFormat)
		} else {
			snap.Values[key] = t.Format(SerializeDateFormat)
		}
		snap.Settle(key)
	}
	return nil
}

func exportCastsStage(_ context.Context, m *Model, snap *Snapshot) error {
	for _, key := range snap.Keys() {
		if snap.Settled(key) {
			continue
		}
		c, ok := m.schema.Cast(key)
		if !ok {
			continue
		}
		out, err := castValue(key, c, snap.Values[key])
		if err != nil {
			return err
		}
		snap.Values[key] = out
	}
	return nil
}

func appendsStage(ctx context.Context, m *Model, snap *Snapshot) error {
	for _, a := range m.schema.appends {
		v, err := a.fn(ctx, m)
		if err != nil {
			return fmt.Errorf("append '%s': %w", a.name, err)
		}
		snap.Values[a.name] = v
		snap.Settle(a.name)
	}
	return nil
}
