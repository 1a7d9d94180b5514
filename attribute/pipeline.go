package attribute

import (
	"context"
	"fmt"
	"slices"
)

// StageName identifies a stage within a pipeline operation.
type StageName string

const (
	// Read path
	StageAccessor StageName = "accessor"
	StageCast     StageName = "cast"
	StageDate     StageName = "date"

	// Write path
	StageMutator   StageName = "mutator"
	StageDateInput StageName = "date_input"
	StageEnum      StageName = "enum"
	StageClass     StageName = "class"
	StageJSON      StageName = "json"
	StagePath      StageName = "path"
	StageStore     StageName = "store"

	// Export path
	StageExportAccessors StageName = "export_accessors"
	StageFormatDates     StageName = "format_dates"
	StageExportCasts     StageName = "export_casts"
	StageAppends         StageName = "appends"
)

// StageFunc transforms the value of key. Returning done stops the chain: on the
// read path out is the final value, on the write path the stage has already
// stored whatever it needed to.
type StageFunc func(ctx context.Context, m *Model, key string, value any) (out any, done bool, err error)

// Stage is a named step of the read or write path.
type Stage struct {
	Name StageName
	Run  StageFunc
}

// ExportFunc transforms an export snapshot in place.
type ExportFunc func(ctx context.Context, m *Model, snap *Snapshot) error

// ExportStage is a named step of the export path.
type ExportStage struct {
	Name StageName
	Run  ExportFunc
}

// Pipeline is the ordered list of stages run for each attribute operation.
// A pipeline is configured once and then shared, read-only, by models.
type Pipeline struct {
	get    []Stage
	set    []Stage
	export []ExportStage
}

// NewPipeline returns the default pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		get: []Stage{
			{Name: StageAccessor, Run: accessorStage},
			{Name: StageCast, Run: castStage},
			{Name: StageDate, Run: dateStage},
		},
		set: []Stage{
			{Name: StageMutator, Run: mutatorStage},
			{Name: StageDateInput, Run: dateInputStage},
			{Name: StageEnum, Run: enumStage},
			{Name: StageClass, Run: classStage},
			{Name: StageJSON, Run: jsonStage},
			{Name: StagePath, Run: pathStage},
			{Name: StageStore, Run: storeStage},
		},
		export: []ExportStage{
			{Name: StageExportAccessors, Run: exportAccessorsStage},
			{Name: StageFormatDates, Run: formatDatesStage},
			{Name: StageExportCasts, Run: exportCastsStage},
			{Name: StageAppends, Run: appendsStage},
		},
	}
}

// Clone returns an independent copy of the pipeline.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{
		get:    slices.Clone(p.get),
		set:    slices.Clone(p.set),
		export: slices.Clone(p.export),
	}
}

// InsertGetBefore inserts s into the read path right before the stage named before.
func (p *Pipeline) InsertGetBefore(before StageName, s Stage) error {
	stages, err := insertStage(p.get, before, s)
	if err != nil {
		return fmt.Errorf("read path: %w", err)
	}
	p.get = stages
	return nil
}

// InsertSetBefore inserts s into the write path right before the stage named before.
func (p *Pipeline) InsertSetBefore(before StageName, s Stage) error {
	stages, err := insertStage(p.set, before, s)
	if err != nil {
		return fmt.Errorf("write path: %w", err)
	}
	p.set = stages
	return nil
}

// InsertExportBefore inserts s into the export path right before the stage named before.
func (p *Pipeline) InsertExportBefore(before StageName, s ExportStage) error {
	if s.Run == nil {
		return fmt.Errorf("export path: stage '%s' has no run function", s.Name)
	}
	idx := -1
	for i, st := range p.export {
		if st.Name == s.Name {
			return fmt.Errorf("export path: %w: %s", ErrDuplicateStage, s.Name)
		}
		if st.Name == before {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("export path: %w: %s", ErrStageNotFound, before)
	}
	p.export = slices.Insert(p.export, idx, s)
	return nil
}

func insertStage(stages []Stage, before StageName, s Stage) ([]Stage, error) {
	if s.Run == nil {
		return nil, fmt.Errorf("stage '%s' has no run function", s.Name)
	}
	idx := -1
	for i, st := range stages {
		if st.Name == s.Name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name)
		}
		if st.Name == before {
			idx = i
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, before)
	}
	return slices.Insert(slices.Clone(stages), idx, s), nil
}

// GetStages returns the read path stage names in order.
func (p *Pipeline) GetStages() []StageName { return stageNames(p.get) }

// SetStages returns the write path stage names in order.
func (p *Pipeline) SetStages() []StageName { return stageNames(p.set) }

// ExportStages returns the export path stage names in order.
func (p *Pipeline) ExportStages() []StageName {
	names := make([]StageName, len(p.export))
	for i, s := range p.export {
		names[i] = s.Name
	}
	return names
}

func stageNames(stages []Stage) []StageName {
	names := make([]StageName, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func (p *Pipeline) runGet(ctx context.Context, m *Model, key string) (any, error) {
	value := m.attrs[key]
	for _, s := range p.get {
		out, done, err := s.Run(ctx, m, key, value)
		if err != nil {
			return nil, fmt.Errorf("get '%s' (%s): %w", key, s.Name, err)
		}
		value = out
		if done {
			break
		}
	}
	return value, nil
}

func (p *Pipeline) runSet(ctx context.Context, m *Model, key string, value any) error {
	for _, s := range p.set {
		out, done, err := s.Run(ctx, m, key, value)
		if err != nil {
			return fmt.Errorf("set '%s' (%s): %w", key, s.Name, err)
		}
		if done {
			return nil
		}
		value = out
	}
	m.attrs[key] = value
	return nil
}

func (p *Pipeline) runExport(ctx context.Context, m *Model) (map[string]any, error) {
	snap := newSnapshot(m)
	for _, s := range p.export {
		if err := s.Run(ctx, m, snap); err != nil {
			return nil, fmt.Errorf("export (%s): %w", s.Name, err)
		}
	}
	return snap.Values, nil
}

// Snapshot is the working copy of an export. Stages may settle a key to keep
// later stages from transforming its value further.
type Snapshot struct {
	Values  map[string]any
	settled map[string]struct{}
}

func newSnapshot(m *Model) *Snapshot {
	values := make(map[string]any, len(m.attrs))
	for k, v := range m.attrs {
		if m.schema.IsHidden(k) {
			continue
		}
		values[k] = v
	}
	return &Snapshot{Values: values, settled: make(map[string]struct{})}
}

// Settle marks key as final for the remaining export stages.
func (s *Snapshot) Settle(key string) { s.settled[key] = struct{}{} }

// Settled reports whether key was settled by an earlier stage.
func (s *Snapshot) Settled(key string) bool {
	_, ok := s.settled[key]
	return ok
}

// Keys returns the snapshot keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
