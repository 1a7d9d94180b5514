package attribute

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthrough(_ context.Context, _ *Model, _ string, v any) (any, bool, error) {
	return v, false, nil
}

func TestNewPipelineOrder(t *testing.T) {
	p := NewPipeline()

	assert.Equal(t, []StageName{StageAccessor, StageCast, StageDate}, p.GetStages())
	assert.Equal(t, []StageName{
		StageMutator, StageDateInput, StageEnum, StageClass, StageJSON, StagePath, StageStore,
	}, p.SetStages())
	assert.Equal(t, []StageName{
		StageExportAccessors, StageFormatDates, StageExportCasts, StageAppends,
	}, p.ExportStages())
}

func TestInsertStages(t *testing.T) {
	tests := []struct {
		name    string
		insert  func(p *Pipeline) error
		check   func(t *testing.T, p *Pipeline)
		wantErr error
	}{
		{
			name: "read path before cast",
			insert: func(p *Pipeline) error {
				return p.InsertGetBefore(StageCast, Stage{Name: "x", Run: passthrough})
			},
			check: func(t *testing.T, p *Pipeline) {
				assert.Equal(t, []StageName{StageAccessor, "x", StageCast, StageDate}, p.GetStages())
			},
		},
		{
			name: "write path before store",
			insert: func(p *Pipeline) error {
				return p.InsertSetBefore(StageStore, Stage{Name: "x", Run: passthrough})
			},
			check: func(t *testing.T, p *Pipeline) {
				stages := p.SetStages()
				assert.Equal(t, StageName("x"), stages[len(stages)-2])
			},
		},
		{
			name: "export path before dates",
			insert: func(p *Pipeline) error {
				return p.InsertExportBefore(StageFormatDates, ExportStage{
					Name: "x",
					Run:  func(context.Context, *Model, *Snapshot) error { return nil },
				})
			},
			check: func(t *testing.T, p *Pipeline) {
				assert.Equal(t, []StageName{StageExportAccessors, "x", StageFormatDates, StageExportCasts, StageAppends}, p.ExportStages())
			},
		},
		{
			name: "unknown anchor",
			insert: func(p *Pipeline) error {
				return p.InsertGetBefore("missing", Stage{Name: "x", Run: passthrough})
			},
			wantErr: ErrStageNotFound,
		},
		{
			name: "duplicate stage",
			insert: func(p *Pipeline) error {
				return p.InsertGetBefore(StageDate, Stage{Name: StageCast, Run: passthrough})
			},
			wantErr: ErrDuplicateStage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline()
			err := tt.insert(p)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	base := NewPipeline()
	clone := base.Clone()

	require.NoError(t, clone.InsertGetBefore(StageCast, Stage{Name: "x", Run: passthrough}))

	assert.Len(t, base.GetStages(), 3)
	assert.Len(t, clone.GetStages(), 4)
}

func TestInsertedStageRunsInOrder(t *testing.T) {
	schema, err := NewSchema("order", WithCast("n", CastInt))
	require.NoError(t, err)

	var seen any
	p := NewPipeline()
	require.NoError(t, p.InsertGetBefore(StageCast, Stage{
		Name: "observe",
		Run: func(_ context.Context, _ *Model, _ string, v any) (any, bool, error) {
			seen = v
			return "42", false, nil
		},
	}))

	m := Hydrate(schema, p, NewModel(schema, nil).ID(), map[string]any{"n": "raw"})
	got, err := m.Get(context.Background(), "n")
	require.NoError(t, err)

	assert.Equal(t, "raw", seen)
	assert.Equal(t, int64(42), got)
}
