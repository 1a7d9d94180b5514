package dbcrypt

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hengadev/errsx"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt/attribute"
)

// Stages installed into an attribute.Pipeline by Interceptor.Install.
const (
	// StageDecrypt runs on the read path right before the cast stage.
	StageDecrypt attribute.StageName = "dbcrypt.decrypt"
	// StagePathGuard runs on the write path right before the dotted path stage.
	StagePathGuard attribute.StageName = "dbcrypt.path_guard"
	// StageEncrypt runs on the write path right before the store stage.
	StageEncrypt attribute.StageName = "dbcrypt.encrypt"
	// StageExportDecrypt runs on the export path right before date formatting.
	StageExportDecrypt attribute.StageName = "dbcrypt.export_decrypt"
)

// Interceptor encrypts the encryptable fields of one entity type on write and
// decrypts them on read and export. It is installed into a pipeline as a set
// of named stages and holds no per-entity state.
type Interceptor struct {
	entity      string
	fields      []string
	encryptable map[string]struct{}
	transformer *Transformer
	logger      *zap.Logger
	castBypass  bool
}

// NewInterceptor returns an interceptor for the named entity type. The
// encryptable field list is copied and cannot change afterwards.
func NewInterceptor(entity string, fields []string, transformer *Transformer, options ...Option) (*Interceptor, error) {
	if transformer == nil {
		return nil, fmt.Errorf("%w: transformer is required", ErrInvalidConfiguration)
	}
	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	errs := errsx.Map{}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		switch {
		case strings.TrimSpace(f) == "":
			errs.Set("fields", "encryptable field name cannot be empty")
		case strings.Contains(f, attribute.PathSeparator):
			errs.Set(f, fmt.Sprintf("encryptable field cannot contain %q", attribute.PathSeparator))
		default:
			if _, dup := set[f]; dup {
				errs.Set(f, "declared encryptable twice")
			}
			set[f] = struct{}{}
		}
	}
	if err := errs.AsError(); err != nil {
		return nil, fmt.Errorf("%w: entity '%s': %w", ErrInvalidConfiguration, entity, err)
	}

	return &Interceptor{
		entity:      entity,
		fields:      slices.Clone(fields),
		encryptable: set,
		transformer: transformer,
		logger:      s.zapLogger(),
		castBypass:  s.castBypass,
	}, nil
}

// IsEncryptable reports whether key is one of the encryptable fields.
func (i *Interceptor) IsEncryptable(key string) bool {
	_, ok := i.encryptable[key]
	return ok
}

// Fields returns the encryptable fields in declaration order.
func (i *Interceptor) Fields() []string {
	return slices.Clone(i.fields)
}

// Validate reports every encryptable field whose writes would skip encryption
// because an earlier write stage handles them: enum, class and JSON casts and
// set mutators. With WithCastBypass the conflicts are logged instead.
func (i *Interceptor) Validate(schema *attribute.Schema) error {
	errs := errsx.Map{}
	for _, f := range i.fields {
		var reasons []string
		if c, ok := schema.Cast(f); ok {
			switch c.Kind {
			case attribute.CastEnum, attribute.CastClass, attribute.CastJSON:
				reasons = append(reasons, fmt.Sprintf("%s cast", c.Kind))
			}
		}
		if _, ok := schema.Mutator(f); ok {
			reasons = append(reasons, "set mutator")
		}
		if len(reasons) == 0 {
			continue
		}
		msg := "encryptable field is handled by " + strings.Join(reasons, " and ") + " and would be stored unencrypted"
		if i.castBypass {
			i.logger.Warn("encryption bypassed for field",
				zap.String("entity", i.entity),
				zap.String("field", f),
				zap.Strings("handled_by", reasons),
			)
			continue
		}
		errs.Set(f, msg)
	}
	if err := errs.AsError(); err != nil {
		return fmt.Errorf("%w: entity '%s': %w", ErrInvalidConfiguration, i.entity, err)
	}
	return nil
}

// Install inserts the interceptor stages into p. Installing twice into the
// same pipeline fails, so each value is transformed at most once per operation.
func (i *Interceptor) Install(p *attribute.Pipeline) error {
	steps := []func() error{
		func() error {
			return p.InsertGetBefore(attribute.StageCast, attribute.Stage{Name: StageDecrypt, Run: i.decryptStage})
		},
		func() error {
			return p.InsertSetBefore(attribute.StagePath, attribute.Stage{Name: StagePathGuard, Run: i.pathGuardStage})
		},
		func() error {
			return p.InsertSetBefore(attribute.StageStore, attribute.Stage{Name: StageEncrypt, Run: i.encryptStage})
		},
		func() error {
			return p.InsertExportBefore(attribute.StageFormatDates, attribute.ExportStage{Name: StageExportDecrypt, Run: i.exportDecryptStage})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("%w: install interceptor for '%s': %w", ErrInvalidConfiguration, i.entity, err)
		}
	}
	return nil
}

// decryptStage decrypts the stored value. When decryption fails the stored
// value is returned as the final result so later casts never see ciphertext.
func (i *Interceptor) decryptStage(ctx context.Context, m *attribute.Model, key string, value any) (any, bool, error) {
	r := i.inspect(ctx, key, value)
	if r.Outcome == PassthroughFailed {
		return r.Value, true, nil
	}
	return r.Value, false, nil
}

func (i *Interceptor) pathGuardStage(_ context.Context, _ *attribute.Model, key string, value any) (any, bool, error) {
	column, segments := attribute.SplitPath(key)
	if len(segments) == 0 || !i.IsEncryptable(column) {
		return value, false, nil
	}
	if i.castBypass {
		i.logger.Warn("dotted write into encrypted column stored unencrypted",
			zap.String("entity", i.entity),
			zap.String("key", key),
		)
		return value, false, nil
	}
	return nil, true, NewEncryptedPathWriteError(key, column)
}

func (i *Interceptor) encryptStage(ctx context.Context, _ *attribute.Model, key string, value any) (any, bool, error) {
	if !i.IsEncryptable(key) || value == nil {
		return value, false, nil
	}
	return i.transformer.encrypt(ctx, i.entity, key, value).Value, false, nil
}

func (i *Interceptor) exportDecryptStage(ctx context.Context, _ *attribute.Model, snap *attribute.Snapshot) error {
	for _, key := range snap.Keys() {
		if snap.Settled(key) || !i.IsEncryptable(key) {
			continue
		}
		r := i.transformer.decrypt(ctx, i.entity, key, snap.Values[key])
		snap.Values[key] = r.Value
		if r.Outcome == PassthroughFailed {
			snap.Settle(key)
		}
	}
	return nil
}

// inspect runs the read-path decrypt step on value and reports its outcome.
func (i *Interceptor) inspect(ctx context.Context, key string, value any) Result {
	if !i.IsEncryptable(key) {
		return Result{Value: value, Outcome: NotEncryptable}
	}
	return i.transformer.decrypt(ctx, i.entity, key, value)
}
