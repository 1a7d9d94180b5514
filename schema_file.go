package dbcrypt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hengadev/errsx"
	"gopkg.in/yaml.v3"

	"github.com/hengadev/dbcrypt/attribute"
)

// SchemaFile is the YAML document declaring entity types:
//
//	entities:
//	  - name: user
//	    encrypted: [ssn, phone]
//	    casts:
//	      age: int
//	      born_on: date
//	      settings: json
//	    enums:
//	      status: [active, banned]
//	    hidden: [password]
//	    date_format: "2006-01-02 15:04:05"
type SchemaFile struct {
	Entities []EntityDefinition `yaml:"entities"`
}

// EntityDefinition declares one entity type.
type EntityDefinition struct {
	Name       string              `yaml:"name"`
	Encrypted  []string            `yaml:"encrypted"`
	Casts      map[string]string   `yaml:"casts"`
	Enums      map[string][]string `yaml:"enums"`
	Hidden     []string            `yaml:"hidden"`
	DateFormat string              `yaml:"date_format"`
}

// ParseSchemaFile decodes a schema document. Unknown keys are rejected.
func ParseSchemaFile(r io.Reader) (*SchemaFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f SchemaFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: schema file is empty", ErrInvalidConfiguration)
		}
		return nil, fmt.Errorf("%w: parse schema file: %w", ErrInvalidConfiguration, err)
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("%w: schema file declares no entities", ErrInvalidConfiguration)
	}
	return &f, nil
}

// Schema builds the attribute schema of the definition.
func (d EntityDefinition) Schema() (*attribute.Schema, error) {
	var opts []attribute.SchemaOption

	fields := make([]string, 0, len(d.Casts))
	for f := range d.Casts {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		opts = append(opts, attribute.WithCast(f, attribute.CastKind(d.Casts[f])))
	}

	enums := make([]string, 0, len(d.Enums))
	for f := range d.Enums {
		enums = append(enums, f)
	}
	sort.Strings(enums)
	for _, f := range enums {
		opts = append(opts, attribute.WithEnum(f, d.Enums[f]...))
	}

	if len(d.Hidden) > 0 {
		opts = append(opts, attribute.WithHidden(d.Hidden...))
	}
	if d.DateFormat != "" {
		opts = append(opts, attribute.WithDateFormat(d.DateFormat))
	}
	return attribute.NewSchema(d.Name, opts...)
}

// Build creates the entity type of the definition.
func (d EntityDefinition) Build(cipher Cipher, options ...Option) (*EntityType, error) {
	schema, err := d.Schema()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return NewEntityType(schema, d.Encrypted, cipher, options...)
}

// LoadEntityTypes parses a schema document and builds every entity type it
// declares, keyed by name. All invalid definitions are reported together.
func LoadEntityTypes(r io.Reader, cipher Cipher, options ...Option) (map[string]*EntityType, error) {
	f, err := ParseSchemaFile(r)
	if err != nil {
		return nil, err
	}

	types := make(map[string]*EntityType, len(f.Entities))
	errs := errsx.Map{}
	for i, d := range f.Entities {
		if _, dup := types[d.Name]; dup {
			errs.Set(d.Name, "entity declared twice")
			continue
		}
		t, err := d.Build(cipher, options...)
		if err != nil {
			key := d.Name
			if key == "" {
				key = fmt.Sprintf("entities[%d]", i)
			}
			errs.Set(key, err)
			continue
		}
		types[d.Name] = t
	}
	if err := errs.AsError(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return types, nil
}

// LoadEntityTypesFile is LoadEntityTypes reading from path.
func LoadEntityTypesFile(path string, cipher Cipher, options ...Option) (map[string]*EntityType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return LoadEntityTypes(bytes.NewReader(data), cipher, options...)
}
