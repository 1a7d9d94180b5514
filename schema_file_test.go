package dbcrypt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaYAML = `
entities:
  - name: user
    encrypted: [ssn, born_on]
    casts:
      age: int
      born_on: date
      settings: json
    enums:
      status: [active, banned]
    hidden: [password]
  - name: note
    encrypted: [body]
`

func TestLoadEntityTypes(t *testing.T) {
	ctx := context.Background()
	types, err := LoadEntityTypes(strings.NewReader(testSchemaYAML), NewTestKeyCipher(t))
	require.NoError(t, err)
	require.Len(t, types, 2)

	users := types["user"]
	require.NotNil(t, users)
	assert.Equal(t, []string{"ssn", "born_on"}, users.Encryptable())

	u, err := users.New(ctx, map[string]any{
		"ssn":      "123-45-6789",
		"born_on":  "1990-04-02",
		"age":      "30",
		"status":   "active",
		"password": "x",
	})
	require.NoError(t, err)

	raw, _ := u.Raw("ssn")
	assert.NotEqual(t, "123-45-6789", raw)

	out, err := u.ToMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"ssn":     "123-45-6789",
		"born_on": "1990-04-02",
		"age":     int64(30),
		"status":  "active",
	}, out)

	assert.True(t, types["note"].IsEncryptable("body"))
}

func TestLoadEntityTypesErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		errKeys []string
	}{
		{
			name: "empty document",
			doc:  "",
		},
		{
			name: "no entities",
			doc:  "entities: []\n",
		},
		{
			name: "unknown key",
			doc:  "entities:\n  - name: user\n    encrypt: [ssn]\n",
		},
		{
			name: "encrypted enum and duplicate",
			doc: `
entities:
  - name: user
    encrypted: [status]
    enums:
      status: [a, b]
  - name: user
    encrypted: [ssn]
`,
			errKeys: []string{"user"},
		},
		{
			name:    "unnamed entity",
			doc:     "entities:\n  - encrypted: [ssn]\n",
			errKeys: []string{"entities[0]"},
		},
		{
			name:    "unknown cast",
			doc:     "entities:\n  - name: user\n    casts:\n      age: decimal\n",
			errKeys: []string{"user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEntityTypes(strings.NewReader(tt.doc), NewTestKeyCipher(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)

			if len(tt.errKeys) == 0 {
				return
			}
			var errs errsx.Map
			require.ErrorAs(t, err, &errs)
			for _, k := range tt.errKeys {
				assert.Contains(t, errs, k)
			}
		})
	}
}

func TestLoadEntityTypesBypass(t *testing.T) {
	doc := "entities:\n  - name: user\n    encrypted: [settings]\n    casts:\n      settings: json\n"

	_, err := LoadEntityTypes(strings.NewReader(doc), NewTestKeyCipher(t))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	types, err := LoadEntityTypes(strings.NewReader(doc), NewTestKeyCipher(t), WithCastBypass())
	require.NoError(t, err)
	assert.Contains(t, types, "user")
}

func TestLoadEntityTypesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchemaYAML), 0o600))

	types, err := LoadEntityTypesFile(path, NewTestKeyCipher(t))
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = LoadEntityTypesFile(filepath.Join(t.TempDir(), "missing.yaml"), NewTestKeyCipher(t))
	assert.Error(t, err)
}
