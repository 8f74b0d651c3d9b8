package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    Path
		wantErr bool
	}{
		{
			name: "single field",
			expr: "amount",
			want: Path{{Field: "amount"}},
		},
		{
			name: "dotted path",
			expr: "data.total",
			want: Path{{Field: "data"}, {Field: "total"}},
		},
		{
			name: "indexed segment",
			expr: "data.items[0].correlation_id",
			want: Path{
				{Field: "data"},
				{Field: "items", Index: 0, HasIndex: true},
				{Field: "correlation_id"},
			},
		},
		{
			name:    "empty",
			expr:    "",
			wantErr: true,
		},
		{
			name:    "empty segment",
			expr:    "a..b",
			wantErr: true,
		},
		{
			name:    "unterminated index",
			expr:    "items[0",
			wantErr: true,
		},
		{
			name:    "negative index",
			expr:    "items[-1]",
			wantErr: true,
		},
		{
			name:    "index without field",
			expr:    "[0]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	root := map[string]any{
		"data": map[string]any{
			"items": []any{
				map[string]any{"correlation_id": "corr-1"},
				map[string]any{"correlation_id": "corr-2"},
			},
			"total": 42.5,
		},
		"name": "order",
	}

	tests := []struct {
		name    string
		expr    string
		want    any
		wantErr bool
	}{
		{name: "scalar", expr: "name", want: "order"},
		{name: "nested", expr: "data.total", want: 42.5},
		{name: "indexed", expr: "data.items[1].correlation_id", want: "corr-2"},
		{name: "missing field", expr: "data.missing", wantErr: true},
		{name: "index out of range", expr: "data.items[9].correlation_id", wantErr: true},
		{name: "index on scalar", expr: "name[0]", wantErr: true},
		{name: "field on scalar", expr: "data.total.x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup(tt.expr, root)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotFound)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	path, err := Parse("data.items[3].id")
	require.NoError(t, err)
	assert.Equal(t, "data.items[3].id", path.String())
}
