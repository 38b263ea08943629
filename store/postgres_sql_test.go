package store

import (
	"fmt"
	"strings"
	"testing"
)

// TestBuildEnsureVectorSQL_ContainsExpectedFragments verifies that the
// generated SQL targets the expected table/column and embeds the
// requested dimension.
func TestBuildEnsureVectorSQL_ContainsExpectedFragments(t *testing.T) {
	tests := []struct {
		name string
		dim  int
	}{
		{name: "1536", dim: 1536},
		{name: "1792", dim: 1792},
		{name: "3072", dim: 3072},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql := buildEnsureVectorSQL(tt.dim)

			// Quick sanity: ensure formatting didn't produce fmt error markers.
			if strings.Contains(sql, "%!") {
				t.Fatalf("generated SQL contains fmt error marker: %q", sql)
			}

			expected := []string{
				"DO $$",
				"FROM pg_attribute",
				"attrelid = 'document_embeddings'::regclass",
				"attname = 'vector'",
				"IS DISTINCT FROM",
				"ALTER TABLE document_embeddings ALTER COLUMN vector TYPE vector(",
			}

			for _, frag := range expected {
				if !strings.Contains(sql, frag) {
					t.Fatalf("expected SQL to contain %q, got: %q", frag, sql)
				}
			}

			if !strings.Contains(sql, fmt.Sprintf("vector(%d)", tt.dim)) {
				t.Fatalf("expected SQL to contain vector(%d), got: %q", tt.dim, sql)
			}
		})
	}
}
