package store

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/schema"
)

// UpdateProblem selects its columns explicitly so zero values persist;
// every editable Problem field must be in that list, or clearing it
// silently stops working.
func TestProblemColumnsCoverEveryEditableField(t *testing.T) {
	managed := map[string]bool{"id": true, "created_at": true, "updated_at": true}
	naming := schema.NamingStrategy{}

	var want []string
	typ := reflect.TypeOf(Problem{})
	for i := 0; i < typ.NumField(); i++ {
		col := naming.ColumnName("", typ.Field(i).Name)
		if !managed[col] {
			want = append(want, col)
		}
	}

	assert.ElementsMatch(t, want, problemColumns)
	assert.Contains(t, problemColumns, "description")
	assert.Contains(t, problemColumns, "starter_code")
}
