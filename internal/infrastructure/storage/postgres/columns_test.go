package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"codeart/internal/core/entity"
	"codeart/internal/core/id"
)

type sampleRow struct {
	entity.BaseAggregate
	Name   string          `db:"name"`
	Amount decimal.Decimal `db:"amount"`
	Memo   string          `db:"-"`
	hidden string
}

func TestColumnsIncludeEmbeddedFields(t *testing.T) {
	cols := Columns[sampleRow]()
	assert.Equal(t, []string{"id", "version", "name", "amount"}, cols)

	assert.Equal(t, cols, Columns[*sampleRow](), "pointer types are dereferenced")
}

func TestColumnMap(t *testing.T) {
	row := sampleRow{
		BaseAggregate: entity.BaseAggregate{ID: id.New(), Version: 5},
		Name:          "n",
		Amount:        decimal.NewFromInt(3),
		Memo:          "skip",
		hidden:        "skip",
	}

	data := ColumnMap(&row)

	assert.Equal(t, row.ID, data["id"])
	assert.Equal(t, 5, data["version"])
	assert.Equal(t, "n", data["name"])
	assert.Equal(t, row.Amount, data["amount"])
	assert.NotContains(t, data, "memo")
	assert.Len(t, data, 4)
	assert.Nil(t, ColumnMap(42))
}

func TestColumnValuesFollowRequestedOrder(t *testing.T) {
	row := sampleRow{BaseAggregate: entity.BaseAggregate{Version: 2}, Name: "n"}

	values := ColumnValues(row, []string{"name", "version", "missing"})

	assert.Equal(t, []any{"n", 2, nil}, values)
}

func TestPickColumns(t *testing.T) {
	data := map[string]any{"id": 1, "version": 2, "name": "n", "extra": true}

	picked := PickColumns(data, []string{"id", "version", "name"}, "id", "version")

	assert.Equal(t, map[string]any{"name": "n"}, picked)
}
