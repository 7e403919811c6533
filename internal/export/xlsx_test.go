package export

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kosarica/deal-service/internal/types"
)

func TestWriteXLSX(t *testing.T) {
	listings := []types.Listing{
		{Name: "Laptop A", Price: decimal.RequireFromString("1499.90"), Store: "ripley", URL: "https://ripley.example/a", DiscountPercent: types.IntPtr(15)},
		{Name: "Laptop B", Price: decimal.RequireFromString("1999"), Store: "falabella", URL: "https://falabella.example/b", Image: types.StringPtr("https://img.example/b.jpg")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "laptop", listings))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"#", "Product", "Store", "Price", "Discount %", "URL", "Image"}, rows[0])
	assert.Equal(t, "Laptop A", rows[1][1])
	assert.Equal(t, "1499.9", rows[1][3])
	assert.Equal(t, "15", rows[1][4])
	assert.Equal(t, "falabella", rows[2][2])
	assert.Equal(t, "https://img.example/b.jpg", rows[2][6])

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "laptop", props.Title)
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "nothing", nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
