package rosapp

import "github.com/najoast/rosapp/table"

// Table layout
const (
	TableName = "RosAppTable"

	FieldInt1 = "Int1"
	FieldInt2 = "Int2"

	// TableElement1Max bounds Int1
	TableElement1Max = 10

	// TableOutOfRangeErrCode is reported when Int1 exceeds its bound
	TableOutOfRangeErrCode int32 = -1

	// NumberOfTables owned by the component
	NumberOfTables = 1
)

// DefaultTableFile is the image loaded at startup
const DefaultTableFile = "/cf/ros_app_tbl.tbl"

// TableSchema returns the component's table layout
func TableSchema() *table.Schema {
	return &table.Schema{
		Name: TableName,
		Fields: []table.Field{
			{Name: FieldInt1, Type: table.U16, Max: TableElement1Max},
			{Name: FieldInt2, Type: table.U16},
		},
	}
}

// ValidateTable accepts an image only when every field is within bounds
func ValidateTable(img *table.Image) error {
	return table.BoundsValidator(TableOutOfRangeErrCode)(img)
}
