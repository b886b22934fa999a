package repository

import (
	"context"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

const (
	TableInvoices  = "invoices"
	TableLineItems = "line_items"
)

// decimalType stores amounts exactly: unconstrained numeric on PostgreSQL and
// the decimal string on SQLite, whose numeric affinity would convert to REAL.
var decimalType = map[string]string{
	dialect.Postgres: "numeric",
	dialect.SQLite:   "text",
}

var (
	// InvoicesColumns holds the columns for the "invoices" table.
	InvoicesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "file_path", Type: field.TypeString},
		{Name: "original_filename", Type: field.TypeString, Default: ""},
		{Name: "mime_type", Type: field.TypeString, Default: ""},
		{Name: "file_size", Type: field.TypeInt64, Default: 0},
		{Name: "file_sha256", Type: field.TypeString, Default: ""},
		{Name: "supplier_name", Type: field.TypeString, Nullable: true},
		{Name: "invoice_number", Type: field.TypeString, Nullable: true},
		{Name: "invoice_date", Type: field.TypeTime, Nullable: true, SchemaType: map[string]string{dialect.Postgres: "date", dialect.SQLite: "date"}},
		{Name: "currency", Type: field.TypeString, Size: 3},
		{Name: "subtotal", Type: field.TypeOther, SchemaType: decimalType},
		{Name: "total", Type: field.TypeOther, SchemaType: decimalType},
		{Name: "confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "status", Type: field.TypeEnum, Enums: statusEnums(), Default: string(constants.InvoiceStatusUploaded)},
		{Name: "raw_output", Type: field.TypeJSON, Nullable: true},
		{Name: "model_name", Type: field.TypeString, Nullable: true},
		{Name: "extracted_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// InvoicesTable holds the schema information for the "invoices" table.
	InvoicesTable = &schema.Table{
		Name:       TableInvoices,
		Columns:    InvoicesColumns,
		PrimaryKey: []*schema.Column{InvoicesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "invoice_status_created_at",
				Unique:  false,
				Columns: []*schema.Column{InvoicesColumns[13], InvoicesColumns[17]},
			},
		},
	}
	// LineItemsColumns holds the columns for the "line_items" table.
	LineItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "position", Type: field.TypeInt, Default: 0},
		{Name: "description", Type: field.TypeString, Default: ""},
		{Name: "quantity", Type: field.TypeOther, SchemaType: decimalType},
		{Name: "unit_price", Type: field.TypeOther, SchemaType: decimalType},
		{Name: "line_total", Type: field.TypeOther, SchemaType: decimalType},
		{Name: "confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "invoice_id", Type: field.TypeUUID},
	}
	// LineItemsTable holds the schema information for the "line_items" table.
	LineItemsTable = &schema.Table{
		Name:       TableLineItems,
		Columns:    LineItemsColumns,
		PrimaryKey: []*schema.Column{LineItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "line_items_invoices_line_items",
				Columns:    []*schema.Column{LineItemsColumns[8]},
				RefColumns: []*schema.Column{InvoicesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "lineitem_invoice_id_position",
				Unique:  false,
				Columns: []*schema.Column{LineItemsColumns[8], LineItemsColumns[1]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		InvoicesTable,
		LineItemsTable,
	}
)

func init() {
	LineItemsTable.ForeignKeys[0].RefTable = InvoicesTable
}

func statusEnums() []string {
	out := make([]string, len(constants.InvoiceStatuses))
	for i, s := range constants.InvoiceStatuses {
		out[i] = string(s)
	}
	return out
}

// Migrate creates or extends the invoices and line_items tables.
func Migrate(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	logger.Info("running schema migration", "dialect", drv.Dialect())
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		logger.Error("failed to prepare migration", "error", err)
		return err
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		return err
	}
	logger.Info("schema migration complete")
	return nil
}
