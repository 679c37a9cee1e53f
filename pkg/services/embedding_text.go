package services

import (
	"fmt"
	"strings"

	"github.com/schemascope/schemascope-engine/pkg/models"
)

const tableSummaryColumnCap = 15

// BuildTableSummaryText renders the text a table embedding is computed over:
// identity, scale, a capped column inventory, and the business purpose.
func BuildTableSummaryText(table *models.TableNode, columns []*models.ColumnNode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s\n", table.Key)
	fmt.Fprintf(&b, "Catalog: %s, Schema: %s, Table: %s\n", table.Key.Catalog, table.Key.Schema, table.Key.Table)
	fmt.Fprintf(&b, "Row count: %d\n", table.RowCount)
	fmt.Fprintf(&b, "Column count: %d\n", table.ColumnCount)

	b.WriteString("\nColumns:\n")
	for i, col := range columns {
		if i == tableSummaryColumnCap {
			b.WriteString("... and more columns\n")
			break
		}
		colType := col.ColumnType
		if colType == "" {
			colType = "unknown"
		}
		semantic := ""
		if col.SemanticType != "" {
			semantic = " - " + col.SemanticType
		}
		aliases := ""
		if len(col.Aliases) > 0 {
			aliases = fmt.Sprintf(" (aliases: %s)", strings.Join(firstN(col.Aliases, 2), ", "))
		}
		fmt.Fprintf(&b, "%s (%s, %s%s)%s\n", col.Name, col.DataType, colType, semantic, aliases)
	}

	purpose := table.Summary
	if purpose == "" {
		purpose = fmt.Sprintf("Database table containing structured data with %d attributes across %d records.",
			table.ColumnCount, table.RowCount)
	}
	fmt.Fprintf(&b, "\nPurpose: %s", purpose)

	return b.String()
}

// BuildColumnEmbeddingText renders the text a column embedding is computed
// over: typing, description, aliases, and value shape.
func BuildColumnEmbeddingText(table models.TableKey, col *models.ColumnNode) string {
	colType := col.ColumnType
	if colType == "" {
		colType = "unknown"
	}
	semantic := col.SemanticType
	if semantic == "" {
		semantic = "none"
	}
	description := col.Description
	if description == "" {
		description = "No description"
	}

	aliases := "none"
	if len(col.Aliases) > 0 {
		aliases = strings.Join(firstN(col.Aliases, 3), ", ")
	}

	cardinality := "unknown"
	if col.Cardinality > 0 {
		cardinality = fmt.Sprintf("%d", col.Cardinality)
	}

	nullPct := 0.0
	if col.NullPercentage != nil {
		nullPct = *col.NullPercentage
	}

	samples := "no samples"
	if len(col.SampleValues) > 0 {
		samples = strings.Join(firstN(col.SampleValues, 5), ", ")
	}

	usage := "analysis and filtering"
	if colType == models.ColumnTypeIdentifier {
		usage = "identification"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Column: %s in table %s\n", col.Name, table)
	fmt.Fprintf(&b, "Data type: %s\n", col.DataType)
	fmt.Fprintf(&b, "Column type: %s\n", colType)
	fmt.Fprintf(&b, "Semantic type: %s\n", semantic)
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "Aliases: %s\n", aliases)
	fmt.Fprintf(&b, "Cardinality: %s\n", cardinality)
	fmt.Fprintf(&b, "Null percentage: %.1f%%\n", nullPct)
	fmt.Fprintf(&b, "Sample values: %s\n", samples)
	fmt.Fprintf(&b, "\nPurpose: A %s column that stores %s data, used for %s.", colType, semantic, usage)

	return b.String()
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
