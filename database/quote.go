package database

import "strings"

// QuoteIdent экранирует идентификатор SQL двойными кавычками
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral экранирует строковый литерал SQL одинарными кавычками
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// QualifiedName возвращает имя таблицы вместе со схемой
func QualifiedName(schema, table string) string {
	if schema == "" {
		return QuoteIdent(table)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}

// ColumnList возвращает список колонок через запятую
func ColumnList(columns []Column) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = QuoteIdent(c.Name)
	}
	return strings.Join(names, ", ")
}

// OrderByAll возвращает выражение сортировки по всем колонкам, NULL в конце
func OrderByAll(columns []Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = QuoteIdent(c.Name) + " ASC NULLS LAST"
	}
	return strings.Join(parts, ", ")
}
