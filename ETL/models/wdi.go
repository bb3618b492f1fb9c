package models

// PopulationRecord представляет строку population_data.parquet
type PopulationRecord struct {
	CountryCode string `json:"country_code"`
	// nil, если Всемирный банк не опубликовал значение
	Population *int64 `json:"population"`
}

// IndicatorPagination описывает первый элемент ответа API Всемирного банка
type IndicatorPagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// IndicatorRecord описывает одну запись индикатора в ответе API
type IndicatorRecord struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3Code *string  `json:"countryiso3code"`
	Date            string   `json:"date"`
	Value           *float64 `json:"value"`
}

// IndicatorPage содержит одну страницу ответа API
type IndicatorPage struct {
	Pagination IndicatorPagination
	Records    []IndicatorRecord
}

// Frame представляет таблицу, загруженную из Parquet и отсортированную по всем колонкам
type Frame struct {
	Columns []string
	// Типы колонок DuckDB в том же порядке, что и Columns
	Types []string
	Rows  [][]interface{}
}

// NumRows возвращает количество строк
func (f *Frame) NumRows() int {
	return len(f.Rows)
}

// CheckStatus представляет результат сравнения локального и удаленного файла
type CheckStatus string

const (
	// CheckSame файлы совпадают
	CheckSame CheckStatus = "="
	// CheckMissing файл отсутствует в удаленном хранилище
	CheckMissing CheckStatus = "+"
	// CheckDiffers содержимое отличается
	CheckDiffers CheckStatus = "*"
)
