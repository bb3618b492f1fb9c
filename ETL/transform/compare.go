package transform

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
)

// Tolerance задает допуски сравнения числовых значений
type Tolerance struct {
	RTol float64
	ATol float64
}

// DefaultTolerance допуски, с которыми сравниваются снимки витрин
var DefaultTolerance = Tolerance{RTol: 1e-5, ATol: 5e-4}

// FrameMismatchError описывает первое найденное расхождение таблиц
type FrameMismatchError struct {
	Reason string
}

func (e *FrameMismatchError) Error() string {
	return "таблицы различаются: " + e.Reason
}

func mismatch(format string, v ...interface{}) error {
	return &FrameMismatchError{Reason: fmt.Sprintf(format, v...)}
}

// FramesEqual сравнивает две таблицы, отсортированные по всем колонкам.
// Колонки и их типы должны совпадать точно, числа сравниваются с допуском.
// Возвращает nil, если таблицы равны, иначе *FrameMismatchError.
func FramesEqual(local, remote *models.Frame, tol Tolerance) error {
	if len(local.Columns) != len(remote.Columns) {
		return mismatch("количество колонок %d != %d", len(local.Columns), len(remote.Columns))
	}
	for i := range local.Columns {
		if local.Columns[i] != remote.Columns[i] {
			return mismatch("колонка %d: %q != %q", i, local.Columns[i], remote.Columns[i])
		}
	}
	if len(local.Types) == len(remote.Types) {
		for i := range local.Types {
			if local.Types[i] != remote.Types[i] {
				return mismatch("тип колонки %q: %s != %s", local.Columns[i], local.Types[i], remote.Types[i])
			}
		}
	}
	if local.NumRows() != remote.NumRows() {
		return mismatch("количество строк %d != %d", local.NumRows(), remote.NumRows())
	}

	for r := range local.Rows {
		left, right := local.Rows[r], remote.Rows[r]
		for c := range local.Columns {
			if !valuesClose(left[c], right[c], tol) {
				return mismatch("строка %d, колонка %q: %v != %v", r, local.Columns[c], left[c], right[c])
			}
		}
	}
	return nil
}

// valuesClose сравнивает два значения ячеек
func valuesClose(a, b interface{}, tol Tolerance) bool {
	aNull, bNull := isNull(a), isNull(b)
	if aNull || bNull {
		return aNull && bNull
	}

	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return floatsClose(fa, fb, tol)
	}
	if aNum != bNum {
		return false
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// floatsClose повторяет math.isclose: |a-b| <= max(rtol*max(|a|,|b|), atol)
func floatsClose(a, b float64, tol Tolerance) bool {
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	diff := math.Abs(a - b)
	return diff <= math.Max(tol.RTol*math.Max(math.Abs(a), math.Abs(b)), tol.ATol)
}

// isNull считает NULL и NaN пропущенными значениями
func isNull(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// toFloat приводит числовые значения драйвера DuckDB к float64
func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, true
	case interface{ Float64() float64 }:
		// duckdb.Decimal
		return x.Float64(), true
	}
	return 0, false
}
