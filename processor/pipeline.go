package processor

// DumpArchive содержит подготовленный к архивированию дамп
type DumpArchive struct {
	// SHA-256 исходного (несжатого) дампа
	Hash string
	// Дамп, сжатый Snappy
	Compressed []byte
	// Размер исходного дампа в байтах
	OriginalSize int
}

// ProcessDumpArchive объединяет два этапа обработки дампа:
// 1. Вычисление SHA-256 исходного текста (для сравнения с wdi.hash)
// 2. Сжатие текста с использованием Snappy (функция CompressDump из compress.go)
func ProcessDumpArchive(dump []byte) DumpArchive {
	return DumpArchive{
		Hash:         HashBytes(dump),
		Compressed:   CompressDump(dump),
		OriginalSize: len(dump),
	}
}

// RestoreDumpArchive выполняет обратный процесс и проверяет хеш распакованного дампа
func RestoreDumpArchive(compressed []byte, expectedHash string) ([]byte, error) {
	dump, err := DecompressDump(compressed)
	if err != nil {
		return nil, err
	}
	if expectedHash != "" && HashBytes(dump) != expectedHash {
		return nil, ErrHashMismatch
	}
	return dump, nil
}
