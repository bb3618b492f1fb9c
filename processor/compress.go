package processor

import (
	"fmt"

	"github.com/golang/snappy"
)

// CompressDump сжимает SQL-дамп с помощью Snappy
func CompressDump(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecompressDump распаковывает SQL-дамп, сжатый CompressDump
func DecompressDump(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки дампа: %w", err)
	}
	return decompressed, nil
}
