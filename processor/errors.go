package processor

import "errors"

// ErrHashMismatch возвращается, когда хеш распакованного дампа не совпадает с ожидаемым
var ErrHashMismatch = errors.New("хеш дампа не совпадает")
