package cache

import (
	"io"
)

// CountingReader оборачивает io.Reader и считает прочитанные байты
type CountingReader struct {
	reader io.Reader
	count  int64
}

// NewCountingReader создает новый CountingReader
func NewCountingReader(reader io.Reader) *CountingReader {
	return &CountingReader{reader: reader}
}

// Read реализует io.Reader и считает байты
func (cr *CountingReader) Read(p []byte) (n int, err error) {
	n, err = cr.reader.Read(p)
	cr.count += int64(n)
	return n, err
}

// Reset сбрасывает счетчик после перемотки нижележащего reader в начало,
// чтобы не задваивать байты при повторе
func (cr *CountingReader) Reset() {
	cr.count = 0
}

// Count возвращает количество прочитанных байт
func (cr *CountingReader) Count() int64 {
	return cr.count
}

// bytesCountingReadCloser оборачивает io.ReadCloser для подсчета байт,
// отданных клиенту
type bytesCountingReadCloser struct {
	reader    io.ReadCloser
	totalRead int64
}

func (b *bytesCountingReadCloser) Read(p []byte) (n int, err error) {
	n, err = b.reader.Read(p)
	b.totalRead += int64(n)
	return n, err
}

func (b *bytesCountingReadCloser) Close() error {
	return b.reader.Close()
}
