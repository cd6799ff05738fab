package utilities

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var ErrLineTooLong = errors.New("line too long")

// ReadLine lee una línea NDJSON sin el '\n' final. Una línea de más de max
// bytes se descarta hasta su '\n' y devuelve ErrLineTooLong; el lector queda
// listo para la línea siguiente.
func ReadLine(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > max {
				tooLong, line = true, nil
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (tooLong || len(line) > 0):
			// última línea sin '\n'
		case err != nil:
			return nil, err
		}
		if tooLong {
			return nil, ErrLineTooLong
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}
}
