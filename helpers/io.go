package helpers

import (
	"expvar"
	"io"
)

// WriteAll repeats Write until b is consumed, serial drivers may accept partial writes.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == len(b) {
			return nil
		}
		b = b[n:]
	}
	return nil
}

// CountReader adds every successfully read byte count to V.
type CountReader struct {
	R io.Reader
	V *expvar.Int
}

func (cr CountReader) Read(p []byte) (n int, err error) {
	n, err = cr.R.Read(p)
	if n > 0 {
		cr.V.Add(int64(n))
	}
	return
}

// CountWriter adds every successfully written byte count to V.
type CountWriter struct {
	W io.Writer
	V *expvar.Int
}

func (cw CountWriter) Write(p []byte) (n int, err error) {
	n, err = cw.W.Write(p)
	if n > 0 {
		cw.V.Add(int64(n))
	}
	return
}
