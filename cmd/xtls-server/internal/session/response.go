package session

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter buffers one response so it can be framed with a
// Content-Length before it goes on the wire.
type responseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

func (w *responseWriter) wantsClose() bool {
	for _, v := range w.header.Values("Connection") {
		if strings.EqualFold(strings.TrimSpace(v), "close") {
			return true
		}
	}
	return false
}

// response assembles the wire response for req.
func (w *responseWriter) response(req *http.Request, closeAfter bool) *http.Response {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	header := w.header.Clone()
	if header.Get("Content-Type") == "" && w.body.Len() > 0 {
		header.Set("Content-Type", http.DetectContentType(w.body.Bytes()))
	}
	if header.Get("Date") == "" {
		header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	header.Del("Content-Length")
	header.Del("Connection")
	if closeAfter {
		header.Set("Connection", "close")
	}

	resp := &http.Response{
		Status:        strconv.Itoa(w.status) + " " + http.StatusText(w.status),
		StatusCode:    w.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(w.body.Bytes())),
		ContentLength: int64(w.body.Len()),
		Request:       req,
		Close:         closeAfter,
	}
	if req != nil && req.ProtoMajor == 1 && req.ProtoMinor == 0 {
		resp.Proto = "HTTP/1.0"
		resp.ProtoMinor = 0
	}
	return resp
}
