package cookies

import (
	"net/http"
	"sync"
)

// Sink accepts outbound cookie directives. Implementations must keep every
// appended directive; nothing is deduplicated at this layer.
type Sink interface {
	Append(d Directive)
}

// ResponseSink writes each directive as its own Set-Cookie header.
type ResponseSink struct {
	w http.ResponseWriter
}

func NewResponseSink(w http.ResponseWriter) *ResponseSink {
	return &ResponseSink{w: w}
}

func (s *ResponseSink) Append(d Directive) {
	if s == nil || s.w == nil {
		return
	}
	c := d.Cookie()
	if v := c.String(); v != "" {
		s.w.Header().Add("Set-Cookie", v)
	}
}

// Recorder buffers directives until they are flushed to a real sink.
type Recorder struct {
	mu         sync.Mutex
	directives []Directive
}

func (r *Recorder) Append(d Directive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directives = append(r.directives, d)
}

// Directives returns a copy of everything recorded so far.
func (r *Recorder) Directives() []Directive {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Directive(nil), r.directives...)
}

// FlushTo appends the recorded directives to dst in order and resets the
// recorder.
func (r *Recorder) FlushTo(dst Sink) {
	r.mu.Lock()
	pending := r.directives
	r.directives = nil
	r.mu.Unlock()
	for _, d := range pending {
		dst.Append(d)
	}
}
