package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type entry struct {
	level   string
	message string
	keyvals []any
}

type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) add(level, message string, keyvals []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{level, message, keyvals})
}

func (r *recorder) Log(m string, kv ...any)   { r.add("log", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("debug", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("info", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("warn", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("error", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("fatal", m, kv) }

func TestDispatchToAllBackends(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { Init() })

	Info("[Pipeline] Starting batch", "articles", 3)
	Log("plain", "k", "v")

	for _, r := range []*recorder{a, b} {
		assert.Len(t, r.entries, 2)
		assert.Equal(t, entry{"info", "[Pipeline] Starting batch", []any{"articles", 3}}, r.entries[0])
		assert.Equal(t, []any{"k", "v"}, r.entries[1].keyvals)
	}
}

func TestFatalExitsWithoutBackends(t *testing.T) {
	Init()
	var code int
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = osExit })

	Fatal("boom")
	assert.Equal(t, 1, code)
}

func TestConcurrentInit(t *testing.T) {
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() { defer wg.Done(); Init(&recorder{}) }()
		go func() { defer wg.Done(); Warn("racing") }()
	}
	wg.Wait()
	Init()
}
