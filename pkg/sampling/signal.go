package sampling

import "sync/atomic"

// Signal is a one-way stop flag shared between the goroutine that owns a
// sampling run and the sampler itself. The sampler only reads it.
type Signal struct {
	set atomic.Bool
}

func NewSignal() *Signal { return &Signal{} }

func (s *Signal) Set()        { s.set.Store(true) }
func (s *Signal) Clear()      { s.set.Store(false) }
func (s *Signal) IsSet() bool { return s.set.Load() }
