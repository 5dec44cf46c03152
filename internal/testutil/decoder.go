package testutil

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
)

// CorruptModel is rejected by Decoder
var CorruptModel = []byte("corrupt")

// Decoder accepts any non-empty blob except CorruptModel and counts calls per name
type Decoder struct {
	calls atomic.Int32

	mu     sync.Mutex
	byName map[string]int
}

func (d *Decoder) Decode(name string, data []byte) (*model3d.Asset, error) {
	d.calls.Add(1)
	d.mu.Lock()
	if d.byName == nil {
		d.byName = make(map[string]int)
	}
	d.byName[name]++
	d.mu.Unlock()

	if len(data) == 0 || bytes.Equal(data, CorruptModel) {
		return nil, errors.New("malformed model")
	}
	return &model3d.Asset{Name: name, Nodes: 1}, nil
}

// Calls is the total number of Decode calls
func (d *Decoder) Calls() int {
	return int(d.calls.Load())
}

// CallsFor is the number of Decode calls for name
func (d *Decoder) CallsFor(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byName[name]
}
