package injuries

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Holder shares one Table process-wide and swaps it on Reload.
type Holder struct {
	paths []string
	table atomic.Pointer[Table]
}

func NewHolder(paths ...string) *Holder {
	h := &Holder{paths: paths}
	h.table.Store(New())
	return h
}

func NewStaticHolder(t *Table) *Holder {
	h := &Holder{}
	h.table.Store(t)
	return h
}

func (h *Holder) Table() *Table {
	return h.table.Load()
}

func (h *Holder) Paths() []string {
	return append([]string(nil), h.paths...)
}

// Reload keeps the current table when no source can be read.
func (h *Holder) Reload() error {
	t, err := LoadFile(h.paths...)
	if err != nil {
		log.Errorf("reload injury mappings: %s", err)
		return err
	}
	if issues := t.ValidateSubstitutes(); len(issues) > 0 {
		log.Warnf("injury mappings: %d substitutes conflict with their own injury", len(issues))
	}
	h.table.Store(t)
	return nil
}
