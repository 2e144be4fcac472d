package history

// GroupScope closes a group with defer.
//
//	defer h.GroupScope("indent block").End()
type GroupScope struct {
	history *History
	active  bool
}

// GroupScope starts a group and returns a handle that ends it.
func (h *History) GroupScope(name string) *GroupScope {
	h.BeginGroup(name)
	return &GroupScope{history: h, active: true}
}

// End ends the group. Only the first call to End or Cancel has effect.
func (g *GroupScope) End() {
	if g.active {
		g.history.EndGroup()
		g.active = false
	}
}

// Cancel drops the group without recording it.
func (g *GroupScope) Cancel() {
	if g.active {
		g.history.CancelGroup()
		g.active = false
	}
}

// Transaction runs fn inside a group. If fn fails the group is cancelled;
// edits already applied still affect the buffer. If fn panics the group
// is closed with the edits made so far.
func (h *History) Transaction(name string, fn func() error) error {
	g := h.GroupScope(name)
	defer g.End()
	if err := fn(); err != nil {
		g.Cancel()
		return err
	}
	return nil
}
