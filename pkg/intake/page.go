package intake

// Target is where a drag event was delivered.
type Target int

const (
	TargetDocument Target = iota
	TargetRegion
)

// Page routes drag events the way the browser delivers them: handlers on the
// drop region run first, then the event bubbles to the document unless it was
// stopped. The document handler suppresses default handling for every drag
// event type whether or not a region exists, so a drop outside the region
// never navigates away from the form.
type Page struct {
	coord  *Coordinator
	region bool
}

// NewPage attaches coord to the drop region when hasRegion is true. Without a
// region only document-level suppression applies.
func NewPage(coord *Coordinator, hasRegion bool) *Page {
	return &Page{coord: coord, region: hasRegion}
}

func (p *Page) HasRegion() bool { return p.region }

// Dispatch delivers ev to target and then to the document.
func (p *Page) Dispatch(ev *DragEvent, target Target) {
	if target == TargetRegion && p.region && p.coord != nil {
		p.coord.HandleDrag(ev)
	}
	if ev.PropagationStopped() {
		return
	}
	suppress(ev)
}

func suppress(ev *DragEvent) {
	ev.PreventDefault()
	ev.StopPropagation()
}
