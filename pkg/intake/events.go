package intake

// SubmitEvent is the form submission being validated. Cancelling it stops the
// default submission and any further propagation of this event only.
type SubmitEvent struct {
	defaultPrevented   bool
	propagationStopped bool
}

// Cancel prevents the default action and stops propagation.
func (e *SubmitEvent) Cancel() {
	e.defaultPrevented = true
	e.propagationStopped = true
}

func (e *SubmitEvent) Cancelled() bool { return e.defaultPrevented }

func (e *SubmitEvent) PropagationStopped() bool { return e.propagationStopped }

// DragEventType names the drag events the drop region listens to.
type DragEventType string

const (
	DragEnter DragEventType = "dragenter"
	DragOver  DragEventType = "dragover"
	DragLeave DragEventType = "dragleave"
	Drop      DragEventType = "drop"
)

// DragEventTypes is the full list, in registration order.
var DragEventTypes = []DragEventType{DragEnter, DragOver, DragLeave, Drop}

// DropPayload is what a drop carried. Resolution prefers URIList, then Files,
// then Text.
type DropPayload struct {
	URIList string
	Files   []File
	Text    string
}

// DragEvent is a single drag interaction delivered to the page.
type DragEvent struct {
	Type    DragEventType
	Payload DropPayload

	defaultPrevented   bool
	propagationStopped bool
}

func (e *DragEvent) PreventDefault() { e.defaultPrevented = true }

func (e *DragEvent) StopPropagation() { e.propagationStopped = true }

func (e *DragEvent) DefaultPrevented() bool { return e.defaultPrevented }

func (e *DragEvent) PropagationStopped() bool { return e.propagationStopped }
