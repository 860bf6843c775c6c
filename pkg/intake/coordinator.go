package intake

import (
	"errors"
	"strings"
)

// View receives the display changes made by a Coordinator. Implementations
// write them to whatever surface hosts the form; a nil View is allowed.
type View interface {
	SetFiles(files []File)
	ClearFiles()
	SetURL(url string)
	SetStatus(text string)
	ShowError(text string)
	HideError()
	SetHighlight(on bool)
}

// Resolution reports which source a drop ended up populating.
type Resolution int

const (
	Unresolved Resolution = iota
	ResolvedURL
	ResolvedFiles
)

func (r Resolution) String() string {
	switch r {
	case ResolvedURL:
		return "url"
	case ResolvedFiles:
		return "files"
	default:
		return "unresolved"
	}
}

// Coordinator owns the file-source and URL-source values of the upload form
// together with the status label and the error banner.
type Coordinator struct {
	view View

	files []File
	url   string

	status      string
	errText     string
	errVisible  bool
	highlighted bool
}

// New returns a coordinator with both sources empty.
func New(view View) *Coordinator {
	if view == nil {
		view = nopView{}
	}
	c := &Coordinator{view: view}
	c.setStatus(StatusNoFile)
	return c
}

func (c *Coordinator) Files() []File { return append([]File(nil), c.files...) }

func (c *Coordinator) URL() string { return c.url }

func (c *Coordinator) Status() string { return c.status }

// Error returns the banner text and whether it is currently shown.
func (c *Coordinator) Error() (string, bool) { return c.errText, c.errVisible }

func (c *Coordinator) Highlighted() bool { return c.highlighted }

// State derives the current InputState.
func (c *Coordinator) State() InputState { return DeriveState(c.files, c.url) }

// OnFileChanged records a new file-source selection. A non-empty selection
// clears the URL source.
func (c *Coordinator) OnFileChanged(files []File) {
	c.hideError()
	c.files = append([]File(nil), files...)

	if len(c.files) > 0 {
		if c.url != "" {
			c.url = ""
			c.view.SetURL("")
		}
		c.setStatus(c.files[0].Name)
		return
	}
	c.setStatus(StatusNoFile)
}

// OnURLChanged records new URL-source text. Non-blank text clears the file
// selection; blank text falls back to describing the file source.
func (c *Coordinator) OnURLChanged(text string) {
	c.hideError()
	c.url = text

	if strings.TrimSpace(text) != "" {
		if len(c.files) > 0 {
			c.files = nil
			c.view.ClearFiles()
		}
		c.setStatus(StatusURLReady)
		return
	}
	c.setStatus(c.fileStatus())
}

// ValidateOnSubmit runs the submission rules. On failure the banner shows the
// kind-specific message and ev is cancelled. ev may be nil.
func (c *Coordinator) ValidateOnSubmit(ev *SubmitEvent) error {
	c.hideError()

	err := Validate(len(c.files) > 0, c.url)
	if err == nil {
		return nil
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		c.showError(verr.Kind.Message())
	}
	if ev != nil {
		ev.Cancel()
	}
	return err
}

// ResolveDrop turns a drop payload into URL or file input. The URI list wins
// over files, files win over URL-like plain text. When nothing applies the
// sources are left untouched, the status reports the failure and
// ErrDropUnresolved is returned as an advisory.
func (c *Coordinator) ResolveDrop(p DropPayload) (Resolution, error) {
	switch {
	case p.URIList != "":
		c.view.SetURL(p.URIList)
		c.OnURLChanged(p.URIList)
		return ResolvedURL, nil
	case len(p.Files) > 0:
		c.view.SetFiles(p.Files)
		c.OnFileChanged(p.Files)
		return ResolvedFiles, nil
	case p.Text != "" && LooksLikeURL(p.Text):
		c.view.SetURL(p.Text)
		c.OnURLChanged(p.Text)
		return ResolvedURL, nil
	}
	c.setStatus(StatusDropFailed)
	return Unresolved, ErrDropUnresolved
}

// HandleDrag is the drop region's handler for every drag event type. Default
// handling is always suppressed; the highlight follows enter/over and
// leave/drop, and a drop is resolved.
func (c *Coordinator) HandleDrag(ev *DragEvent) {
	ev.PreventDefault()
	ev.StopPropagation()

	switch ev.Type {
	case DragEnter, DragOver:
		c.setHighlight(true)
	case DragLeave:
		c.setHighlight(false)
	case Drop:
		c.setHighlight(false)
		_, _ = c.ResolveDrop(ev.Payload)
	}
}

func (c *Coordinator) fileStatus() string {
	if len(c.files) > 0 {
		return c.files[0].Name
	}
	return StatusNoFile
}

func (c *Coordinator) setStatus(text string) {
	c.status = text
	c.view.SetStatus(text)
}

func (c *Coordinator) showError(text string) {
	c.errText = text
	c.errVisible = true
	c.view.ShowError(text)
}

func (c *Coordinator) hideError() {
	c.errVisible = false
	c.view.HideError()
}

func (c *Coordinator) setHighlight(on bool) {
	if c.highlighted == on {
		return
	}
	c.highlighted = on
	c.view.SetHighlight(on)
}

type nopView struct{}

func (nopView) SetFiles([]File) {}
func (nopView) ClearFiles() {}
func (nopView) SetURL(string) {}
func (nopView) SetStatus(string) {}
func (nopView) ShowError(string) {}
func (nopView) HideError() {}
func (nopView) SetHighlight(bool) {}
