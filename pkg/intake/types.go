package intake

import "strings"

// Neutral status texts shown next to the upload controls.
const (
	StatusNoFile     = "No file chosen"
	StatusURLReady   = "Image URL ready for prediction."
	StatusDropFailed = "Drop failed. Please drop an image file or an image from a website."
)

// ImageExtensions lists the substrings accepted as evidence that a URL points
// at an image. The set is fixed.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp"}

// File is a single entry of the file-source selection.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// StateKind tags the active variant of an InputState.
type StateKind int

const (
	StateEmpty StateKind = iota
	StateFileSelected
	StateURLProvided
)

func (k StateKind) String() string {
	switch k {
	case StateFileSelected:
		return "file"
	case StateURLProvided:
		return "url"
	default:
		return "empty"
	}
}

// InputState is derived from the two input fields. When both fields hold a
// value the state reports the file, and Ambiguous is set.
type InputState struct {
	Kind      StateKind
	FileName  string
	URL       string
	Ambiguous bool
}

// DeriveState computes the InputState for a file selection and a URL text.
func DeriveState(files []File, url string) InputState {
	trimmed := strings.TrimSpace(url)
	hasFile := len(files) > 0
	switch {
	case hasFile && trimmed != "":
		return InputState{Kind: StateFileSelected, FileName: files[0].Name, URL: trimmed, Ambiguous: true}
	case hasFile:
		return InputState{Kind: StateFileSelected, FileName: files[0].Name}
	case trimmed != "":
		return InputState{Kind: StateURLProvided, URL: trimmed}
	default:
		return InputState{Kind: StateEmpty}
	}
}

// ErrorKind classifies user input failures.
type ErrorKind int

const (
	MissingInput ErrorKind = iota + 1
	UnrecognizedImageURL
	AmbiguousInput
	DropUnresolved
)

func (k ErrorKind) String() string {
	switch k {
	case MissingInput:
		return "missing_input"
	case UnrecognizedImageURL:
		return "unrecognized_image_url"
	case AmbiguousInput:
		return "ambiguous_input"
	case DropUnresolved:
		return "drop_unresolved"
	default:
		return "unknown"
	}
}

// Message returns the user-facing text for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case MissingInput:
		return "⚠️ Error: Please upload a file or provide a URL."
	case UnrecognizedImageURL:
		return "⚠️ Error: URL must be a direct link to an image file (.jpg, .png, etc.)."
	case AmbiguousInput:
		return "⚠️ Error: Please use EITHER the file upload OR the URL input, not both."
	case DropUnresolved:
		return StatusDropFailed
	default:
		return "⚠️ Error: invalid input."
	}
}

// Blocking reports whether the kind prevents a submission.
func (k ErrorKind) Blocking() bool {
	return k != DropUnresolved
}

// ValidationError is returned for every input failure.
type ValidationError struct {
	Kind ErrorKind
}

func (e *ValidationError) Error() string {
	return e.Kind.Message()
}

// Is matches another ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrMissingInput         = &ValidationError{Kind: MissingInput}
	ErrUnrecognizedImageURL = &ValidationError{Kind: UnrecognizedImageURL}
	ErrAmbiguousInput       = &ValidationError{Kind: AmbiguousInput}
	ErrDropUnresolved       = &ValidationError{Kind: DropUnresolved}
)
