//go:build js && wasm

// Command formwasm binds the upload form coordinator to the browser DOM.
//
// The server's page loads /static/formwasm.wasm and /static/wasm_exec.js.
// Running `go generate ./cmd/server` builds the first and copies the second
// from GOROOT into ./static:
//
//	GOOS=js GOARCH=wasm go build -o static/formwasm.wasm ./cmd/formwasm
//	cp "$(go env GOROOT)/lib/wasm/wasm_exec.js" static/
package main

import (
	"syscall/js"

	"github.com/vyvo/retina/backend/pkg/intake"
)

// domView renders coordinator changes into the form elements.
type domView struct {
	fileInput   js.Value
	urlInput    js.Value
	nameDisplay js.Value
	urlError    js.Value
	dropArea    js.Value

	// droppedFiles is the FileList of the drop being resolved. Browsers only
	// accept a real FileList for input.files.
	droppedFiles js.Value
}

func (v *domView) SetFiles(files []intake.File) {
	if v.droppedFiles.Truthy() {
		v.fileInput.Set("files", v.droppedFiles)
	}
}

func (v *domView) ClearFiles() {
	v.fileInput.Set("value", "")
}

func (v *domView) SetURL(url string) {
	v.urlInput.Set("value", url)
}

func (v *domView) SetStatus(text string) {
	v.nameDisplay.Set("innerText", text)
}

func (v *domView) ShowError(text string) {
	v.urlError.Set("innerText", text)
	v.urlError.Get("style").Set("display", "block")
}

func (v *domView) HideError() {
	v.urlError.Get("style").Set("display", "none")
}

func (v *domView) SetHighlight(on bool) {
	if v.dropArea.Truthy() {
		v.dropArea.Get("classList").Call("toggle", "highlight", on)
	}
}

func filesOf(list js.Value) []intake.File {
	if !list.Truthy() {
		return nil
	}
	n := list.Get("length").Int()
	out := make([]intake.File, 0, n)
	for i := 0; i < n; i++ {
		f := list.Call("item", i)
		out = append(out, intake.File{
			Name: f.Get("name").String(),
			Size: int64(f.Get("size").Int()),
			Type: f.Get("type").String(),
		})
	}
	return out
}

func dropPayload(e js.Value) (intake.DropPayload, js.Value) {
	dt := e.Get("dataTransfer")
	if !dt.Truthy() {
		return intake.DropPayload{}, js.Null()
	}
	files := dt.Get("files")
	return intake.DropPayload{
		URIList: dt.Call("getData", "text/uri-list").String(),
		Files:   filesOf(files),
		Text:    dt.Call("getData", "text/plain").String(),
	}, files
}

// apply copies the decisions recorded on ev back onto the browser event.
func apply(ev *intake.DragEvent, e js.Value) {
	if ev.DefaultPrevented() {
		e.Call("preventDefault")
	}
	if ev.PropagationStopped() {
		e.Call("stopPropagation")
	}
}

// dropRegion prefers the form itself when it carries the .card class, so a
// banner rendered above it never becomes the drop target.
func dropRegion(doc, form js.Value) js.Value {
	if form.Get("classList").Call("contains", "card").Bool() {
		return form
	}
	return doc.Call("querySelector", ".card")
}

func bind() {
	doc := js.Global().Get("document")
	form := doc.Call("getElementById", "prediction-form")
	if !form.Truthy() {
		return
	}

	view := &domView{
		fileInput:   doc.Call("getElementById", "file"),
		urlInput:    doc.Call("getElementById", "image_url"),
		nameDisplay: doc.Call("getElementById", "file-name"),
		urlError:    doc.Call("getElementById", "url-error"),
		dropArea:    dropRegion(doc, form),
	}
	coord := intake.New(view)
	page := intake.NewPage(coord, view.dropArea.Truthy())

	// Pick up whatever the browser restored into the inputs.
	if v := view.urlInput.Get("value").String(); v != "" {
		coord.OnURLChanged(v)
	} else {
		coord.OnFileChanged(filesOf(view.fileInput.Get("files")))
	}

	view.fileInput.Call("addEventListener", "change", js.FuncOf(func(this js.Value, args []js.Value) any {
		coord.OnFileChanged(filesOf(view.fileInput.Get("files")))
		return nil
	}))
	view.urlInput.Call("addEventListener", "input", js.FuncOf(func(this js.Value, args []js.Value) any {
		coord.OnURLChanged(view.urlInput.Get("value").String())
		return nil
	}))
	form.Call("addEventListener", "submit", js.FuncOf(func(this js.Value, args []js.Value) any {
		ev := &intake.SubmitEvent{}
		_ = coord.ValidateOnSubmit(ev)
		if ev.Cancelled() {
			args[0].Call("preventDefault")
		}
		if ev.PropagationStopped() {
			args[0].Call("stopPropagation")
		}
		return nil
	}))

	for _, typ := range intake.DragEventTypes {
		if page.HasRegion() {
			view.dropArea.Call("addEventListener", string(typ), js.FuncOf(func(this js.Value, args []js.Value) any {
				ev := &intake.DragEvent{Type: typ}
				if typ == intake.Drop {
					ev.Payload, view.droppedFiles = dropPayload(args[0])
				}
				page.Dispatch(ev, intake.TargetRegion)
				view.droppedFiles = js.Null()
				apply(ev, args[0])
				return nil
			}), false)
		}
		doc.Call("addEventListener", string(typ), js.FuncOf(func(this js.Value, args []js.Value) any {
			ev := &intake.DragEvent{Type: typ}
			page.Dispatch(ev, intake.TargetDocument)
			apply(ev, args[0])
			return nil
		}), false)
	}
}

func main() {
	bind()
	select {}
}
