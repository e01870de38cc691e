package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/extkernel/internal/kernel/event"
)

// Editor event tokens.
var (
	EditorOpenedType  = event.Export(event.NewType[EditorOpened]("editor.opened"))
	EditorSavedType   = event.Export(event.NewType[EditorSaved]("editor.saved"))
	EditorClosedType  = event.Export(event.NewType[EditorClosed]("editor.closed"))
	FileOperationType = event.Export(event.NewType[FileOperation]("file.operation"))
)

// ErrNoContent is returned by File.ReadContent when the host supplied no loader.
var ErrNoContent = errors.New("file content not available")

// File is the file an editor event refers to.
type File struct {
	// Location is the workspace path of the file.
	Location string

	// Content loads the file's current content. It may be nil.
	Content func(ctx context.Context) (string, error)
}

// ReadContent loads the file content through the host's loader.
func (f File) ReadContent(ctx context.Context) (string, error) {
	if f.Content == nil {
		return "", fmt.Errorf("%s: %w", f.Location, ErrNoContent)
	}
	return f.Content(ctx)
}

// EditorOpened is published after an editor opens a file.
type EditorOpened struct {
	File   File
	Editor string
}

// Fields implements event.Fielder.
func (e EditorOpened) Fields() map[string]any {
	return map[string]any{"file": e.File.Location, "editor": e.Editor}
}

// EditorSaved is published after an editor saves its file.
type EditorSaved struct {
	File   File
	Editor string
}

// Fields implements event.Fielder.
func (e EditorSaved) Fields() map[string]any {
	return map[string]any{"file": e.File.Location, "editor": e.Editor}
}

// EditorClosed is published after an editor is closed.
type EditorClosed struct {
	File   File
	Editor string
}

// Fields implements event.Fielder.
func (e EditorClosed) Fields() map[string]any {
	return map[string]any{"file": e.File.Location, "editor": e.Editor}
}

// Operation is the kind of a file operation.
type Operation string

// File operations.
const (
	OperationOpen  Operation = "open"
	OperationSave  Operation = "save"
	OperationClose Operation = "close"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OperationOpen, OperationSave, OperationClose:
		return true
	}
	return false
}

// FileOperation is published for every open, save or close of a file.
type FileOperation struct {
	File      File
	Operation Operation
}

// Fields implements event.Fielder.
func (e FileOperation) Fields() map[string]any {
	return map[string]any{"file": e.File.Location, "operation": string(e.Operation)}
}
