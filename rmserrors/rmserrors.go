// Package rmserrors defines the provenance kernel's error taxonomy. Each
// kind is a distinct Go type so callers can use errors.As to branch on
// policy (surface, retry, swallow) per the error handling design.
package rmserrors

import "fmt"

// CatalogError wraps a failed Catalog Store transaction. The underlying
// store has already rolled back by the time this is returned.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string { return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err) }
func (e *CatalogError) Unwrap() error { return e.Err }

// BindingError reports that call arguments do not match a pipe's
// declared arity.
type BindingError struct {
	Pipe   string
	Reason string
}

func (e *BindingError) Error() string { return fmt.Sprintf("binding: pipe %s: %s", e.Pipe, e.Reason) }

// InvalidInput reports that an argument entity is overwritten or
// obsolete and therefore may not be used as a pipe input.
type InvalidInput struct {
	Entity string
	Reason string
}

func (e *InvalidInput) Error() string { return fmt.Sprintf("invalid input %s: %s", e.Entity, e.Reason) }

// NotRegistered reports that FileFromPath found no live FileResource at
// the given path.
type NotRegistered struct {
	Path string
}

func (e *NotRegistered) Error() string { return fmt.Sprintf("not registered: %s", e.Path) }

// Ambiguous reports that FileFromPath found more than one live
// FileResource at the given path -- a state the Registry's own
// invariants should prevent, but which is still surfaced defensively.
type Ambiguous struct {
	Path  string
	Count int
}

func (e *Ambiguous) Error() string {
	return fmt.Sprintf("ambiguous: %d live file-resources at %s", e.Count, e.Path)
}

// DependencyBreak reports that a delete would orphan dependents; no rows
// were touched.
type DependencyBreak struct {
	Requested  []string
	Dependents []string
}

func (e *DependencyBreak) Error() string {
	return fmt.Sprintf("dependency break: %d dependents outside the requested %d-entity deletion", len(e.Dependents), len(e.Requested))
}

// ResourceNotReady reports either a consumed one-shot volatile read or an
// UnrunTask with an unresolved virtual input.
type ResourceNotReady struct {
	Reason string
}

func (e *ResourceNotReady) Error() string { return "resource not ready: " + e.Reason }

// ContentMissing reports that the Content Store lacks a resource and
// auto-fetch was disabled or inapplicable.
type ContentMissing struct {
	ResourceID string
}

func (e *ContentMissing) Error() string { return "content missing: " + e.ResourceID }

// NonDeterministic reports that auto-fetch would have to rerun a pipe
// not marked deterministic, without explicit caller opt-in.
type NonDeterministic struct {
	PipeID string
}

func (e *NonDeterministic) Error() string { return "non-deterministic pipe would be rerun: " + e.PipeID }

// WouldOverwriteFile reports that an auto-fetch rerun would overwrite an
// existing output file.
type WouldOverwriteFile struct {
	Path string
}

func (e *WouldOverwriteFile) Error() string { return "would overwrite file: " + e.Path }
