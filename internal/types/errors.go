package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidVariantType  = errors.New("invalid variant type")
	ErrNotFound            = errors.New("image not found")
	ErrConflict            = errors.New("image already exists")
	ErrSourceUnavailable   = errors.New("source image unavailable")
	ErrStorageTimeout      = errors.New("storage timeout")
	ErrStorageWriteFailure = errors.New("storage write failed")
	ErrTransactionFailure  = errors.New("transaction failed")
	ErrMalformedFamilyTag  = errors.New("malformed family tag")
)

// ImageError carries enough context to tell the caller which image failed and why.
// errors.Is matches Kind; errors.Unwrap returns the underlying cause.
type ImageError struct {
	Op      string
	ImageID int
	Title   string
	Kind    error
	Err     error
}

func (e *ImageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("failed")
	}
	fmt.Fprintf(&b, " for image %d", e.ImageID)
	if e.Title != "" {
		fmt.Fprintf(&b, " (%s)", e.Title)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ImageError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

func NewImageError(op string, imageID int, title string, kind, cause error) *ImageError {
	return &ImageError{Op: op, ImageID: imageID, Title: title, Kind: kind, Err: cause}
}

type ItemError struct {
	ImageID int    `json:"imageId"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// BulkDeleteError reports every item that failed in a batch that was rolled back.
type BulkDeleteError struct {
	Items []ItemError
}

func (e *BulkDeleteError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		msgs = append(msgs, fmt.Sprintf("image %d: %s", item.ImageID, item.Message))
	}
	return fmt.Sprintf("bulk delete rolled back, %d failed: %s", len(e.Items), strings.Join(msgs, "; "))
}

func (e *BulkDeleteError) Is(target error) bool {
	return target == ErrTransactionFailure
}

func (e *BulkDeleteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Items))
	for _, item := range e.Items {
		if item.Err != nil {
			errs = append(errs, item.Err)
		}
	}
	return errs
}
