package delivery

import (
	"context"
	"fmt"

	"gifbot/internal/logging"
)

// Method names.
const (
	MethodAnimation      = "animation"
	MethodAnimationTyped = "animation_typed"
	MethodDocument       = "document"
)

// Payload names and types.
const (
	AnimationFileName = "animation.gif"
	DocumentFileName  = "converted.gif"
	GIFMIMEType       = "image/gif"
)

// Method is one way of sending an artifact.
type Method struct {
	Name string
	Send func(ctx context.Context, t Transport, a Artifact) error
}

// Inspector reads the metadata the native animation upload declares.
type Inspector interface {
	Dimensions(path string) (width, height int, err error)
	Thumbnail(path string) ([]byte, error)
}

// DefaultMethods returns the standard fallback order.
func DefaultMethods(inspector Inspector) []Method {
	return []Method{
		AnimationMethod(inspector),
		AnimationTypedMethod(),
		DocumentMethod(),
	}
}

// AnimationMethod uploads a native animation. A failure to read the
// dimensions fails the method; a missing thumbnail does not.
func AnimationMethod(inspector Inspector) Method {
	return Method{
		Name: MethodAnimation,
		Send: func(ctx context.Context, t Transport, a Artifact) error {
			width, height, err := inspector.Dimensions(a.Path)
			if err != nil {
				return fmt.Errorf("read dimensions: %w", err)
			}

			thumb, err := inspector.Thumbnail(a.Path)
			if err != nil {
				logging.ForRequest(a.RequestID).Debug("No thumbnail for %s: %v", a.Path, err)
				thumb = nil
			}

			return t.SendAnimation(ctx, Upload{
				FileName:  AnimationFileName,
				MIMEType:  GIFMIMEType,
				Data:      a.Data,
				Caption:   a.Caption,
				Width:     width,
				Height:    height,
				Duration:  a.Duration,
				Thumbnail: thumb,
			})
		},
	}
}

// AnimationTypedMethod uploads an animation under a fixed name with an
// explicit image/gif content type.
func AnimationTypedMethod() Method {
	return Method{
		Name: MethodAnimationTyped,
		Send: func(ctx context.Context, t Transport, a Artifact) error {
			return t.SendAnimationAs(ctx, Upload{
				FileName: AnimationFileName,
				MIMEType: GIFMIMEType,
				Data:     a.Data,
				Caption:  a.Caption,
			})
		},
	}
}

// DocumentMethod sends the artifact as a plain file attachment.
func DocumentMethod() Method {
	return Method{
		Name: MethodDocument,
		Send: func(ctx context.Context, t Transport, a Artifact) error {
			return t.SendDocument(ctx, Upload{
				FileName: DocumentFileName,
				MIMEType: GIFMIMEType,
				Data:     a.Data,
				Caption:  a.Caption,
			})
		},
	}
}
