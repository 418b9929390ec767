// Package delivery sends a finished animation back to the chat, falling
// back through an ordered list of upload methods.
//
// Methods are plain data: a name and a send function. Deliver walks them
// in order and stops at the first success. A rejection because the file is
// too large ends the walk immediately since every other method would hit the
// same limit. When every method fails the error wraps ErrExhausted.
//
// The default order is:
//   - animation: native animation upload with width, height, duration and
//     a JPEG thumbnail
//   - animation_typed: animation upload under a fixed name with an explicit
//     image/gif content type
//   - document: generic file attachment
package delivery
