// Package mediatypes decides which incoming files can be converted and which
// extension their scratch copy should carry.
//
// It has no dependencies beyond the standard library so both the chat
// transport and the pipeline can import it.
//
// # Content detection
//
// The declared MIME type wins when present; the file name extension is the
// fallback for clients that send application/octet-stream:
//
//	if mediatypes.IsVideo(doc.MimeType, doc.FileName) {
//	    // accept for conversion
//	}
//
// # Extensions
//
// InputExtension picks the extension for the downloaded copy so ffmpeg's
// demuxer probing gets a useful hint:
//
//	ext := mediatypes.InputExtension("video/quicktime", "") // ".mov"
package mediatypes
