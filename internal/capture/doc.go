// Package capture provides frame sources for the capturer.
//
// Every source hands out BGRA8 frames through the lease protocol of
// gpu.FrameSource: AcquireNextFrame waits for the next frame, ExportFrame
// copies the held frame into a shared handle and ReleaseFrame ends the
// lease. A frame whose content did not change since the previous
// acquisition is reported with zero accumulated frames, the way a screen
// duplication service reports an idle desktop.
//
// Three sources are available:
//
//   - Solid repeats a single color.
//   - NewImage and OpenImage repeat a still image.
//   - OpenDirectory replays the images of a directory in name order.
//
// Images are decoded with the standard decoders plus BMP, TIFF and WebP
// from golang.org/x/image.
package capture
