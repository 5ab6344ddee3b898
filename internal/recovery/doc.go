// Package recovery decides, picture by picture after a flush or seek, whether
// decoded output is safe to deliver. It scans access units for random access
// markers (IDR slices, recovery point SEI, intra access unit delimiters or
// intra slices) and then counts decoded frames until the recovery point has
// been reached in both decode and output order.
package recovery
