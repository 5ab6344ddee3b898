// Package source turns containers and elementary streams into access units
// for the decode worker.
//
// Three readers are provided: [AnnexBReader] for raw H.264 byte streams,
// [TSReader] for MPEG transport streams (files or SRT publishers), and
// [MP4Reader] for progressive and fragmented MP4 files. All of them return
// units in decode order and io.EOF after the last one.
package source
