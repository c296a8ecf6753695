package birdtracker

import "errors"

var (
	// ErrNoTrackedObject means no contour could be found in a raw frame. It ends the run.
	ErrNoTrackedObject = errors.New("no tracked object in frame")

	// ErrReferenceRejected means a candidate reference frame touches the crop window.
	// The pipeline skips the frame and keeps scanning.
	ErrReferenceRejected = errors.New("reference candidate touches crop window edge")
)
