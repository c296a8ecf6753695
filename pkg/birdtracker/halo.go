package birdtracker

// eliminateQuietHalo drops every candidate whose centroid lies within distance of
// any point of the tracked contour. Order of the survivors is preserved.
func eliminateQuietHalo(candidates []Contour, tracked Contour, distance float64) []Contour {
	if len(tracked) == 0 || distance <= 0 {
		return candidates
	}
	limit := distance * distance
	kept := make([]Contour, 0, len(candidates))
	for _, c := range candidates {
		if minSquaredDistance(contourCentroid(c), tracked) <= limit {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
