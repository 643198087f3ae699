package game

// LaneOffset centers n occupied seats in the TotalLanes-lane arena rather
// than left-aligning them.
func LaneOffset(n int) int {
	if n >= TotalLanes {
		return 0
	}
	return (TotalLanes - n) / 2
}

// Lane returns the lane index for the participant at snapshot position i in
// a game with n participants.
func Lane(i, n int) int {
	return LaneOffset(n) + i
}

// TrackSteps maps a race progress counter to forward movement steps: one
// step per two progress units, so the track fits 50 steps at the target.
func TrackSteps(progress int) int {
	if progress < 0 {
		return 0
	}
	return progress / 2
}
