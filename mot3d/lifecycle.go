package mot3d

// lifecyclePolicy drives track status and counters
type lifecyclePolicy struct {
	minHits            int
	maxAge             int
	tentativeMaxMisses int
	emitLost           bool
	emitDuringWarmup   bool
}

func newLifecyclePolicy(cfg TrackerConfig) lifecyclePolicy {
	return lifecyclePolicy{
		minHits:            cfg.MinHits,
		maxAge:             cfg.MaxAge,
		tentativeMaxMisses: cfg.TentativeMaxMisses,
		emitLost:           cfg.EmitLost,
		emitDuringWarmup:   cfg.EmitDuringWarmup,
	}
}

// onBirth initializes counters of just created track
func (policy lifecyclePolicy) onBirth(track *Track) {
	track.hits = 1
	track.misses = 0
	track.age = 0
	track.status = TrackStatusTentative
	if track.hits >= policy.minHits {
		track.status = TrackStatusConfirmed
		track.confirmed = true
	}
}

// onMatch registers successful update
func (policy lifecyclePolicy) onMatch(track *Track) {
	track.hits++
	track.misses = 0
	if track.confirmed || track.hits >= policy.minHits {
		track.status = TrackStatusConfirmed
		track.confirmed = true
	}
}

// onMiss registers a frame without update. Returns true when track must be deleted
func (policy lifecyclePolicy) onMiss(track *Track) bool {
	track.misses++
	track.hits = 0
	if !track.confirmed {
		return track.misses > policy.tentativeMaxMisses
	}
	track.status = TrackStatusLost
	return track.misses > policy.maxAge
}

// emits tells whether live track is exposed to consumers. frameCount is number of frames processed by tracker including the current one
func (policy lifecyclePolicy) emits(track *Track, frameCount int) bool {
	switch track.status {
	case TrackStatusConfirmed:
		return true
	case TrackStatusLost:
		return policy.emitLost
	default:
		return policy.emitDuringWarmup && frameCount <= policy.minHits && track.misses == 0
	}
}
