package anchors

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/maskar-ai/go-maskar/logging"
	"github.com/maskar-ai/go-maskar/pipeline"
	"github.com/maskar-ai/go-maskar/spatial"
)

// Registry owns the set of anchored masks. Anchor counts stay small (one
// per class neighborhood), so lookups are linear scans. The main frame
// tick is the only expected writer; the mutex guards against accidental
// concurrent readers such as a display goroutine taking a snapshot.
type Registry struct {
	cfg   Config
	clock clock.Clock
	log   logging.Logger

	mu         sync.Mutex
	anchors    []*AnchoredMask
	paused     bool
	lastUpdate time.Time
}

// NewRegistry builds an empty registry. Invalid config values are clamped.
func NewRegistry(cfg Config, log logging.Logger) *Registry {
	cfg.Clamp()
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Registry{cfg: cfg, clock: clock.New(), log: log}
}

// SpawnFromLive anchors the current live detections on explicit user
// action. A detection with a same-class anchor within SpawnDistance of its
// world point is not treated as new, but that anchor's segmentation, pose
// and quality are replaced unconditionally under its existing identity.
// Detections without a world point are skipped.
//
// Returns:
//   - int: The number of newly created anchors.
func (r *Registry) SpawnFromLive(live []pipeline.LiveDetection, viewer spatial.Pose) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := 0
	for i := range live {
		d := &live[i]
		if !d.HasWorldPoint {
			continue
		}
		pose := r.anchorPose(d.WorldPoint, viewer)
		if existing := r.nearestSameClassLocked(d.ClassName, d.WorldPoint, r.cfg.SpawnDistance); existing != nil {
			existing.Pose = pose
			existing.Solid = d.Solid
			existing.Outline = d.Outline
			existing.Quality = d.QualityScore()
			r.log.Debugw("anchor respawned", "class", d.ClassName, "id", existing.ID)
			continue
		}
		a := &AnchoredMask{
			ID:        uuid.New(),
			ClassName: d.ClassName,
			Pose:      pose,
			Solid:     d.Solid,
			Outline:   d.Outline,
			Quality:   d.QualityScore(),
			Mode:      ModeSolid,
		}
		r.anchors = append(r.anchors, a)
		created++
		r.log.Infow("anchor created",
			"class", d.ClassName,
			"id", a.ID,
			"quality", a.Quality,
		)
	}
	return created
}

// AutoUpdate upgrades anchors from the current live detections. It runs at
// most once per UpdateInterval on the registry's clock and never while
// paused. Each detection considers only its nearest same-class anchor
// within twice SpawnDistance, and that anchor is replaced in place iff the
// detection's quality exceeds the stored score by strictly more than
// ImprovementThreshold.
//
// Returns:
//   - int: The number of anchors upgraded.
func (r *Registry) AutoUpdate(live []pipeline.LiveDetection, viewer spatial.Pose) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.paused {
		return 0
	}
	now := r.clock.Now()
	if now.Sub(r.lastUpdate) < r.cfg.UpdateInterval {
		return 0
	}
	r.lastUpdate = now

	updated := 0
	for i := range live {
		d := &live[i]
		if !d.HasWorldPoint {
			continue
		}
		match := r.nearestSameClassLocked(d.ClassName, d.WorldPoint, 2*r.cfg.SpawnDistance)
		if match == nil {
			continue
		}
		newScore := float64(d.QualityScore())
		if newScore-float64(match.Quality) <= r.cfg.ImprovementThreshold {
			continue
		}
		match.Pose = r.anchorPose(d.WorldPoint, viewer)
		match.Solid = d.Solid
		match.Outline = d.Outline
		match.Quality = d.QualityScore()
		updated++
		r.log.Debugw("anchor upgraded",
			"class", d.ClassName,
			"id", match.ID,
			"quality", match.Quality,
		)
	}
	return updated
}

// ModeFor maps a viewer distance to a render mode and the blend factor in
// [0,1] (0 fully outline, 1 fully solid). With a zero blend width the
// switch is a hard comparison against OutlineDistance; otherwise the
// factor ramps linearly across the blend zone and the mode switches at the
// 0.5 crossover, which lies exactly at OutlineDistance.
func (r *Registry) ModeFor(distance float64) (RenderMode, float64) {
	t := r.cfg.OutlineDistance
	bw := r.cfg.BlendWidth
	if bw <= 0 {
		if distance >= t {
			return ModeSolid, 1
		}
		return ModeOutline, 0
	}
	factor := 0.5 + (distance-t)/bw
	if factor < 0 {
		factor = 0
	} else if factor > 1 {
		factor = 1
	}
	if factor >= 0.5 {
		return ModeSolid, factor
	}
	return ModeOutline, factor
}

// UpdateRenderModes recomputes every anchor's mode from its distance to
// the viewer. A mode change swaps the bound bitmap only.
func (r *Registry) UpdateRenderModes(viewer spatial.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.anchors {
		mode, _ := r.ModeFor(viewer.Position.Sub(a.Pose.Position).Norm())
		if mode != a.Mode {
			a.Mode = mode
			r.log.Debugw("anchor mode switched", "id", a.ID, "mode", mode.String())
		}
	}
}

// HasNear reports whether an anchor of the class exists within radius of
// the point. Callers use it to suppress duplicate live rendering where an
// anchor already stands.
func (r *Registry) HasNear(class string, p r3.Vector, radius float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nearestSameClassLocked(class, p, radius) != nil
}

// Remove deletes the anchor with the given id.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, a := range r.anchors {
		if a.ID == id {
			r.anchors = append(r.anchors[:i], r.anchors[i+1:]...)
			r.log.Infow("anchor removed", "class", a.ClassName, "id", id)
			return true
		}
	}
	return false
}

// Clear drops every anchor, for reset and recenter events.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.anchors); n > 0 {
		r.log.Infow("anchors cleared", "count", n)
	}
	r.anchors = nil
}

// Len returns the anchor count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.anchors)
}

// Anchors returns a value snapshot of the registry. Bitmap pointers are
// shared; bitmaps are never mutated after publication.
func (r *Registry) Anchors() []AnchoredMask {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AnchoredMask, len(r.anchors))
	for i, a := range r.anchors {
		out[i] = *a
	}
	return out
}

// Pause suspends or resumes auto-updates.
func (r *Registry) Pause(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

// anchorPose places an anchor at the world point, nudged toward the
// viewer by SurfaceOffset and oriented to face them.
func (r *Registry) anchorPose(point r3.Vector, viewer spatial.Pose) spatial.Pose {
	position := spatial.OffsetToward(point, viewer.Position, r.cfg.SurfaceOffset)
	return spatial.NewPose(position, spatial.LookAt(position, viewer.Position))
}

// nearestSameClassLocked returns the closest anchor of the class within
// radius, or nil. Callers hold the mutex.
func (r *Registry) nearestSameClassLocked(class string, p r3.Vector, radius float64) *AnchoredMask {
	var best *AnchoredMask
	var bestDist float64
	for _, a := range r.anchors {
		d := a.Pose.Position.Sub(p).Norm()
		if a.ClassName != class || d > radius {
			continue
		}
		if best == nil || d < bestDist {
			best = a
			bestDist = d
		}
	}
	return best
}
