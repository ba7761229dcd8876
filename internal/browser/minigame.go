package browser

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"bookpilot/internal/logging"
	"bookpilot/internal/siteconfig"
)

// The rotation puzzle maps a rotation angle (radians, read from page state)
// to a horizontal drag distance through a fixed pixel-per-radian constant.
const (
	pixelsPerRadian  = 57.0
	rotatePollLimit  = 60
	rotatePollSleep  = 100 * time.Millisecond
	holdDuration     = 3100 * time.Millisecond
	dragStepCount    = 12
	dragStepInterval = 15 * time.Millisecond
)

// MiniGameSolver resolves the rotate-to-angle scheduling-slot gate that some
// sites render between branch and date selection.
type MiniGameSolver struct {
	selectors siteconfig.Challenge
}

// NewMiniGameSolver builds a solver for one site's mini-game selectors.
func NewMiniGameSolver(selectors siteconfig.Challenge) *MiniGameSolver {
	return &MiniGameSolver{selectors: selectors}
}

// Present reports whether the mini-game canvas is on the page right now.
func (m *MiniGameSolver) Present(page *rod.Page) bool {
	if m.selectors.Canvas == "" {
		return false
	}
	return visibleElement(page, m.selectors.Canvas) != nil
}

// Solve drags the puzzle piece to its straightened angle and performs the
// confirming press-and-hold. Returns false when the status text never
// reports success within the poll budget.
func (m *MiniGameSolver) Solve(page *rod.Page) bool {
	log := logging.Get(logging.CategoryChallenge)

	canvasSel, err := siteconfig.Require("canvas", m.selectors.Canvas)
	if err != nil {
		log.Warnf("mini-game: %v", err)
		return false
	}
	canvas, err := page.Timeout(probeTimeout).Element(canvasSel)
	if err != nil {
		log.Warnf("mini-game canvas not found: %v", err)
		return false
	}

	center, err := elementCenter(canvas)
	if err != nil {
		log.Warnf("mini-game center: %v", err)
		return false
	}

	rotation, err := readRotation(page)
	if err != nil {
		log.Warnf("mini-game rotation state: %v", err)
		return false
	}

	distance := dragDistance(rotation)
	if err := m.drag(page, center, distance); err != nil {
		log.Warnf("mini-game drag: %v", err)
		return false
	}

	if !m.pollStraightened(page) {
		log.Warnf("mini-game: status never reported straightened")
		return false
	}

	if err := m.pressAndHold(page, center); err != nil {
		log.Warnf("mini-game hold: %v", err)
		return false
	}
	log.Infof("mini-game solved (rotation %.3f rad, drag %.0f px)", rotation, distance)
	return true
}

// SolvePresets is the variant for sites without a readable rotation value:
// it tries preset drag distances until the status element crosses the
// success threshold.
func (m *MiniGameSolver) SolvePresets(page *rod.Page, distances []float64) bool {
	log := logging.Get(logging.CategoryChallenge)
	if len(distances) == 0 {
		distances = []float64{40, 80, 120, 160, -40, -80}
	}

	canvas, err := page.Timeout(probeTimeout).Element(m.selectors.Canvas)
	if err != nil {
		log.Warnf("mini-game canvas not found: %v", err)
		return false
	}
	center, err := elementCenter(canvas)
	if err != nil {
		log.Warnf("mini-game center: %v", err)
		return false
	}

	for _, d := range distances {
		if err := m.drag(page, center, d); err != nil {
			log.Warnf("mini-game preset drag %.0f: %v", d, err)
			continue
		}
		if m.pollStraightened(page) {
			if err := m.pressAndHold(page, center); err != nil {
				log.Warnf("mini-game hold: %v", err)
				return false
			}
			return true
		}
	}
	return false
}

// dragDistance converts a rotation in radians to a horizontal drag in
// pixels. The shortest direction wins: angles past pi unwind backwards.
func dragDistance(rotation float64) float64 {
	r := math.Mod(rotation, 2*math.Pi)
	if r > math.Pi {
		r -= 2 * math.Pi
	} else if r < -math.Pi {
		r += 2 * math.Pi
	}
	return -r * pixelsPerRadian
}

func readRotation(page *rod.Page) (float64, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const s = window.__gameState || window.gameState || {};
			const r = s.rotation ?? s.angle;
			return (typeof r === 'number') ? r : null;
		}`,
		ByValue: true,
	})
	if err != nil {
		return 0, err
	}
	if res == nil || res.Value.Nil() {
		return 0, fmt.Errorf("rotation not exposed in page state")
	}
	return res.Value.Num(), nil
}

// elementCenter averages the element's first content quad into its
// screen-space center.
func elementCenter(el *rod.Element) (proto.Point, error) {
	shape, err := el.Shape()
	if err != nil {
		return proto.Point{}, err
	}
	if shape == nil || len(shape.Quads) == 0 {
		return proto.Point{}, fmt.Errorf("element has no content quads")
	}
	quad := shape.Quads[0]
	x := (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	y := (quad[1] + quad[3] + quad[5] + quad[7]) / 4
	return proto.Point{X: x, Y: y}, nil
}

// drag performs a synthetic mouse-down, stepped horizontal move, mouse-up.
func (m *MiniGameSolver) drag(page *rod.Page, from proto.Point, distance float64) error {
	mouse := page.Mouse
	if err := mouse.MoveTo(from); err != nil {
		return err
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	step := distance / dragStepCount
	for i := 1; i <= dragStepCount; i++ {
		if err := mouse.MoveTo(proto.Point{X: from.X + step*float64(i), Y: from.Y}); err != nil {
			_ = mouse.Up(proto.InputMouseButtonLeft, 1)
			return err
		}
		time.Sleep(dragStepInterval)
	}
	return mouse.Up(proto.InputMouseButtonLeft, 1)
}

// pollStraightened watches the status text for the configured success
// phrase, bounded by rotatePollLimit iterations.
func (m *MiniGameSolver) pollStraightened(page *rod.Page) bool {
	statusSel := m.selectors.StatusText
	phrase := m.selectors.SuccessPhrase
	if statusSel == "" || phrase == "" {
		return false
	}
	for i := 0; i < rotatePollLimit; i++ {
		if el, err := page.Timeout(probeTimeout).Element(statusSel); err == nil {
			if text, err := el.Text(); err == nil && strings.Contains(text, phrase) {
				return true
			}
		}
		time.Sleep(rotatePollSleep)
	}
	return false
}

// pressAndHold performs the second confirming interaction: a fixed-duration
// hold at the canvas center.
func (m *MiniGameSolver) pressAndHold(page *rod.Page, at proto.Point) error {
	mouse := page.Mouse
	if err := mouse.MoveTo(at); err != nil {
		return err
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	time.Sleep(holdDuration)
	return mouse.Up(proto.InputMouseButtonLeft, 1)
}
