package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"bookpilot/internal/logging"
	"bookpilot/internal/siteconfig"
)

// ImageTile is one candidate image of a select-matching-images challenge.
type ImageTile struct {
	Index int
	Src   string
}

// ImageSolver decides which tiles match the challenge instruction. The
// engine ships without a concrete implementation; callers plug one in.
type ImageSolver interface {
	Solve(instruction string, tiles []ImageTile) ([]int, error)
}

// probeTimeout bounds the "is this overlay present" checks. Overlay absence
// is the common case, so the probe must fail fast.
const probeTimeout = 2 * time.Second

// ChallengeSolver inspects the page for known anti-bot overlays and
// resolves them. It never lets a failure escape its boundary: any internal
// error becomes a false return plus a logged reason.
type ChallengeSolver struct {
	selectors siteconfig.Challenge
	images    ImageSolver
}

// NewChallengeSolver builds a solver for one site's challenge selectors.
// images may be nil; image challenges then report unresolved.
func NewChallengeSolver(selectors siteconfig.Challenge, images ImageSolver) *ChallengeSolver {
	return &ChallengeSolver{selectors: selectors, images: images}
}

// Resolve implements Resolver. True means no challenge was present or the
// challenge was resolved; false means a challenge is present and unresolved.
func (c *ChallengeSolver) Resolve(page *rod.Page) bool {
	log := logging.Get(logging.CategoryChallenge)

	// Begin-gate button: click through when visible, absence is not an error.
	if c.selectors.BeginButton != "" {
		if el := visibleElement(page, c.selectors.BeginButton); el != nil {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				log.Warnf("begin gate click failed: %v", err)
				return false
			}
			_ = page.WaitStable(time.Second)
			log.Infof("clicked through begin gate")
		}
	}

	// Image-selection challenge.
	if c.selectors.ImageTitle != "" {
		if title := visibleElement(page, c.selectors.ImageTitle); title != nil {
			if err := c.solveImageChallenge(page, title); err != nil {
				log.Warnf("image challenge unresolved: %v", err)
				return false
			}
			log.Infof("image challenge resolved")
		}
	}

	return true
}

// solveImageChallenge reads the instruction text, asks the plugged-in
// solver which tiles to click, clicks them, and confirms.
func (c *ChallengeSolver) solveImageChallenge(page *rod.Page, title *rod.Element) error {
	if c.images == nil {
		return fmt.Errorf("no image solver configured")
	}

	instruction, err := title.Text()
	if err != nil {
		return fmt.Errorf("read instruction: %w", err)
	}

	tileSel, err := siteconfig.Require("image_tiles", c.selectors.ImageTiles)
	if err != nil {
		return err
	}
	elements, err := page.Timeout(probeTimeout).Elements(tileSel)
	if err != nil {
		return fmt.Errorf("find tiles: %w", err)
	}

	tiles := make([]ImageTile, 0, len(elements))
	for i, el := range elements {
		src := ""
		if attr, err := el.Attribute("src"); err == nil && attr != nil {
			src = *attr
		}
		tiles = append(tiles, ImageTile{Index: i, Src: src})
	}

	picks, err := c.images.Solve(instruction, tiles)
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}
	for _, idx := range picks {
		if idx < 0 || idx >= len(elements) {
			continue
		}
		if err := elements[idx].Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click tile %d: %w", idx, err)
		}
	}

	confirmSel, err := siteconfig.Require("image_confirm", c.selectors.ImageConfirm)
	if err != nil {
		return err
	}
	confirm, err := page.Timeout(probeTimeout).Element(confirmSel)
	if err != nil {
		return fmt.Errorf("find confirm: %w", err)
	}
	return confirm.Click(proto.InputMouseButtonLeft, 1)
}

// visibleElement returns the element for selector when it exists and is
// visible right now, nil otherwise.
func visibleElement(page *rod.Page, selector string) *rod.Element {
	el, err := page.Timeout(probeTimeout).Element(selector)
	if err != nil {
		return nil
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return nil
	}
	return el
}
