// Package siteconfig holds the per-site selector maps consumed by the booking
// workflow. Each site maps logical roles (register button, branch container,
// date/time button templates, challenge elements) to concrete page locators.
// Legacy key aliases are resolved once at load time; call sites only ever see
// the typed struct.
package siteconfig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selectors maps logical roles to page locators. Empty fields mean the role
// is not configured for the site; Require turns that into a hard stop for
// the step that needs it.
type Selectors struct {
	Logo             string `yaml:"logo"`
	Register         string `yaml:"register"`
	DisabledClass    string `yaml:"disabled_class"`
	OpenDate         string `yaml:"open_date"`
	BranchContainer  string `yaml:"branch_container"`
	BranchButton     string `yaml:"branch_button"` // template, %s = branch label
	NextAfterBranch  string `yaml:"next_after_branch"`
	DateButton       string `yaml:"date_button"` // template, %s = day
	TimeContainer    string `yaml:"time_container"`
	TimeButton       string `yaml:"time_button"` // template, %s = time label
	ConfirmSelection string `yaml:"confirm_selection"`
	Checkbox         string `yaml:"checkbox"`
	ConfirmBooking   string `yaml:"confirm_booking"`

	// Profile form (optional, best effort).
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	NationalID  string `yaml:"national_id"`
	Phone       string `yaml:"phone"`
	Gender      string `yaml:"gender"`
	Consent     string `yaml:"consent"`
	ProfileNext string `yaml:"profile_next"`

	// Login affordance for the optional identity step.
	ProfileConnect string `yaml:"profile_connect"`
}

// Challenge holds the locators for the anti-bot overlay elements.
type Challenge struct {
	BeginButton   string `yaml:"begin_button"`
	ImageTitle    string `yaml:"image_title"`
	ImageTiles    string `yaml:"image_tiles"`
	ImageConfirm  string `yaml:"image_confirm"`
	Canvas        string `yaml:"canvas"`
	StatusText    string `yaml:"status_text"`
	SuccessPhrase string `yaml:"success_phrase"`

	// PresetDistances switches the mini-game to the preset-drag variant
	// for sites whose puzzle exposes no readable rotation value.
	PresetDistances []float64 `yaml:"preset_distances"`
}

// Site is the full selector map for one booking site.
type Site struct {
	Name      string    `yaml:"name"`
	URL       string    `yaml:"url"`
	Selectors Selectors `yaml:"selectors"`
	Challenge Challenge `yaml:"challenge"`
}

// file mirrors the on-disk YAML shape, including the legacy alias keys that
// older configs still carry.
type file struct {
	Sites map[string]siteNode `yaml:"sites"`
}

type siteNode struct {
	Name      string               `yaml:"name"`
	URL       string               `yaml:"url"`
	Selectors map[string]yaml.Node `yaml:"selectors"`
	Challenge Challenge            `yaml:"challenge"`
}

// aliases lists legacy selector keys in precedence order: the canonical key
// always wins; aliases are consulted left to right only when it is absent.
var aliases = map[string][]string{
	"register":          {"register_btn", "register_button"},
	"branch_container":  {"branches", "branch_box"},
	"branch_button":     {"branch_btn"},
	"date_button":       {"date_btn", "day_button"},
	"time_button":       {"time_btn", "slot_button"},
	"confirm_selection": {"confirm_datetime", "confirm_dt"},
	"confirm_booking":   {"confirm_btn", "final_confirm"},
	"checkbox":          {"agree_checkbox"},
	"open_date":         {"open_announcement"},
}

// Load reads the site selector maps from a YAML file and resolves aliases.
func Load(path string) (map[string]*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site config: %w", err)
	}
	return Parse(data)
}

// Parse decodes site selector maps from YAML bytes.
func Parse(data []byte) (map[string]*Site, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse site config: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("site config has no sites")
	}

	sites := make(map[string]*Site, len(f.Sites))
	for key, node := range f.Sites {
		site := &Site{
			Name:      node.Name,
			URL:       node.URL,
			Challenge: node.Challenge,
		}
		if site.Name == "" {
			site.Name = key
		}
		if err := resolveSelectors(node.Selectors, &site.Selectors); err != nil {
			return nil, fmt.Errorf("site %q: %w", key, err)
		}
		sites[key] = site
	}
	return sites, nil
}

// resolveSelectors decodes the raw selector map into the typed struct,
// applying alias precedence for keys the canonical decode left empty.
func resolveSelectors(raw map[string]yaml.Node, out *Selectors) error {
	flat := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := v.Decode(&s); err != nil {
			return fmt.Errorf("selector %q: %w", k, err)
		}
		flat[strings.ToLower(k)] = s
	}

	lookup := func(canonical string) string {
		if v := flat[canonical]; v != "" {
			return v
		}
		for _, alias := range aliases[canonical] {
			if v := flat[alias]; v != "" {
				return v
			}
		}
		return ""
	}

	out.Logo = lookup("logo")
	out.Register = lookup("register")
	out.DisabledClass = lookup("disabled_class")
	out.OpenDate = lookup("open_date")
	out.BranchContainer = lookup("branch_container")
	out.BranchButton = lookup("branch_button")
	out.NextAfterBranch = lookup("next_after_branch")
	out.DateButton = lookup("date_button")
	out.TimeContainer = lookup("time_container")
	out.TimeButton = lookup("time_button")
	out.ConfirmSelection = lookup("confirm_selection")
	out.Checkbox = lookup("checkbox")
	out.ConfirmBooking = lookup("confirm_booking")
	out.FirstName = lookup("first_name")
	out.LastName = lookup("last_name")
	out.NationalID = lookup("national_id")
	out.Phone = lookup("phone")
	out.Gender = lookup("gender")
	out.Consent = lookup("consent")
	out.ProfileNext = lookup("profile_next")
	out.ProfileConnect = lookup("profile_connect")
	return nil
}

// Require returns the locator for a role, or an error naming the role when
// it is not configured. A missing role fails the one step that needs it.
func Require(role, locator string) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("selector role %q not configured", role)
	}
	return locator, nil
}
