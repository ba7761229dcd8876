package main

import (
	"encoding/json"
	"fmt"
	"os"

	"bookpilot/internal/workflow"
)

// loadProfiles reads the named personal-data profiles used to fill the
// optional booking form. A missing file yields no profiles.
func loadProfiles(path string) (map[string]*workflow.Profile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var raw map[string]struct {
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		NationalID string `json:"national_id"`
		Phone      string `json:"phone"`
		Gender     string `json:"gender"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	profiles := make(map[string]*workflow.Profile, len(raw))
	for name, p := range raw {
		profiles[name] = &workflow.Profile{
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			NationalID: p.NationalID,
			Phone:      p.Phone,
			Gender:     p.Gender,
		}
	}
	return profiles, nil
}
