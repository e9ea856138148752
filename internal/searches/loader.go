package searches

import (
	"context"
	"fmt"
	"os"

	"github.com/leadscout/leadscout/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Searches []models.KeywordSearchSpec `yaml:"searches"`
}

// LoadFile reads search definitions from a YAML file of the form
//
//	searches:
//	  - name: crm-buyers
//	    keywords: [crm, "sales pipeline"]
//	    platforms: [reddit]
//	    mode: scheduled
//	    interval: 6h
//	    enabled: true
func LoadFile(path string) ([]models.KeywordSearchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read searches file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse searches file: %v", models.ErrValidation, err)
	}

	for i := range file.Searches {
		spec := &file.Searches[i]
		ApplyDefaults(spec)
		if err := Validate(spec); err != nil {
			return nil, fmt.Errorf("search %d (%q): %w", i, spec.Name, err)
		}
	}

	return file.Searches, nil
}

// Seed loads the YAML file and upserts each search by name
func Seed(ctx context.Context, store StoreInterface, path string) (int, error) {
	specs, err := LoadFile(path)
	if err != nil {
		return 0, err
	}

	for i := range specs {
		if err := store.UpsertByName(ctx, &specs[i]); err != nil {
			return i, err
		}
		logrus.Infof("Seeded search %q (%s)", specs[i].Name, specs[i].ID)
	}

	return len(specs), nil
}
