package settings

import (
	"fmt"
	"slices"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FilterDefinition names one bloom filter held in redis.
type FilterDefinition struct {
	Name                     string  `yaml:"name"`
	Key                      string  `yaml:"key"`
	Partition                int     `yaml:"partition"`
	ExpectedInsertions       uint64  `yaml:"expected_insertions"`
	FalsePositiveProbability float64 `yaml:"false_positive_probability"`
	Funnel                   string  `yaml:"funnel"`
}

// PrimaryFilterName is the name given to the filter configured under BC__FILTER__*.
const PrimaryFilterName = "primary"

func primaryDefinition() FilterDefinition {
	return FilterDefinition{
		Name:                     PrimaryFilterName,
		Key:                      Filter.Key,
		Partition:                Filter.Partition,
		ExpectedInsertions:       Filter.ExpectedInsertions,
		FalsePositiveProbability: Filter.FalsePositiveProbability,
		Funnel:                   Filter.Funnel,
	}
}

// readFiltersFromYAML parses a yaml list of filter definitions.
func readFiltersFromYAML(yamlContent string) ([]FilterDefinition, error) {
	var defs []FilterDefinition
	if err := yaml.Unmarshal([]byte(yamlContent), &defs); err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].Name == "" {
			return nil, fmt.Errorf("filter definition %d has no name", i)
		}
	}
	return defs, nil
}

// mergeFilterLists overlays newList onto base by name, unset fields fall back to the base entry.
func mergeFilterLists(base *[]FilterDefinition, newList []FilterDefinition) error {
	var existing = make(map[string]int)
	var names []string
	for i, def := range *base {
		existing[def.Name] = i
		names = append(names, def.Name)
	}
	for _, n := range newList {
		if !slices.Contains(names, n.Name) {
			*base = append(*base, n)
			continue
		}
		targetIndex := existing[n.Name]
		err := mergo.Merge(&n, (*base)[targetIndex])
		if err != nil {
			return err
		}
		(*base)[targetIndex] = n
	}
	return nil
}

// setMissingFilterProperties fills sizing and encoding from the primary filter.
func setMissingFilterProperties(def *FilterDefinition) error {
	if def.Key == "" {
		def.Key = def.Name
	}
	return mergo.Merge(def, FilterDefinition{
		ExpectedInsertions:       Filter.ExpectedInsertions,
		FalsePositiveProbability: Filter.FalsePositiveProbability,
		Funnel:                   Filter.Funnel,
	})
}

// GetFilterDefinitions returns the primary filter plus any defined in BC__FILTERS.
func GetFilterDefinitions() ([]FilterDefinition, error) {
	defs := []FilterDefinition{primaryDefinition()}
	if Settings.Filters == "" {
		Logger.Debug().Msg("no additional filter definitions provided")
		return defs, nil
	}
	configured, err := readFiltersFromYAML(Settings.Filters)
	if err != nil {
		return nil, fmt.Errorf("error reading filters from yaml: %w", err)
	}
	for i := range configured {
		if configured[i].Name == PrimaryFilterName {
			continue
		}
		if err := setMissingFilterProperties(&configured[i]); err != nil {
			return nil, err
		}
	}
	if err := mergeFilterLists(&defs, configured); err != nil {
		return nil, fmt.Errorf("failed to merge filter definitions: %w", err)
	}
	return defs, nil
}

// GetFilterDefinition looks up a single definition by name.
func GetFilterDefinition(name string) (FilterDefinition, error) {
	defs, err := GetFilterDefinitions()
	if err != nil {
		return FilterDefinition{}, err
	}
	for _, def := range defs {
		if def.Name == name {
			return def, nil
		}
	}
	return FilterDefinition{}, fmt.Errorf("no filter named '%s'", name)
}
