package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeyFilters(defs []FilterDefinition) map[string]FilterDefinition {
	keyed := map[string]FilterDefinition{}
	for i := range defs {
		keyed[defs[i].Name] = defs[i]
	}
	return keyed
}

func TestReadFiltersFromYAML(t *testing.T) {
	yamlContent := `
- name: orders
  key: ORDER_IDS
  partition: 2
  expected_insertions: 1000
- name: sessions
`
	defs, err := readFiltersFromYAML(yamlContent)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	keyed := testKeyFilters(defs)
	require.Equal(t, FilterDefinition{Name: "orders", Key: "ORDER_IDS", Partition: 2, ExpectedInsertions: 1000}, keyed["orders"])
	require.Equal(t, FilterDefinition{Name: "sessions"}, keyed["sessions"])

	_, err = readFiltersFromYAML("- key: nameless")
	require.Error(t, err)
}

func TestMergeFilterLists(t *testing.T) {
	base := []FilterDefinition{
		{Name: "primary", Key: "USER_INFO", Partition: 1, ExpectedInsertions: 100},
		{Name: "orders", Key: "ORDERS", ExpectedInsertions: 10},
	}
	newList := []FilterDefinition{
		{Name: "primary", Partition: 4},
		{Name: "sessions", Key: "SESSIONS"},
	}
	err := mergeFilterLists(&base, newList)
	require.NoError(t, err)

	expected := []FilterDefinition{
		{Name: "primary", Key: "USER_INFO", Partition: 4, ExpectedInsertions: 100},
		{Name: "orders", Key: "ORDERS", ExpectedInsertions: 10},
		{Name: "sessions", Key: "SESSIONS"},
	}
	require.Equal(t, expected, base)
}

func TestGetFilterDefinitions(t *testing.T) {
	defer ResetSettings()
	Settings.Filters = `
- name: orders
  partition: 2
  false_positive_probability: 0.05
`
	defs, err := GetFilterDefinitions()
	require.NoError(t, err)
	keyed := testKeyFilters(defs)
	require.Equal(t, FilterDefinition{
		Name:                     "primary",
		Key:                      "USER_INFO",
		Partition:                1,
		ExpectedInsertions:       1500000,
		FalsePositiveProbability: 0.001,
		Funnel:                   "doubled_string",
	}, keyed["primary"])
	require.Equal(t, FilterDefinition{
		Name:                     "orders",
		Key:                      "orders",
		Partition:                2,
		ExpectedInsertions:       1500000,
		FalsePositiveProbability: 0.05,
		Funnel:                   "doubled_string",
	}, keyed["orders"])

	def, err := GetFilterDefinition("orders")
	require.NoError(t, err)
	require.Equal(t, 2, def.Partition)
	_, err = GetFilterDefinition("missing")
	require.Error(t, err)
}
