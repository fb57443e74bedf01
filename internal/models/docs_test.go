package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposedModulesFlatList(t *testing.T) {
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(`{"exposed-modules": ["Array", "Dict", "Set"]}`), &m))

	assert.Equal(t, ExposedModules{
		{Name: "Array", Order: 0},
		{Name: "Dict", Order: 1},
		{Name: "Set", Order: 2},
	}, m.ExposedModules)
}

func TestExposedModulesCategoriesKeepDocumentOrder(t *testing.T) {
	raw := `{
		"name": "gren-lang/core",
		"exposed-modules": {
			"Primitives": ["Basics", "String"],
			"Collections": ["Array", "Dict"],
			"Effects": ["Task"]
		}
	}`
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, ExposedModules{
		{Name: "Basics", Order: 0, Category: "Primitives"},
		{Name: "String", Order: 1, Category: "Primitives"},
		{Name: "Array", Order: 2, Category: "Collections"},
		{Name: "Dict", Order: 3, Category: "Collections"},
		{Name: "Task", Order: 4, Category: "Effects"},
	}, m.ExposedModules)
}

func TestExposedModulesRejectsScalars(t *testing.T) {
	var m Manifest
	assert.Error(t, json.Unmarshal([]byte(`{"exposed-modules": 7}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"exposed-modules": {"A": "B"}}`), &m))
}

func TestPlacedModules(t *testing.T) {
	a := &BuildArtifact{
		Manifest: Manifest{ExposedModules: ExposedModules{
			{Name: "Dict", Order: 0, Category: "Collections"},
			{Name: "Array", Order: 1, Category: "Collections"},
		}},
		Modules: []ModuleDocs{{Name: "Array"}, {Name: "Internal"}, {Name: "Dict"}},
	}

	placed := a.PlacedModules()
	require.Len(t, placed, 3)
	assert.Equal(t, 1, placed[0].Order)
	assert.Equal(t, "Collections", placed[0].Category)
	assert.Equal(t, 2, placed[1].Order)
	assert.Empty(t, placed[1].Category)
	assert.Equal(t, 0, placed[2].Order)
}
