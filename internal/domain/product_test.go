package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProduct_Normalize(t *testing.T) {
	p := Product{
		Title:       "Trail Runner Été",
		Status:      " Active ",
		Collections: []string{"Summer Sale", "summer-sale", "Outdoor"},
	}
	p.Normalize()

	assert.Equal(t, "trail-runner-ete", p.Handle)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, []string{"summer-sale", "outdoor"}, p.Collections)
}

func TestProduct_NormalizeKeepsExplicitHandle(t *testing.T) {
	p := Product{Title: "Trail Runner", Handle: "trail-runner-v2"}
	p.Normalize()

	assert.Equal(t, "trail-runner-v2", p.Handle)
}
