package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/nexus/pkg/domain"
)

const sampleCatalog = `
processors:
  - id: stripe
    status: LIVE
    capabilities:
      refunds: true
  - id: dlocal
    name: dLocal
    status: IN_PROGRESS
features:
  - processor_id: stripe
    country: " us "
    supported_methods: [card, Card, apple_pay]
    status: LIVE
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, c.Processors, 2)
	assert.Equal(t, "stripe", c.Processors[0].Name)
	assert.True(t, c.Processors[0].Capabilities.Refunds)
	assert.Equal(t, domain.PlatformInProgress, c.Processors[1].Status)

	require.Len(t, c.Features, 1)
	assert.Equal(t, "US", c.Features[0].Country)
	assert.Equal(t, []string{"card", "apple_pay"}, c.Features[0].SupportedMethods)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "processors:\n  - id: x\n    status: LIVE\n    colour: red\n",
		"bad status":        "processors:\n  - id: x\n    status: MAYBE\n",
		"missing id":        "processors:\n  - status: LIVE\n",
		"unknown processor": "features:\n  - processor_id: ghost\n    country: US\n    status: LIVE\n",
		"deprecated feature": "processors:\n  - id: x\n    status: LIVE\n" +
			"features:\n  - processor_id: x\n    country: US\n    status: DEPRECATED\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
