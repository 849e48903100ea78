package scenario

import (
	"testing"

	"github.com/rahul/uipilot/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkoutYAML = `
name: checkout
start_url: https://shop.test
steps:
  - direction: log in as qa@shop.test
  - verification: the dashboard greets the user
`

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(checkoutYAML))
	require.NoError(t, err)
	assert.Equal(t, "checkout", sc.Name)
	assert.Equal(t, "web", sc.Platform)
	assert.Equal(t, "https://shop.test", sc.StartURL)
	require.Len(t, sc.Steps, 2)

	obj, err := sc.Steps[1].Objective()
	require.NoError(t, err)
	assert.Equal(t, agent.Verification("the dashboard greets the user"), obj)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no name":          "steps:\n  - direction: x\n",
		"no steps":         "name: empty\n",
		"both kinds":       "name: a\nsteps:\n  - direction: x\n    verification: y\n",
		"empty step":       "name: a\nsteps:\n  - {}\n",
		"unknown platform": "name: a\nplatform: tv\nsteps:\n  - direction: x\n",
		"not yaml":         "name: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidScenario)
		})
	}
}

func TestStep_Key(t *testing.T) {
	a := Step{Direction: "open the cart"}
	assert.Equal(t, a.Key(), Step{Direction: "  open the cart "}.Key())
	assert.NotEqual(t, a.Key(), Step{Verification: "open the cart"}.Key())
	assert.NotEqual(t, a.Key(), Step{Direction: "open the basket"}.Key())
	assert.Empty(t, Step{}.Key())
}
