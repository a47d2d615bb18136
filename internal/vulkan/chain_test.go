package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/vkrender/internal/lifecycle"
)

func TestChainStageOrder(t *testing.T) {
	ch := &chain{}
	plan, err := lifecycle.NewPlan(ch.stages()...)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"swapchain",
		"image-views",
		"render-pass",
		"pipelines",
		"depth",
		"framebuffers",
		"uniform-buffers",
		"descriptors",
		"command-buffers",
	}, plan.Names())

	assert.Equal(t, []string{
		"command-buffers",
		"descriptors",
		"uniform-buffers",
		"framebuffers",
		"depth",
		"pipelines",
		"render-pass",
		"image-views",
		"swapchain",
	}, plan.TeardownOrder())
}

func TestChainStagesDependOnEarlierStages(t *testing.T) {
	stages := (&chain{}).stages()
	index := make(map[string]int, len(stages))
	for i, s := range stages {
		index[s.Name] = i
		assert.NotNil(t, s.Create, s.Name)
		assert.NotNil(t, s.Destroy, s.Name)
	}

	for i, s := range stages[1:] {
		require.NotEmpty(t, s.After, "%s must follow the swapchain", s.Name)
		for _, dep := range s.After {
			assert.Less(t, index[dep], i+1, "%s after %s", s.Name, dep)
		}
	}
	assert.ElementsMatch(t, []string{"framebuffers", "pipelines", "descriptors"}, stages[len(stages)-1].After)
}

func TestChainDestroyUnbuiltIsNoop(t *testing.T) {
	ch := &chain{}
	plan, err := lifecycle.NewPlan(ch.stages()...)
	require.NoError(t, err)
	ch.plan = plan

	assert.False(t, plan.Built())
	assert.NotPanics(t, ch.Destroy)
}
