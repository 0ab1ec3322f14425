package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Permutation selects the shader pair and push constant variant.
type Permutation uint8

const (
	PermutationMesh Permutation = iota
	PermutationShadow
	PermutationDebug
)

func (p Permutation) String() string {
	switch p {
	case PermutationMesh:
		return "mesh"
	case PermutationShadow:
		return "shadow"
	case PermutationDebug:
		return "debug"
	}
	return "unknown"
}

// PipelineKey is the fixed-function state a pipeline was built with.
type PipelineKey struct {
	Permutation Permutation
	Cull        gpu.CullMode
	FrontFace   gpu.FrontFace
	DepthTest   bool
	DepthWrite  bool
	Blend       gpu.BlendMode
}

func (k PipelineKey) name() string {
	n := fmt.Sprintf("%s-cull%d-ff%d", k.Permutation, k.Cull, k.FrontFace)
	if k.DepthTest {
		n += "-dt"
	}
	if k.DepthWrite {
		n += "-dw"
	}
	if k.Blend == gpu.BlendAlpha {
		n += "-blend"
	}
	return n
}

// shaderSet holds the modules a permutation is built from.
type shaderSet struct {
	vertex   gpu.ShaderModule
	fragment gpu.ShaderModule
	// entry points, "main" when the blob names none
	vertexEntry   string
	fragmentEntry string
}

// pipelineCache builds pipeline variants on first use. Variants live until
// the cache is flushed, which requires the device to be idle.
type pipelineCache struct {
	device  gpu.Device
	layout  gpu.PipelineLayout
	shaders map[Permutation]shaderSet
	// render pass and sample count per permutation
	passes  map[Permutation]gpu.RenderPass
	samples map[Permutation]uint32
	cache   map[PipelineKey]gpu.Pipeline
}

func newPipelineCache(device gpu.Device, layout gpu.PipelineLayout) *pipelineCache {
	return &pipelineCache{
		device:  device,
		layout:  layout,
		shaders: map[Permutation]shaderSet{},
		passes:  map[Permutation]gpu.RenderPass{},
		samples: map[Permutation]uint32{},
		cache:   map[PipelineKey]gpu.Pipeline{},
	}
}

func (c *pipelineCache) setShaders(p Permutation, s shaderSet) {
	c.shaders[p] = s
}

// setTarget points p at a render pass. Variants built for another pass are
// destroyed.
func (c *pipelineCache) setTarget(p Permutation, pass gpu.RenderPass, samples uint32) {
	if c.passes[p] == pass && c.samples[p] == samples {
		return
	}
	c.passes[p] = pass
	c.samples[p] = samples
	c.flush(func(k PipelineKey) bool { return k.Permutation == p })
}

func (c *pipelineCache) get(k PipelineKey) (gpu.Pipeline, error) {
	if p, ok := c.cache[k]; ok {
		return p, nil
	}
	s, ok := c.shaders[k.Permutation]
	if !ok {
		return nil, errors.Wrapf(core.ErrMissingShader, "no shaders for the %s permutation", k.Permutation)
	}
	pass, ok := c.passes[k.Permutation]
	if !ok {
		return nil, errors.Newf("no render pass for the %s permutation", k.Permutation)
	}
	desc := gpu.GraphicsPipelineDesc{
		Name:         k.name(),
		Layout:       c.layout,
		RenderPass:   pass,
		Stages:       []gpu.ShaderStageDesc{{Stage: gpu.ShaderStageVertex, Module: s.vertex, EntryPoint: s.vertexEntry}},
		Topology:     gpu.TopologyTriangleList,
		CullMode:     k.Cull,
		FrontFace:    k.FrontFace,
		DepthTest:    k.DepthTest,
		DepthWrite:   k.DepthWrite,
		DepthCompare: gpu.CompareLessOrEqual,
		Blend:        k.Blend,
		Samples:      c.samples[k.Permutation],
		HasColor:     s.fragment != nil,
	}
	if s.fragment != nil {
		desc.Stages = append(desc.Stages, gpu.ShaderStageDesc{Stage: gpu.ShaderStageFragment, Module: s.fragment, EntryPoint: s.fragmentEntry})
	}
	switch k.Permutation {
	case PermutationShadow:
		desc.DepthBias = true
		desc.DepthBiasConst = 1.25
		desc.DepthBiasSlope = 1.75
	case PermutationDebug:
		desc.Topology = gpu.TopologyLineList
	}
	p, err := c.device.CreateGraphicsPipeline(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "creating pipeline %s", desc.Name)
	}
	core.LogDebug("pipeline %s created", desc.Name)
	c.cache[k] = p
	return p, nil
}

func (c *pipelineCache) flush(match func(PipelineKey) bool) {
	for k, p := range c.cache {
		if match(k) {
			c.device.DestroyPipeline(p)
			delete(c.cache, k)
		}
	}
}

func (c *pipelineCache) len() int { return len(c.cache) }

// destroy releases every variant and forgets the shader modules, which the
// caller owns.
func (c *pipelineCache) destroy() {
	c.flush(func(PipelineKey) bool { return true })
	c.shaders = map[Permutation]shaderSet{}
}

// opaqueKey, blendedKey, shadowKey and debugKey derive the variant for this
// frame from the current settings.
func opaqueKey(s Settings) PipelineKey {
	return PipelineKey{
		Permutation: PermutationMesh,
		Cull:        s.Cull,
		FrontFace:   s.FrontFace,
		DepthTest:   s.DepthTest,
		DepthWrite:  s.DepthTest,
		Blend:       gpu.BlendNone,
	}
}

func blendedKey(s Settings) PipelineKey {
	return PipelineKey{
		Permutation: PermutationMesh,
		Cull:        gpu.CullNone,
		FrontFace:   s.FrontFace,
		DepthTest:   s.DepthTest,
		DepthWrite:  false,
		Blend:       gpu.BlendAlpha,
	}
}

func shadowKey(s Settings) PipelineKey {
	return PipelineKey{
		Permutation: PermutationShadow,
		Cull:        gpu.CullNone,
		FrontFace:   s.FrontFace,
		DepthTest:   true,
		DepthWrite:  true,
	}
}

func debugKey(s Settings) PipelineKey {
	return PipelineKey{
		Permutation: PermutationDebug,
		Cull:        gpu.CullNone,
		DepthTest:   s.DepthTest,
	}
}
