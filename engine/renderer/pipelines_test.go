package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/assets/assettest"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/gputest"
)

func newTestCache(t *testing.T) (*gputest.Device, *pipelineCache) {
	t.Helper()
	dev := gputest.New()
	layout, err := dev.CreatePipelineLayout(gpu.PipelineLayoutDesc{Name: "test", PushConstantSize: PushConstantSize})
	if err != nil {
		t.Fatal(err)
	}
	c := newPipelineCache(dev, layout)
	module := func(name string) gpu.ShaderModule {
		m, err := dev.CreateShaderModule(name, assettest.FakeSPIRV())
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	c.setShaders(PermutationMesh, shaderSet{vertex: module("mesh.vert"), fragment: module("mesh.frag"), vertexEntry: "main", fragmentEntry: "main"})
	c.setShaders(PermutationShadow, shaderSet{vertex: module("shadow.vert"), vertexEntry: "main"})
	return dev, c
}

func testPass(t *testing.T, dev *gputest.Device, name string) gpu.RenderPass {
	t.Helper()
	rp, err := dev.CreateRenderPass(gpu.RenderPassDesc{Name: name, ColorFormat: drawFormat, Samples: 4})
	if err != nil {
		t.Fatal(err)
	}
	return rp
}

func testSettings() Settings {
	return Settings{Cull: gpu.CullBack, FrontFace: gpu.FrontFaceCounterClockwise, DepthTest: true, Samples: 4, RequestedSamples: 4}
}

func TestPipelineCacheReusesVariants(t *testing.T) {
	dev, c := newTestCache(t)
	c.setTarget(PermutationMesh, testPass(t, dev, "main"), 4)
	s := testSettings()

	a, err := c.get(opaqueKey(s))
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.get(opaqueKey(s))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same key built two pipelines")
	}
	if _, err := c.get(blendedKey(s)); err != nil {
		t.Fatal(err)
	}
	if c.len() != 2 || dev.Live("Pipeline") != 2 {
		t.Errorf("cache holds %d, device %d pipelines, want 2", c.len(), dev.Live("Pipeline"))
	}

	s.Cull = gpu.CullNone
	if _, err := c.get(opaqueKey(s)); err != nil {
		t.Fatal(err)
	}
	if c.len() != 3 {
		t.Errorf("cull change did not build a new variant, cache holds %d", c.len())
	}
}

func TestPipelineVariantState(t *testing.T) {
	dev, c := newTestCache(t)
	c.setTarget(PermutationMesh, testPass(t, dev, "main"), 4)
	c.setTarget(PermutationShadow, testPass(t, dev, "shadow"), 1)
	s := testSettings()

	p, _ := c.get(blendedKey(s))
	desc := p.(*gputest.Pipeline).Desc
	if desc.Blend != gpu.BlendAlpha || desc.DepthWrite || !desc.DepthTest || desc.CullMode != gpu.CullNone {
		t.Errorf("blended variant = %+v", desc)
	}
	if desc.Samples != 4 {
		t.Errorf("blended samples = %d, want 4", desc.Samples)
	}

	p, err := c.get(shadowKey(s))
	if err != nil {
		t.Fatal(err)
	}
	desc = p.(*gputest.Pipeline).Desc
	if desc.HasColor || len(desc.Stages) != 1 {
		t.Errorf("shadow variant has a color stage: %+v", desc.Stages)
	}
	if !desc.DepthBias || desc.Samples != 1 {
		t.Errorf("shadow variant = %+v", desc)
	}
}

func TestPipelineCacheFlushesOnTargetChange(t *testing.T) {
	dev, c := newTestCache(t)
	pass := testPass(t, dev, "main")
	c.setTarget(PermutationMesh, pass, 4)
	c.setTarget(PermutationShadow, testPass(t, dev, "shadow"), 1)
	s := testSettings()
	for _, k := range []PipelineKey{opaqueKey(s), blendedKey(s), shadowKey(s)} {
		if _, err := c.get(k); err != nil {
			t.Fatal(err)
		}
	}

	// same target keeps everything
	c.setTarget(PermutationMesh, pass, 4)
	if c.len() != 3 {
		t.Errorf("cache holds %d after a no-op retarget", c.len())
	}

	c.setTarget(PermutationMesh, pass, 1)
	if c.len() != 1 {
		t.Errorf("cache holds %d after a sample change, want the shadow variant only", c.len())
	}
	if dev.Live("Pipeline") != 1 {
		t.Errorf("live pipelines = %d", dev.Live("Pipeline"))
	}
	p, _ := c.get(opaqueKey(s))
	if got := p.(*gputest.Pipeline).Desc.Samples; got != 1 {
		t.Errorf("rebuilt variant samples = %d, want 1", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestPipelineCacheMissingShaders(t *testing.T) {
	dev, c := newTestCache(t)
	c.setTarget(PermutationDebug, testPass(t, dev, "main"), 4)
	if _, err := c.get(debugKey(testSettings())); !errors.Is(err, core.ErrMissingShader) {
		t.Errorf("get() = %v, want ErrMissingShader", err)
	}
	c.destroy()
	if _, err := c.get(opaqueKey(testSettings())); !errors.Is(err, core.ErrMissingShader) {
		t.Errorf("get() after destroy = %v, want ErrMissingShader", err)
	}
}

func TestClampSamples(t *testing.T) {
	limits := gpu.Limits{MaxSamples: 8}
	for _, tt := range []struct{ in, want uint32 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 2}, {4, 4}, {6, 4}, {8, 8}, {16, 8},
	} {
		if got := clampSamples(tt.in, limits); got != tt.want {
			t.Errorf("clampSamples(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := clampSamples(4, gpu.Limits{}); got != 1 {
		t.Errorf("clampSamples without a limit = %d, want 1", got)
	}
}

func TestParseFixedFunction(t *testing.T) {
	if m, err := ParseCullMode("Back"); err != nil || m != gpu.CullBack {
		t.Errorf("ParseCullMode(Back) = %v, %v", m, err)
	}
	if _, err := ParseCullMode("sideways"); err == nil {
		t.Error("ParseCullMode accepted an unknown mode")
	}
	if f, err := ParseFrontFace("cw"); err != nil || f != gpu.FrontFaceClockwise {
		t.Errorf("ParseFrontFace(cw) = %v, %v", f, err)
	}
}
