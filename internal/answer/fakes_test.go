package answer

import (
	"context"
	"fmt"
)

// fakeLLM scripts provider behavior per test.
type fakeLLM struct {
	generate func(prompt, model string) (string, error)
	embed    func(input []string) ([][]float32, error)
}

func (f *fakeLLM) Generate(_ context.Context, prompt, model string, _ map[string]interface{}) (string, error) {
	if f.generate == nil {
		return "", fmt.Errorf("generate not scripted")
	}
	return f.generate(prompt, model)
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt, model string, options map[string]interface{}, onDelta func(string)) (string, error) {
	out, err := f.Generate(ctx, prompt, model, options)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		onDelta(out)
	}
	return out, nil
}

func (f *fakeLLM) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	if f.embed == nil {
		return nil, fmt.Errorf("embed not scripted")
	}
	return f.embed(input)
}

func (f *fakeLLM) GetAvailableModels() []string { return []string{"fake"} }

// fakeProvider serves scripted capability results.
type fakeProvider struct {
	name    string
	caps    []string
	search  func(ctx context.Context, capability string, args map[string]interface{}) (CapabilityResult, error)
	nCalled int
}

func (f *fakeProvider) Name() string           { return f.name }
func (f *fakeProvider) Capabilities() []string { return f.caps }

func (f *fakeProvider) Search(ctx context.Context, capability string, args map[string]interface{}) (CapabilityResult, error) {
	f.nCalled++
	if f.search == nil {
		return CapabilityResult{}, nil
	}
	return f.search(ctx, capability, args)
}
