package llm

import "context"

// FakeClient is a scripted Client for tests: JSONFunc/TextFunc are called if
// set, otherwise GenerateJSON/GenerateText return Err (simulating an
// unavailable LLM so callers exercise their deterministic fallback paths).
type FakeClient struct {
	JSONFunc func(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
	TextFunc func(ctx context.Context, system, user string) (string, error)
	Err      error
}

func (f *FakeClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if f.JSONFunc != nil {
		return f.JSONFunc(ctx, system, user, schemaName, schema)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, errUnavailable
}

func (f *FakeClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	if f.TextFunc != nil {
		return f.TextFunc(ctx, system, user)
	}
	if f.Err != nil {
		return "", f.Err
	}
	return "", errUnavailable
}

var errUnavailable = errUnavailableError{}

type errUnavailableError struct{}

func (errUnavailableError) Error() string { return "llm: fake client has no response configured" }

var _ Client = (*FakeClient)(nil)
