package toolexec

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/internal/compactor"
)

type fnHandler struct {
	timeout time.Duration
	fn      func(ctx context.Context, inv Invocation) (any, CompressionHint, error)
}

func (h fnHandler) ExecutionTimeout() time.Duration { return h.timeout }
func (h fnHandler) Execute(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
	return h.fn(ctx, inv)
}

type alwaysSystemProvider struct{ names map[string]bool }

func (p alwaysSystemProvider) IsSystemProvided(name string) bool { return p.names[name] }

func TestExecutor_Execute_UnknownToolNotSystemProvided(t *testing.T) {
	e := New(nil, nil, nil, nil)

	res := e.Execute(context.Background(), Invocation{ToolName: "ghost"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrDependencyMissing, res.ErrorType)
}

func TestExecutor_Execute_SystemProvidedEchoesInput(t *testing.T) {
	e := New(alwaysSystemProvider{names: map[string]bool{"echo": true}}, nil, nil, nil)

	input := map[string]any{"text": "hi"}
	res := e.Execute(context.Background(), Invocation{ToolName: "echo", ToolInput: input})

	assert.True(t, res.Success)
	assert.Equal(t, input, res.Content)
}

func TestExecutor_Execute_RegisteredHandlerSuccess(t *testing.T) {
	e := New(nil, nil, nil, nil)
	e.Register("noop", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		return "ok", HintNormal, nil
	}})

	res := e.Execute(context.Background(), Invocation{ToolName: "noop"})

	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.Content)
}

func TestExecutor_Execute_HandlerError_Classified(t *testing.T) {
	e := New(nil, nil, nil, nil)
	e.Register("fails", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		return nil, "", &ToolError{Type: ErrInputInvalid, Err: errors.New("bad arg")}
	}})

	res := e.Execute(context.Background(), Invocation{ToolName: "fails"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrInputInvalid, res.ErrorType)
}

func TestExecutor_Execute_HandlerTimeout(t *testing.T) {
	e := New(nil, nil, nil, nil)
	e.Register("slow", fnHandler{
		timeout: 10 * time.Millisecond,
		fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
			<-ctx.Done()
			return nil, "", ctx.Err()
		},
	})

	res := e.Execute(context.Background(), Invocation{ToolName: "slow"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrTimeout, res.ErrorType)
}

func TestExecutor_Execute_ContextCancelled(t *testing.T) {
	e := New(nil, nil, nil, nil)
	e.Register("blocks", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		<-ctx.Done()
		return nil, "", ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := e.Execute(ctx, Invocation{ToolName: "blocks"})

	assert.False(t, res.Success)
	assert.Equal(t, ErrTransient, res.ErrorType)
}

func TestExecutor_Execute_LongResultIsCompacted(t *testing.T) {
	dir := t.TempDir()
	c := compactor.New(compactor.Config{StorageDir: dir, HeadLines: 1, TailLines: 1}, nil)
	e := New(nil, c, nil, nil)
	longText := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nl\nm\nn\no\np"
	e.Register("read", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		return longText, HintNormal, nil
	}})

	res := e.Execute(context.Background(), Invocation{ToolName: "read"})

	require.True(t, res.Success)
	assert.True(t, res.Compressed)
	require.NotNil(t, res.CompressionMetadata)
}

func TestExecutor_Execute_SkipCompactionHintBypassesCompactor(t *testing.T) {
	dir := t.TempDir()
	c := compactor.New(compactor.Config{StorageDir: dir, HeadLines: 1, TailLines: 1}, nil)
	e := New(nil, c, nil, nil)
	e.Register("read", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		return "a\nb\nc\nd\ne\nf\ng\nh", HintSkip, nil
	}})

	res := e.Execute(context.Background(), Invocation{ToolName: "read"})

	assert.True(t, res.Success)
	assert.False(t, res.Compressed)
}

func TestExecutor_Execute_ListContentNeverCompacted(t *testing.T) {
	dir := t.TempDir()
	c := compactor.New(compactor.Config{StorageDir: dir}, nil)
	e := New(nil, c, nil, nil)
	blocks := []any{map[string]any{"type": "text", "text": "hi"}}
	e.Register("multimodal", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		return blocks, HintNormal, nil
	}})

	res := e.Execute(context.Background(), Invocation{ToolName: "multimodal"})

	assert.True(t, res.Success)
	assert.False(t, res.Compressed)
	assert.Equal(t, blocks, res.Content)
}

type recordingTracker struct {
	calls chan struct {
		name    string
		success bool
	}
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{calls: make(chan struct {
		name    string
		success bool
	}, 4)}
}

func (r *recordingTracker) Record(name string, success bool) {
	r.calls <- struct {
		name    string
		success bool
	}{name, success}
}

func TestExecutor_Execute_TracksUsageFireAndForget(t *testing.T) {
	tracker := newRecordingTracker()
	e := New(nil, nil, tracker, nil)
	e.Register("ok", fnHandler{fn: func(ctx context.Context, inv Invocation) (any, CompressionHint, error) {
		return "done", HintSkip, nil
	}})

	e.Execute(context.Background(), Invocation{ToolName: "ok"})

	select {
	case call := <-tracker.calls:
		assert.Equal(t, "ok", call.name)
		assert.True(t, call.success)
	case <-time.After(time.Second):
		t.Fatal("usage tracker was never called")
	}
}

func TestClassify_PreservesExistingToolError(t *testing.T) {
	original := &ToolError{Type: ErrAuthExpired, Err: errors.New("expired")}

	got := Classify(original)

	assert.Same(t, original, got)
}

func TestClassifyHTTP_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrRateLimited},
		{401, ErrAuthExpired},
		{403, ErrPermissionDenied},
		{500, ErrTransient},
	}
	for _, tt := range tests {
		got := ClassifyHTTP(&HTTPError{StatusCode: tt.status, Err: errors.New("http")})
		require.NotNil(t, got)
		assert.Equal(t, tt.want, got.Type)
	}
}

func TestClassifyOS_MapsPermissionAndNotExist(t *testing.T) {
	assert.Equal(t, ErrPermissionDenied, ClassifyOS(os.ErrPermission).Type)
	assert.Equal(t, ErrDependencyMissing, ClassifyOS(os.ErrNotExist).Type)
	assert.Nil(t, ClassifyOS(errors.New("other")))
}

func TestClassify_FallsBackToPermanent(t *testing.T) {
	got := Classify(errors.New("totally unknown"))

	assert.Equal(t, ErrPermanent, got.Type)
}
