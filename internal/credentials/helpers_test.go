package credentials

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/systmms/cloudrunops/internal/contents"
	"github.com/systmms/cloudrunops/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, true, true)
}

type fakeResolver struct {
	files map[string]string
}

func (r *fakeResolver) GetContents(ctx context.Context, ref string) (string, error) {
	data, ok := r.files[ref]
	if !ok {
		return "", &contents.UnavailableError{Ref: ref, Scheme: "test", Err: fmt.Errorf("no such reference")}
	}
	return data, nil
}

type authCall struct {
	gcloudPath string
	creds      Credentials
}

type fakeAuthenticator struct {
	mu    sync.Mutex
	err   error
	calls []authCall
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context, gcloudPath string, creds Credentials) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, authCall{gcloudPath: gcloudPath, creds: creds})
	return a.err
}
