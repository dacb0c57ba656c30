// internal/llmclient/scripted.go
package llmclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

// ErrScriptExhausted is returned once every scripted response has been served.
var ErrScriptExhausted = errors.New("scripted provider has no responses left")

// ScriptedProvider replays canned responses in order. Useful for dry runs and
// reproducing a recorded session without a model.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []string
	next      int
	logger    *zap.Logger
}

var _ schemas.PlanProvider = (*ScriptedProvider)(nil)

// NewScriptedProvider serves responses verbatim.
func NewScriptedProvider(responses []string, logger *zap.Logger) *ScriptedProvider {
	return &ScriptedProvider{
		responses: append([]string(nil), responses...),
		logger:    logger.Named("llm_client.scripted"),
	}
}

// LoadScriptedProvider reads a script file whose documents are separated by
// lines containing only "---".
func LoadScriptedProvider(path string, logger *zap.Logger) (*ScriptedProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan script: %w", err)
	}
	defer f.Close()

	responses, err := splitDocuments(bufio.NewScanner(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read plan script %s: %w", path, err)
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("plan script %s contains no responses", path)
	}
	return NewScriptedProvider(responses, logger), nil
}

func splitDocuments(sc *bufio.Scanner) ([]string, error) {
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var docs []string
	var cur []string
	flush := func() {
		doc := strings.TrimSpace(strings.Join(cur, "\n"))
		if doc != "" {
			docs = append(docs, doc)
		}
		cur = cur[:0]
	}
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return docs, nil
}

// Plan returns the next scripted response.
func (s *ScriptedProvider) Plan(ctx context.Context, req schemas.PlanRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.responses) {
		return "", ErrScriptExhausted
	}
	resp := s.responses[s.next]
	s.next++
	s.logger.Debug("Serving scripted response", zap.Int("index", s.next-1), zap.Int("remaining", len(s.responses)-s.next))
	return resp, nil
}

// Remaining reports how many responses are left.
func (s *ScriptedProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses) - s.next
}
