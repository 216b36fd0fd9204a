// Package testutil provides common test utilities and helpers for CoachPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// MockGenAI is a scripted language model client for tests. Replies are
// returned in order; the last reply repeats once the script runs out.
type MockGenAI struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Calls   int
}

// NewMockGenAI creates a scripted client.
func NewMockGenAI(replies ...string) *MockGenAI {
	return &MockGenAI{Replies: replies}
}

func (m *MockGenAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "", nil
	}
	reply := m.Replies[0]
	if len(m.Replies) > 1 {
		m.Replies = m.Replies[1:]
	}
	return reply, nil
}

func (m *MockGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.GeneratePrompt(ctx, "", "")
}

func (m *MockGenAI) LastUsage() genai.Usage { return genai.Usage{} }

var _ genai.ClientInterface = (*MockGenAI)(nil)

// ValidPersonaJSON is a minimal well-formed synthesis reply for tests.
const ValidPersonaJSON = `{"name":"Kai","archetype":"Steady Trail Guide","energy":"calm","warmth":"warm","formality":"casual","core_values":["consistency","patience","honesty"],"dominant_traits":["grounded","observant"],"system_prompt":"You are Kai."}`

// SeedUser creates an active user in the store and returns it.
func SeedUser(t *testing.T, st store.Store, id string) models.User {
	t.Helper()
	user := models.User{
		ID:           id,
		Name:         "Sam",
		PhoneNumber:  "1555" + id,
		Status:       models.UserStatusActive,
		CreatedAt:    time.Now(),
		LastActiveAt: time.Now(),
	}
	if err := st.CreateUser(user); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response envelope and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
