package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
)

func TestRequestChat(t *testing.T) {
	var gotBody map[string]any
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"first"}},{"message":{"content":"second"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk-test")
	answers, err := client.Request(context.Background(), false, "gemma-2-9b",
		[]Message{{Role: RoleUser, Content: "hello"}},
		Sampler{"temperature": 0.5}, 2)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if !reflect.DeepEqual(answers, []string{"first", "second"}) {
		t.Errorf("answers = %v, want [first second]", answers)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotBody["model"] != "gemma-2-9b" {
		t.Errorf("model = %v, want gemma-2-9b", gotBody["model"])
	}
	if gotBody["n"] != float64(2) {
		t.Errorf("n = %v, want 2", gotBody["n"])
	}
	if gotBody["temperature"] != 0.5 {
		t.Errorf("sampler not forwarded: temperature = %v", gotBody["temperature"])
	}
}

func TestRequestCompletionSequential(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completions" {
			t.Errorf("path = %q, want /completions", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["prompt"] != "USER: hi\n\nASSISTANT:" {
			t.Errorf("prompt = %v", body["prompt"])
		}
		fmt.Fprintf(w, `{"choices":[{"text":"answer %d"}]}`, calls.Add(1))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	answers, err := client.Request(context.Background(), true, "gemma-2-9b",
		[]Message{{Role: RoleUser, Content: "USER: hi\n\nASSISTANT:"}}, nil, 3)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if calls.Load() != 3 {
		t.Errorf("backend calls = %d, want 3 sequential requests", calls.Load())
	}
	if !reflect.DeepEqual(answers, []string{"answer 1", "answer 2", "answer 3"}) {
		t.Errorf("answers = %v", answers)
	}
}

func TestRequestLegacyContentShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":"legacy answer"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	answers, err := client.Request(context.Background(), true, "local",
		[]Message{{Role: RoleUser, Content: "hi"}}, nil, 1)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !reflect.DeepEqual(answers, []string{"legacy answer"}) {
		t.Errorf("answers = %v, want [legacy answer]", answers)
	}
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		model   string
		message []Message
	}{
		{"server error", http.StatusInternalServerError, "boom", "m", []Message{{Role: RoleUser, Content: "x"}}},
		{"unrecognized shape", http.StatusOK, `{"ok":true}`, "m", []Message{{Role: RoleUser, Content: "x"}}},
		{"missing model", http.StatusOK, "", "", []Message{{Role: RoleUser, Content: "x"}}},
		{"no messages", http.StatusOK, "", "m", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, "")
			if _, err := client.Request(context.Background(), false, tt.model, tt.message, nil, 1); err == nil {
				t.Error("Request() error = nil, want error")
			}
		})
	}
}

func TestSamplerClone(t *testing.T) {
	base := DefaultSampler()
	clone := base.Clone()
	clone["temperature"] = 0.0
	if base["temperature"] != 1.0 {
		t.Errorf("mutating clone changed base: temperature = %v", base["temperature"])
	}
}
