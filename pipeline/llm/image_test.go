package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTxt2Img(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" {
			t.Errorf("path = %q, want /sdapi/v1/txt2img", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"images":["aGVsbG8=","ignored"]}`)
	}))
	defer server.Close()

	client := NewImageClient(server.URL)
	image, err := client.Txt2Img(context.Background(), "a floating city", 768, 512, 30)
	if err != nil {
		t.Fatalf("Txt2Img() error = %v", err)
	}

	if image != "aGVsbG8=" {
		t.Errorf("image = %q, want first image", image)
	}
	if gotBody["prompt"] != "a floating city" {
		t.Errorf("prompt = %v", gotBody["prompt"])
	}
	if gotBody["width"] != float64(768) || gotBody["height"] != float64(512) || gotBody["steps"] != float64(30) {
		t.Errorf("dimensions = %v x %v steps %v", gotBody["width"], gotBody["height"], gotBody["steps"])
	}
}

func TestTxt2ImgErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, "upstream down"},
		{"no images", http.StatusOK, `{"images":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewImageClient(server.URL)
			if _, err := client.Txt2Img(context.Background(), "x", 512, 512, 20); err == nil {
				t.Error("Txt2Img() error = nil, want error")
			}
		})
	}
}
