package engines

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSeedreamSynchronousURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/images/generations" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"model":"seedream","data":[{"url":"https://ark/i.jpeg","size":"2048x2048"}]}`))
	}))
	defer srv.Close()

	s := NewSeedream(Options{APIKey: "ark", BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := s.Generate(context.Background(), Request{Prompt: "a lighthouse"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.URL != "https://ark/i.jpeg" {
		t.Fatalf("unexpected url %q", res.URL)
	}
}

func TestRunwareReturnsImageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tasks []runwareTask
		if err := json.NewDecoder(r.Body).Decode(&tasks); err != nil || len(tasks) != 1 {
			t.Errorf("unexpected body: %v", err)
			return
		}
		task := tasks[0]
		if task.TaskType != "imageInference" || !task.CheckNSFW || task.Width != 1024 || task.Height != 576 {
			t.Errorf("unexpected task %+v", task)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"taskType": "imageInference", "taskUUID": task.TaskUUID, "imageURL": "https://rw/i.png"}},
		})
	}))
	defer srv.Close()

	rw := NewRunware(Options{APIKey: "rw", BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := rw.Generate(context.Background(), Request{Prompt: "forest", AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.URL != "https://rw/i.png" {
		t.Fatalf("unexpected url %q", res.URL)
	}
}

func TestRunwareNSFWIsSafetyFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tasks []runwareTask
		_ = json.NewDecoder(r.Body).Decode(&tasks)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"taskUUID": tasks[0].TaskUUID, "imageURL": "https://rw/x.png", "NSFWContent": true}},
		})
	}))
	defer srv.Close()

	rw := NewRunware(Options{APIKey: "rw", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := rw.Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrSafetyFiltered) {
		t.Fatalf("expected safety error, got %v", err)
	}
}

func TestDeAPIPollsRequestStatus(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/client/txt2img":
			_, _ = w.Write([]byte(`{"data":{"request_id":"req-5"}}`))
		case "/api/v1/client/request-status/req-5":
			polls++
			if polls < 2 {
				_, _ = w.Write([]byte(`{"data":{"status":"processing","progress":0.5}}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":{"status":"done","result_url":"https://de/i.png"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDeAPI(Options{APIKey: "de", BaseURL: srv.URL, HTTPClient: srv.Client(), Poll: fastPoll(5)})
	res, err := d.Generate(context.Background(), Request{Prompt: "robot"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.URL != "https://de/i.png" || res.TaskID != "req-5" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDalleContentPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"content_policy_violation","message":"Your request was rejected as a result of our safety system."}}`))
	}))
	defer srv.Close()

	d := NewDalle(Options{APIKey: "sk", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := d.Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrSafetyFiltered) {
		t.Fatalf("expected safety error, got %v", err)
	}
}

func TestDalleRevisedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["size"] != "1792x1024" || body["response_format"] != "url" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`{"data":[{"url":"https://oai/i.png","revised_prompt":"a detailed fox"}]}`))
	}))
	defer srv.Close()

	d := NewDalle(Options{APIKey: "sk", BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := d.Generate(context.Background(), Request{Prompt: "fox", AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.URL != "https://oai/i.png" || res.RevisedPrompt != "a detailed fox" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDimensionsRoundToSixtyFour(t *testing.T) {
	w, h := dimensions(Request{Width: 1000, Height: 700}, 1024)
	if w != 1024 || h != 704 {
		t.Fatalf("dimensions = %dx%d", w, h)
	}
	w, h = dimensions(Request{AspectRatio: "9:16"}, 1024)
	if w != 576 || h != 1024 {
		t.Fatalf("dimensions = %dx%d", w, h)
	}
}
