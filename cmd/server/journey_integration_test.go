//go:build integration

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

// Runs against a live server; seed at least one question first:
//
//	dyad seed-questions cmd/server/testdata/questions.json && dyad serve
func baseURL() string {
	if v := os.Getenv("DYAD_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:8080"
}

type sessionView struct {
	Session struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"session"`
	Questions []struct {
		ID string `json:"id"`
	} `json:"questions"`
	Choices []struct {
		QuestionID string `json:"question_id"`
		Value      int    `json:"value"`
	} `json:"choices"`
}

func TestParticipantJourneyIntegration(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()

	var created struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		TokenA    string `json:"token_a"`
		TokenB    string `json:"token_b"`
	}
	doPost(t, client, base+"/api/create-session", nil, &created)
	if created.Status != "in_progress" || created.TokenA == "" || created.TokenA == created.TokenB {
		t.Fatalf("unexpected create response: %+v", created)
	}

	var view sessionView
	doGet(t, client, base+"/api/get-session?token="+url.QueryEscape(created.TokenA), &view)
	if len(view.Questions) == 0 {
		t.Skip("no active questions; seed the bank first")
	}
	firstChoice := map[string]int{}
	for _, c := range view.Choices {
		if _, ok := firstChoice[c.QuestionID]; !ok {
			firstChoice[c.QuestionID] = c.Value
		}
	}
	answers := make([]map[string]any, 0, len(view.Questions))
	for _, q := range view.Questions {
		answers = append(answers, map[string]any{"question_id": q.ID, "choice_value": firstChoice[q.ID]})
	}

	var done struct {
		OK     bool   `json:"ok"`
		Status string `json:"status"`
	}
	for i, token := range []string{created.TokenA, created.TokenB} {
		doPost(t, client, base+"/api/save-progress", map[string]any{"token": token, "answers": answers}, nil)
		doPost(t, client, base+"/api/complete-session", map[string]any{"token": token}, &done)
		want := "waiting"
		if i == 1 {
			want = "ready"
		}
		if !done.OK || done.Status != want {
			t.Fatalf("complete #%d = %+v, want status %s", i+1, done, want)
		}
	}

	doGet(t, client, base+"/api/get-session?token="+url.QueryEscape(created.TokenB), &view)
	if view.Session.Status != "ready" {
		t.Fatalf("session status = %s, want ready", view.Session.Status)
	}
}

func doGet(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("http get %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	decodeOK(t, resp, url, out)
}

func doPost(t *testing.T, client *http.Client, url string, body any, out any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http post %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	decodeOK(t, resp, url, out)
}

func decodeOK(t *testing.T, resp *http.Response, url string, out any) {
	t.Helper()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
