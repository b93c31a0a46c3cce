package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kalambet/jobassist/internal/conversation"
)

func textWebhook(phone, name, text string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"metadata":{"display_phone_number":"15550000000","phone_number_id":"PNID"},
		"contacts":[{"profile":{"name":%q},"wa_id":%q}],
		"messages":[{"from":%q,"id":"wamid.1","type":"text","text":{"body":%q}}]}}]}]}`, name, phone, phone, text)
}

func applyWebhook(phone, jobID string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"messages":[{"from":%q,"type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"apply:%s","title":"Apply"}}}]}}]}]}`, phone, jobID)
}

func decodeWebhook(t *testing.T, body []byte) webhookResponse {
	t.Helper()
	var resp webhookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decoding webhook response: %v; body = %s", err, body)
	}
	return resp
}

func TestWebhookVerify(t *testing.T) {
	st := newTestStack(t)
	tests := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"valid", "?hub.mode=subscribe&hub.verify_token=blue_cat&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"wrong token", "?hub.mode=subscribe&hub.verify_token=red_dog&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "?hub.mode=unsubscribe&hub.verify_token=blue_cat&hub.challenge=1", http.StatusForbidden, ""},
		{"missing", "", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := st.do(t, http.MethodGet, "/webhook"+tt.query, "", "")
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if rr.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.body)
			}
		})
	}
}

func TestWebhook_TextMessage(t *testing.T) {
	st := newTestStack(t)

	rr := st.do(t, http.MethodPost, "/webhook", textWebhook("919876543210", "Ramesh", "Hi"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	resp := decodeWebhook(t, rr.Body.Bytes())
	if !resp.Success {
		t.Fatalf("success = false: %s", resp.Error)
	}
	if resp.User.Name != "Ramesh" || resp.User.Phone != "919876543210" {
		t.Errorf("user = %+v", resp.User)
	}
	if len(resp.Responses) != 1 || resp.Responses[0].Content != conversation.WelcomeMessage {
		t.Errorf("responses = %+v", resp.Responses)
	}

	sent := st.sender.sent["919876543210"]
	if len(sent) != 1 || sent[0].Content != conversation.WelcomeMessage {
		t.Errorf("delivered = %+v", sent)
	}
}

func TestWebhook_StatusCallbackIgnored(t *testing.T) {
	st := newTestStack(t)
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"read"}]}}]}]}`
	rr := st.do(t, http.MethodPost, "/webhook", body, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "{\"status\":\"ignored\"}\n" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if len(st.sender.sent) != 0 {
		t.Error("status callback triggered a delivery")
	}
}

func TestWebhook_Malformed(t *testing.T) {
	st := newTestStack(t)
	for name, body := range map[string]string{
		"not json":     `nope`,
		"wrong object": `{"object":"page","entry":[{"changes":[{"value":{}}]}]}`,
		"no entry":     `{"object":"whatsapp_business_account"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := st.do(t, http.MethodPost, "/webhook", body, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestWebhook_ApplyButton(t *testing.T) {
	st := newTestStack(t)
	j := st.seedJob(t)
	st.do(t, http.MethodPost, "/webhook", textWebhook("91555", "Asha", "Hi"), "")

	rr := st.do(t, http.MethodPost, "/webhook", applyWebhook("91555", j.ID), "")
	resp := decodeWebhook(t, rr.Body.Bytes())
	if !resp.Success || len(resp.Responses) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Responses[0].JobID != j.ID {
		t.Errorf("confirmation job_id = %q, want %q", resp.Responses[0].JobID, j.ID)
	}

	rr = st.do(t, http.MethodPost, "/webhook", applyWebhook("91555", "gone"), "")
	resp = decodeWebhook(t, rr.Body.Bytes())
	if len(resp.Responses) != 1 || resp.Responses[0].Content != conversation.JobUnavailableMessage {
		t.Errorf("missing job responses = %+v", resp.Responses)
	}
}

func TestWebhook_ApplyButtonUnknownSeeker(t *testing.T) {
	st := newTestStack(t)
	j := st.seedJob(t)

	rr := st.do(t, http.MethodPost, "/webhook", applyWebhook("91666", j.ID), "")
	resp := decodeWebhook(t, rr.Body.Bytes())
	if len(resp.Responses) != 1 || resp.Responses[0].Content != conversation.WelcomeMessage {
		t.Errorf("responses = %+v, want welcome", resp.Responses)
	}
}

func TestWebhook_DeliveryFailureStillOK(t *testing.T) {
	st := newTestStack(t)
	st.sender.err = errors.New("graph api down")

	rr := st.do(t, http.MethodPost, "/webhook", textWebhook("91777", "Ravi", "Hi"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if resp := decodeWebhook(t, rr.Body.Bytes()); !resp.Success {
		t.Errorf("success = false after a delivery failure")
	}
}
