package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/antoniostano/viola/internal/contacts"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		AccountSID:     "AC123",
		AuthToken:      "secret",
		From:           "+70000000000",
		VoiceURL:       "https://agent.example/twilio/voice",
		StatusCallback: "https://agent.example/twilio/status",
		BaseURL:        srv.URL,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, srv
}

func TestPlaceCallSendsFormAndParsesSID(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotURL, gotCallback string
	var gotUser, gotPass string

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		r.ParseForm()
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotURL = r.PostFormValue("Url")
		gotCallback = r.PostFormValue("StatusCallback")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA42","status":"queued"}`))
	})

	sid, err := c.PlaceCall(context.Background(), contacts.Contact{Number: "+79001112233"})
	if err != nil {
		t.Fatalf("PlaceCall() error = %v", err)
	}
	if sid != "CA42" {
		t.Fatalf("sid = %q, want CA42", sid)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Calls.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotTo != "+79001112233" || gotFrom != "+70000000000" {
		t.Fatalf("to/from = %q/%q", gotTo, gotFrom)
	}
	if gotURL != "https://agent.example/twilio/voice" {
		t.Fatalf("voice url = %q", gotURL)
	}
	if gotCallback != "https://agent.example/twilio/status" {
		t.Fatalf("status callback = %q", gotCallback)
	}
}

func TestPlaceCallSurfacesAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"invalid to number"}`))
	})

	if _, err := c.PlaceCall(context.Background(), contacts.Contact{Number: "bogus"}); err == nil {
		t.Fatalf("expected error for rejected placement")
	}
}

func TestPlaceCallSurfacesErrorBodyWith200(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":20003,"message":"authentication failed"}`))
	})

	_, err := c.PlaceCall(context.Background(), contacts.Contact{Number: "+79001112233"})
	if err == nil {
		t.Fatalf("expected error for api error body")
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	cases := []Config{
		{AuthToken: "t", From: "+1", VoiceURL: "u"},
		{AccountSID: "AC", From: "+1", VoiceURL: "u"},
		{AccountSID: "AC", AuthToken: "t", VoiceURL: "u"},
		{AccountSID: "AC", AuthToken: "t", From: "+1"},
	}
	for i, cfg := range cases {
		if _, err := NewClient(cfg); err == nil {
			t.Errorf("case %d: expected config error", i)
		}
	}
}
