package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ev := NewEvent(EventCompleted, "snap-1", map[string]bool{"visualDiff": true})
	if err := Deliver(context.Background(), srv.Client(), srv.URL, "s3cret", ev); err != nil {
		t.Fatal(err)
	}

	if gotSig != Sign("s3cret", gotBody) {
		t.Errorf("signature %q does not match body", gotSig)
	}
	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != EventCompleted || decoded.SnapshotID != "snap-1" {
		t.Errorf("decoded event = %+v", decoded)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header")
		}
	}))
	defer srv.Close()
	if err := Deliver(context.Background(), srv.Client(), srv.URL, "", NewEvent(EventFailed, "x", nil)); err != nil {
		t.Fatal(err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := Deliver(context.Background(), srv.Client(), srv.URL, "", NewEvent(EventFailed, "x", nil)); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestNotifier_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	n.Notify(NewEvent(EventCompleted, "snap-2", nil))
	n.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("endpoint called %d times, want 3", got)
	}
}

func TestNilNotifier(t *testing.T) {
	n := NewNotifier("", "")
	if n != nil {
		t.Fatal("empty url should disable notifications")
	}
	n.Notify(NewEvent(EventCompleted, "x", nil))
	n.Wait()
}
