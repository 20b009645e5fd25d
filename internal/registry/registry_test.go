package registry

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/goleak"

	"github.com/szibis/logship/internal/sender"
	"github.com/szibis/logship/internal/status"
)

func config(t *testing.T, typ, url string) sender.Config {
	cfg := sender.DefaultConfig()
	cfg.Token = "secret"
	cfg.Type = typ
	cfg.ListenerURL = url
	cfg.QueueDir = t.TempDir()
	return cfg
}

func TestGetOrCreate_ReusesSenderPerType(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := New()
	rec := &status.Recorder{}

	first, err := r.GetOrCreate(config(t, "app", "http://localhost:8071"), sender.Options{Reporter: rec})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	again, err := r.GetOrCreate(config(t, "app", "http://other:9000"), sender.Options{Reporter: rec})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first != again {
		t.Error("GetOrCreate() built a second sender for the same type")
	}
	if again.Config().ListenerURL != "http://localhost:8071" {
		t.Errorf("existing sender was reconfigured: %q", again.Config().ListenerURL)
	}

	warnings := rec.Filter(status.LevelWarning)
	want := "Already found appender configured for type app, re-using the same one."
	if len(warnings) != 1 || warnings[0].Text != want {
		t.Errorf("warnings = %+v, want %q", warnings, want)
	}

	other, err := r.GetOrCreate(config(t, "audit", "http://localhost:8071"), sender.Options{Reporter: rec})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if other == first {
		t.Error("different types share a sender")
	}

	if got := r.Types(); !reflect.DeepEqual(got, []string{"app", "audit"}) {
		t.Errorf("Types() = %v", got)
	}
	if s, ok := r.Get("audit"); !ok || s != other {
		t.Error("Get(audit) did not return the registered sender")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) reported a sender")
	}

	r.StopAll()
	if !first.Stopped() || !other.Stopped() {
		t.Error("StopAll() left a sender running")
	}
}

func TestGetOrCreate_FailedSenderIsNotRegistered(t *testing.T) {
	r := New()
	cfg := config(t, "app", "http://localhost:8071")
	cfg.Token = ""

	if _, err := r.GetOrCreate(cfg, sender.Options{Reporter: &status.Recorder{}}); err == nil {
		t.Fatal("GetOrCreate() error = nil for an empty token")
	}
	if len(r.Types()) != 0 {
		t.Errorf("Types() = %v, want none", r.Types())
	}
}

func TestStopAll_FlushesEverySender(t *testing.T) {
	var hits = make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.URL.Query().Get("type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	for _, typ := range []string{"a", "b"} {
		s, err := r.GetOrCreate(config(t, typ, srv.URL), sender.Options{Reporter: &status.Recorder{}})
		if err != nil {
			t.Fatalf("GetOrCreate(%s) error = %v", typ, err)
		}
		s.Send([]byte("line from " + typ))
	}

	r.StopAll()
	close(hits)

	seen := map[string]bool{}
	for typ := range hits {
		seen[typ] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("final drains reached types %v, want a and b", seen)
	}
}
