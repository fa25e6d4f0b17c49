package nel

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudflare/nel/report"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestSubmitReportDeliversToCollector(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(buf))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(WithRetryTimeout(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.NELHeader("h", `{"report_to":"g","max_age":60,"success_fraction":0,"failure_fraction":1}`)
	c.ReportToHeader("h", `{"group":"g","max_age":60,"endpoints":[{"url":"`+srv.URL+`"}]}`)

	rep := report.New("https://h/x")
	rep.SetError(timeoutErr{})
	c.SubmitReport(*rep)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(bodies)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("collector never received a report")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(bodies[0], `"type":"tcp.timed_out"`) {
		t.Errorf("body missing classified type: %s", bodies[0])
	}
}

func TestSubmitReportWithNoPolicyDoesNotBlock(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	rep := report.New("https://nowhere.example/")
	c.SubmitReport(*rep)
	// No policy cached for nowhere.example: the reporter should treat this
	// as delivered and never block Close.
}

func TestDefaultIsASingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatal("Default() returned distinct instances")
	}
}
