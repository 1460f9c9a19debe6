package proxmox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "reaperd/pkg/logx"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:     srv.URL,
		TokenID:     "agent@pam!reaper",
		TokenSecret: "s3cret",
		Node:        "pve1",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestListContainers(t *testing.T) {
	var gotAuth string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/nodes/pve1/lxc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"vmid":103,"name":"web","status":"running"},{"vmid":"104","name":"db","status":"stopped"}]}`))
	})

	cts, err := c.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(cts) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(cts))
	}
	if cts[0].VMID.String() != "103" || cts[0].Name != "web" {
		t.Fatalf("unexpected container: %+v", cts[0])
	}
	if gotAuth != "PVEAPIToken=agent@pam!reaper=s3cret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestContainerExists(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"vmid":103,"name":"web","status":"running"}]}`))
	})

	ok, err := c.ContainerExists(context.Background(), "103")
	if err != nil {
		t.Fatalf("ContainerExists: %v", err)
	}
	if !ok {
		t.Fatal("expected container 103 to exist")
	}
	ok, err = c.ContainerExists(context.Background(), "999")
	if err != nil {
		t.Fatalf("ContainerExists: %v", err)
	}
	if ok {
		t.Fatal("container 999 should not exist")
	}
}

func TestDeleteContainerError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		http.Error(w, "container is running", http.StatusInternalServerError)
	})

	if err := c.DeleteContainer(context.Background(), "103"); err == nil {
		t.Fatal("expected error from failed delete")
	}
}
