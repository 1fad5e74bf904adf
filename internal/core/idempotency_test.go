package core

import (
	"encoding/json"
	"testing"
)

const installPath = "/v1/workspaces/install"

func TestComputeRequestHash_Deterministic(t *testing.T) {
	body := json.RawMessage(`{"template_id":"tpl-1","custom_name":"mine"}`)
	h1 := ComputeRequestHash(body, "POST", installPath)
	h2 := ComputeRequestHash(body, "POST", installPath)
	if h1 != h2 {
		t.Fatalf("same input produced different hashes: %s vs %s", h1, h2)
	}
}

func TestComputeRequestHash_KeyOrderIrrelevant(t *testing.T) {
	body1 := json.RawMessage(`{"custom_settings":{"b":1,"a":2},"template_id":"tpl-1"}`)
	body2 := json.RawMessage(`{"template_id":"tpl-1","custom_settings":{"a":2,"b":1}}`)
	if ComputeRequestHash(body1, "POST", installPath) != ComputeRequestHash(body2, "POST", installPath) {
		t.Fatal("different key order produced different hashes")
	}
}

func TestComputeRequestHash_DifferentBody(t *testing.T) {
	body1 := json.RawMessage(`{"template_id":"tpl-1"}`)
	body2 := json.RawMessage(`{"template_id":"tpl-2"}`)
	if ComputeRequestHash(body1, "POST", installPath) == ComputeRequestHash(body2, "POST", installPath) {
		t.Fatal("different bodies produced same hash")
	}
}

func TestComputeRequestHash_DifferentPath(t *testing.T) {
	body := json.RawMessage(`{"template_id":"tpl-1"}`)
	if ComputeRequestHash(body, "POST", installPath) == ComputeRequestHash(body, "POST", "/v1/workspaces/ws-1/reinstall") {
		t.Fatal("different paths produced same hash")
	}
}
