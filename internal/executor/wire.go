package executor

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nuffi-dev/nuffi/internal/core"
)

const (
	ServiceName       = "nuffi.executor.v1.ExecutorService"
	InstallItemMethod = "/" + ServiceName + "/InstallItem"
)

// Error codes carried in-band in a failed InstallItem response.
const (
	CodeInvalidItem   = "INVALID_ITEM"
	CodeInstallFailed = "INSTALL_FAILED"
	CodeTimeout       = "TIMEOUT"
)

// Result is the InstallItem response body.
type Result struct {
	Success      bool    `json:"success"`
	ErrorCode    string  `json:"error_code,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	DurationMS   float64 `json:"duration_ms"`
}

func EncodeItem(item core.Item) (*structpb.Struct, error) {
	return toStruct(item)
}

func DecodeItem(s *structpb.Struct) (core.Item, error) {
	var item core.Item
	err := fromStruct(s, &item)
	return item, err
}

func EncodeResult(r Result) (*structpb.Struct, error) {
	return toStruct(r)
}

func DecodeResult(s *structpb.Struct) (Result, error) {
	var r Result
	err := fromStruct(s, &r)
	return r, err
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("empty message")
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
