package httpapi

import (
	"encoding/json"
	"net/http"
)

// Result 采集接口的统一应答。
// 客户端会无脑重试，所以 success 标志显式返回，不只依赖 HTTP 状态码。
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Created bool   `json:"created,omitempty"`
}

func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
