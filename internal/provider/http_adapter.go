package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPAdapter 通过 HTTP API 调用服务单元提供者
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAdapter 创建 HTTP 提供者适配器
func NewHTTPAdapter(baseURL string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type createInstanceRequest struct {
	ResourceType string                 `json:"resource_type"`
	Remark       string                 `json:"remark,omitempty"`
	Config       map[string]interface{} `json:"config"`
}

type createInstanceResponse struct {
	InstanceID string            `json:"instance_id"`
	Extra      map[string]string `json:"extra,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// CreateInstance 在服务单元中创建一个资源实例
func (a *HTTPAdapter) CreateInstance(ctx context.Context, serviceID string, params *CreateParams) (*CreateResult, error) {
	reqBody := createInstanceRequest{
		ResourceType: string(params.ResourceType),
		Remark:       params.Remark,
		Config:       params.Config,
	}
	var resp createInstanceResponse
	url := fmt.Sprintf("%s/api/services/%s/instances", a.baseURL, serviceID)
	if err := a.post(ctx, url, &reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.InstanceID == "" {
		return nil, fmt.Errorf("provider returned empty instance id: %s", resp.Message)
	}
	return &CreateResult{InstanceID: resp.InstanceID, Extra: resp.Extra}, nil
}

type describeDiskResponse struct {
	SizeGiB int    `json:"size_gib"`
	Message string `json:"message,omitempty"`
}

// DescribeDiskSize 查询现有云硬盘的当前容量 (GiB)
func (a *HTTPAdapter) DescribeDiskSize(ctx context.Context, serviceID, diskID string) (int, error) {
	var resp describeDiskResponse
	url := fmt.Sprintf("%s/api/services/%s/disks/%s", a.baseURL, serviceID, diskID)
	if err := a.get(ctx, url, &resp); err != nil {
		return 0, err
	}
	return resp.SizeGiB, nil
}

func (a *HTTPAdapter) post(ctx context.Context, url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *HTTPAdapter) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return a.do(req, out)
}

func (a *HTTPAdapter) do(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, e.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
